package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrSessionNotFound is returned for missing or expired session records.
var ErrSessionNotFound = errors.New("session not found")

const sessionKeyPrefix = "session:"

// SessionStore maps an opaque session identifier to a serialized principal
// token with expiry. Instances are injected where needed; there is no
// package-level store.
type SessionStore interface {
	Create(ctx context.Context, token SessionToken) (string, error)
	Resolve(ctx context.Context, sessionID string) (SessionToken, error)
	Destroy(ctx context.Context, sessionID string) error
}

// RedisSessionStore keeps session records in Redis under session:<id> with a
// fixed TTL. Expiry is Redis key expiry; no sliding renewal.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: ttl}
}

func (s *RedisSessionStore) Create(ctx context.Context, token SessionToken) (string, error) {
	payload, err := json.Marshal(token)
	if err != nil {
		return "", err
	}
	id := NewSessionID()
	if err := s.client.Set(ctx, sessionKeyPrefix+id, payload, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return id, nil
}

func (s *RedisSessionStore) Resolve(ctx context.Context, sessionID string) (SessionToken, error) {
	val, err := s.client.Get(ctx, sessionKeyPrefix+sessionID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return SessionToken{}, ErrSessionNotFound
		}
		return SessionToken{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	var token SessionToken
	if err := json.Unmarshal([]byte(val), &token); err != nil {
		// Treat a corrupt record the same as a missing one.
		return SessionToken{}, ErrSessionNotFound
	}
	return token, nil
}

func (s *RedisSessionStore) Destroy(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, sessionKeyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// CountActiveSessions scans session:* keys; used by the admin status page.
func (s *RedisSessionStore) CountActiveSessions(ctx context.Context) (int64, error) {
	var count int64
	iter := s.client.Scan(ctx, 0, sessionKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, err
	}
	return count, nil
}
