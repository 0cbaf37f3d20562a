package core

import (
	"context"
	"errors"
	"time"
)

// SerializePrincipal reduces an authenticated identity to the session token
// stored server-side. Only the identifier goes in; role and name are looked
// up fresh on every request to avoid staleness.
func SerializePrincipal(p Principal) SessionToken {
	return SessionToken{
		UserID:   p.UserID,
		IssuedAt: time.Now().UTC(),
	}
}

// DeserializePrincipal expands a session token back into a Principal by
// looking up the referenced user. A token whose user has been deleted
// yields ErrPrincipalNotFound; callers downgrade that to anonymous.
func DeserializePrincipal(ctx context.Context, users UserRepository, token SessionToken) (Principal, error) {
	u, err := users.FindByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Principal{}, ErrPrincipalNotFound
		}
		return Principal{}, err
	}
	return Principal{
		UserID: u.ID,
		Name:   u.Name,
		Email:  u.Email,
		Role:   u.Role,
	}, nil
}
