package core

import (
	"context"
	"errors"
	"log"
	"strings"
)

// RepositoryAuthService checks submitted credentials against the user store.
type RepositoryAuthService struct {
	users UserRepository
}

func NewRepositoryAuthService(users UserRepository) *RepositoryAuthService {
	return &RepositoryAuthService{users: users}
}

// Authenticate looks up the claimed email and verifies the password.
// Unknown email and wrong password both come back as ErrInvalidCredentials
// so a caller cannot tell which field was wrong. Storage outages surface
// separately as ErrStoreUnavailable.
func (s *RepositoryAuthService) Authenticate(ctx context.Context, email, password string) (Principal, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return Principal{}, ErrInvalidCredentials
	}

	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Principal{}, ErrInvalidCredentials
		}
		return Principal{}, err
	}

	ok, err := VerifyPassword(password, u.PasswordHash)
	if err != nil {
		// Corrupt stored hash. Logged for operators, but the caller only
		// sees an authentication failure.
		log.Printf("password verification fault for user id=%d: %v", u.ID, err)
		return Principal{}, ErrInvalidCredentials
	}
	if !ok {
		return Principal{}, ErrInvalidCredentials
	}

	return Principal{
		UserID: u.ID,
		Name:   u.Name,
		Email:  u.Email,
		Role:   u.Role,
	}, nil
}

// Register hashes the credential and inserts a new user. The submitted role
// is coerced into the closed set rather than validated; the store's unique
// index on email resolves concurrent registrations of the same address.
func (s *RepositoryAuthService) Register(ctx context.Context, name, email, password, role string) (*UserRecord, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" || password == "" {
		return nil, errors.New("name, email and password are required")
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	id, err := s.users.Create(ctx, name, email, hash, normalizeRole(role))
	if err != nil {
		return nil, err
	}

	return s.users.FindByID(ctx, id)
}
