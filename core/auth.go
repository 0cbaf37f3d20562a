package core

import (
	"context"
	"errors"
	"time"
)

// Roles form a closed set. Unknown values submitted at registration are
// coerced to RoleUser rather than rejected.
const (
	RoleUser   = "user"
	RoleAdmin  = "admin"
	RoleAuthor = "author"
)

var (
	// ErrInvalidCredentials covers both unknown email and wrong password.
	// The two cases are deliberately indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrDuplicateEmail is returned when registering an email that already exists.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrStoreUnavailable wraps infrastructure-level storage failures.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrVerifierFault signals a malformed stored password hash.
	ErrVerifierFault = errors.New("verifier fault")
	// ErrPrincipalNotFound is returned when a session references a user that
	// no longer exists; callers treat the request as anonymous.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrUserNotFound is returned by repository lookups.
	ErrUserNotFound = errors.New("user not found")
)

// Principal is the authenticated identity attached to a request for its
// duration. It is rebuilt from the session on every request, never cached.
type Principal struct {
	UserID int64
	Name   string
	Email  string
	Role   string
}

// Authenticator verifies submitted credentials and yields a Principal.
// A single repository-backed implementation exists; the interface leaves
// room for other strategies without touching the login flow.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (Principal, error)
}

// normalizeRole coerces a submitted role into the closed set. Only "author"
// may be self-selected at registration; everything else (including "admin"
// and unknown values) silently becomes RoleUser.
func normalizeRole(role string) string {
	if role == RoleAuthor {
		return RoleAuthor
	}
	return RoleUser
}

// SessionToken is the serialized principal state held by the session store.
// It carries exactly the user identifier (plus issuance time), nothing
// else, so role or profile changes take effect on the very next request.
type SessionToken struct {
	UserID   int64     `json:"user_id"`
	IssuedAt time.Time `json:"issued_at"`
}
