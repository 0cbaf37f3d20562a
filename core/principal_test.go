package core

import (
	"context"
	"errors"
	"testing"
)

func TestPrincipalRoundTrip(t *testing.T) {
	repo := newMemUserRepository()
	ctx := context.Background()
	id, err := repo.Create(ctx, "Ana", "ana@x.com", "hash", RoleAuthor)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	token := SerializePrincipal(Principal{UserID: id})
	if token.UserID != id {
		t.Fatalf("token user id = %d, want %d", token.UserID, id)
	}
	if token.IssuedAt.IsZero() {
		t.Fatal("token must carry an issuance time")
	}

	p, err := DeserializePrincipal(ctx, repo, token)
	if err != nil {
		t.Fatalf("DeserializePrincipal error: %v", err)
	}
	if p.UserID != id || p.Email != "ana@x.com" || p.Role != RoleAuthor {
		t.Fatalf("unexpected principal: %+v", p)
	}
}

func TestPrincipalReflectsCurrentUserState(t *testing.T) {
	repo := newMemUserRepository()
	ctx := context.Background()
	id, err := repo.Create(ctx, "Ana", "ana@x.com", "hash", RoleUser)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	token := SerializePrincipal(Principal{UserID: id})

	// Role changes after the token was issued must be visible on the next
	// deserialization; the token carries only the identifier.
	repo.mu.Lock()
	repo.users[id].Role = RoleAdmin
	repo.mu.Unlock()

	p, err := DeserializePrincipal(ctx, repo, token)
	if err != nil {
		t.Fatalf("DeserializePrincipal error: %v", err)
	}
	if p.Role != RoleAdmin {
		t.Fatalf("expected fresh role %q, got %q", RoleAdmin, p.Role)
	}
}

func TestPrincipalDeletedUser(t *testing.T) {
	repo := newMemUserRepository()
	ctx := context.Background()
	id, err := repo.Create(ctx, "Ana", "ana@x.com", "hash", RoleUser)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	token := SerializePrincipal(Principal{UserID: id})

	repo.delete(id)

	_, err = DeserializePrincipal(ctx, repo, token)
	if !errors.Is(err, ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound, got %v", err)
	}
}
