package session

import (
	"context"
	"testing"
	"time"

	"authgate.org/internal/authz"
)

func testSession(tokenID string) Session {
	now := time.Now().UTC()
	return Session{
		TokenID:   tokenID,
		UserID:    "user-1",
		Email:     "user@example.com",
		Apps:      map[string]authz.AppAccess{"auth": {Roles: []string{"admin"}, Permissions: []string{"*"}}},
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}
}

func TestMemoryStorePutGetDelete(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := store.Put(ctx, "tok-1", testSession("tok-1"), time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := store.Get(ctx, "tok-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.UserID != "user-1" || got.TokenID != "tok-1" {
		t.Fatalf("unexpected session: %+v", got)
	}

	if err := store.Delete(ctx, "tok-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, "tok-1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	// Deleting again must not error.
	if err := store.Delete(ctx, "tok-1"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestMemoryStoreExtend(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	if err := store.Extend(ctx, "missing", time.Hour); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := store.Put(ctx, "tok-1", testSession("tok-1"), time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Extend(ctx, "tok-1", 2*time.Hour); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if _, err := store.Get(ctx, "tok-1"); err != nil {
		t.Fatalf("Get after Extend: %v", err)
	}
}

func TestMemoryStoreRevocation(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	revoked, err := store.IsRevoked(ctx, "tok-1")
	if err != nil || revoked {
		t.Fatalf("fresh token must not be revoked: %v %v", revoked, err)
	}

	if err := store.Revoke(ctx, "tok-1", time.Hour); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	revoked, err = store.IsRevoked(ctx, "tok-1")
	if err != nil || !revoked {
		t.Fatalf("expected revoked, got %v %v", revoked, err)
	}

	// A non-positive TTL means the token is already expired; nothing to track.
	if err := store.Revoke(ctx, "tok-2", -time.Minute); err != nil {
		t.Fatalf("Revoke with negative ttl: %v", err)
	}
	revoked, _ = store.IsRevoked(ctx, "tok-2")
	if revoked {
		t.Fatal("expired token should not occupy the revocation list")
	}
}

func TestMemoryStoreFailureCounter(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	if n, err := store.Failures(ctx, "a@example.com"); err != nil || n != 0 {
		t.Fatalf("expected zero failures, got %d %v", n, err)
	}

	for want := 1; want <= 3; want++ {
		n, err := store.RecordFailure(ctx, "a@example.com", time.Minute)
		if err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
		if n != want {
			t.Fatalf("expected count %d, got %d", want, n)
		}
	}
	if n, _ := store.Failures(ctx, "a@example.com"); n != 3 {
		t.Fatalf("expected 3, got %d", n)
	}

	if err := store.ClearFailures(ctx, "a@example.com"); err != nil {
		t.Fatalf("ClearFailures: %v", err)
	}
	if n, _ := store.Failures(ctx, "a@example.com"); n != 0 {
		t.Fatalf("expected reset counter, got %d", n)
	}
}

func TestSessionIdentity(t *testing.T) {
	s := testSession("tok-1")
	id := s.Identity()
	if id.UserID != "user-1" || id.Email != "user@example.com" {
		t.Fatalf("unexpected identity: %+v", id)
	}
	if _, err := id.Access("auth"); err != nil {
		t.Fatalf("Access: %v", err)
	}

	var empty Session
	if empty.Identity().Apps == nil {
		t.Fatal("identity apps must never be nil")
	}
}
