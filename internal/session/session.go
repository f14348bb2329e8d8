// Package session is the expiring key-value layer behind token revocation
// and session tracking. Sessions are keyed by token id, so concurrent logins
// for one user are independent sessions and revoking one leaves the others
// intact.
package session

import (
	"context"
	"errors"
	"time"

	"authgate.org/internal/authz"
)

// ErrNotFound indicates no live session for the key. Absence is not a
// failure: callers treat it as "no active session" and deny access.
var ErrNotFound = errors.New("session: not found")

// Session is the server-side record correlating a token to a user and the
// authorization snapshot taken at issue time.
type Session struct {
	TokenID   string                     `json:"token_id"`
	UserID    string                     `json:"user_id"`
	Email     string                     `json:"email"`
	Apps      map[string]authz.AppAccess `json:"apps"`
	IssuedAt  time.Time                  `json:"issued_at"`
	ExpiresAt time.Time                  `json:"expires_at"`
}

// Identity converts the stored snapshot back to an authorization identity.
func (s Session) Identity() authz.Identity {
	apps := s.Apps
	if apps == nil {
		apps = map[string]authz.AppAccess{}
	}
	return authz.Identity{UserID: s.UserID, Email: s.Email, Apps: apps}
}

// Store is the expiring key-value contract shared by the auth service and
// the gateway. Every entry self-prunes via TTL; the revocation list never
// needs explicit cleanup.
type Store interface {
	// Put stores a session under its token id.
	Put(ctx context.Context, tokenID string, s Session, ttl time.Duration) error
	// Get returns the session or ErrNotFound.
	Get(ctx context.Context, tokenID string) (Session, error)
	// Extend resets the session TTL; ErrNotFound when it no longer exists.
	Extend(ctx context.Context, tokenID string, ttl time.Duration) error
	// Delete removes the session. Deleting an absent session is not an error.
	Delete(ctx context.Context, tokenID string) error

	// Revoke records a revocation marker that lives for the token's
	// remaining lifetime.
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	// IsRevoked reports whether the token id is on the revocation list.
	IsRevoked(ctx context.Context, tokenID string) (bool, error)

	// RecordFailure bumps the failed-login counter for key and returns the
	// new count. The counter expires after window.
	RecordFailure(ctx context.Context, key string, window time.Duration) (int, error)
	// Failures returns the current failed-login count for key.
	Failures(ctx context.Context, key string) (int, error)
	// ClearFailures resets the counter after a successful login.
	ClearFailures(ctx context.Context, key string) error

	Close() error
}
