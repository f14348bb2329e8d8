package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"authgate.org/internal/authz"
	"authgate.org/internal/session"
	"authgate.org/internal/token"
)

// AppAuth is the application name the auth service's own admin endpoints are
// gated on.
const AppAuth = "auth"

// PermManageUsers gates the admin user-management endpoints.
const PermManageUsers = "users.manage"

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// authenticate runs the full validity chain: signature and expiry, the
// revocation list, then live session existence. A token that passes slides
// its session TTL forward.
func (a *API) authenticate(ctx context.Context, raw string) (authz.Identity, *token.Claims, error) {
	id, claims, err := a.issuer.Verify(raw)
	if err != nil {
		return authz.Identity{}, nil, err
	}
	revoked, err := a.sessions.IsRevoked(ctx, claims.ID)
	if err != nil {
		return authz.Identity{}, nil, err
	}
	if revoked {
		return authz.Identity{}, nil, token.ErrInvalidToken
	}
	if _, err := a.sessions.Get(ctx, claims.ID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return authz.Identity{}, nil, token.ErrInvalidToken
		}
		return authz.Identity{}, nil, err
	}
	if err := a.sessions.Extend(ctx, claims.ID, a.sessionTTL); err != nil && !errors.Is(err, session.ErrNotFound) {
		return authz.Identity{}, nil, err
	}
	return id, claims, nil
}

// requireAuth guards a handler behind a valid bearer token and places the
// identity in the request context.
func (a *API) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="authgate"`)
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		id, claims, err := a.authenticate(r.Context(), raw)
		if err != nil {
			a.writeAuthFailure(w, r, err)
			return
		}
		ctx := authz.ContextWithIdentity(r.Context(), id)
		ctx = authz.ContextWithToken(ctx, claims.ID)
		next(w, r.WithContext(ctx))
	}
}

// requirePermission layers an authorization check on requireAuth.
func (a *API) requirePermission(perm string, next http.HandlerFunc) http.HandlerFunc {
	return a.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		id, _ := authz.IdentityFromContext(r.Context())
		if err := authz.RequirePermission(id, AppAuth, perm); err != nil {
			writeDenial(w, r, err)
			return
		}
		next(w, r)
	})
}

func (a *API) writeAuthFailure(w http.ResponseWriter, r *http.Request, err error) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="authgate"`)
	switch {
	case errors.Is(err, token.ErrExpiredToken):
		writeError(w, r, http.StatusUnauthorized, "token expired")
	case errors.Is(err, token.ErrInvalidToken):
		writeError(w, r, http.StatusUnauthorized, "invalid token")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func writeDenial(w http.ResponseWriter, r *http.Request, err error) {
	var denial *authz.Denial
	if !errors.As(err, &denial) {
		writeError(w, r, http.StatusForbidden, "access denied")
		return
	}
	payload := map[string]any{
		"success": false,
		"error":   denial.Error(),
		"details": denial,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, http.StatusForbidden, payload)
}
