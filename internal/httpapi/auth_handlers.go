package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"authgate.org/internal/account"
	"authgate.org/internal/authz"
	"authgate.org/internal/obs"
	"authgate.org/internal/session"
	"authgate.org/internal/token"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	lockKey := strings.ToLower(strings.TrimSpace(req.Email))
	if lockKey == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	failures, err := a.sessions.Failures(ctx, lockKey)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if failures >= a.maxFailures {
		writeError(w, r, http.StatusLocked, "account temporarily locked, try again later")
		return
	}

	user, apps, err := a.accounts.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, account.ErrInvalidCredentials) {
			count, recErr := a.sessions.RecordFailure(ctx, lockKey, a.lockoutWindow)
			if recErr != nil {
				writeError(w, r, http.StatusInternalServerError, "internal error")
				return
			}
			obs.Logger().Warn().Str("email", lockKey).Int("failures", count).Msg("login_failed")
			if count >= a.maxFailures {
				writeError(w, r, http.StatusLocked, "account temporarily locked, try again later")
				return
			}
			writeError(w, r, http.StatusUnauthorized, "invalid email or password")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	if err := a.sessions.ClearFailures(ctx, lockKey); err != nil {
		obs.Logger().Warn().Err(err).Msg("clear_failures")
	}

	id := authz.Identity{UserID: user.ID, Email: user.Email, Apps: apps}
	signed, tokenID, expiresAt, err := a.issuer.Issue(id)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	now := time.Now().UTC()
	sess := session.Session{
		TokenID:   tokenID,
		UserID:    user.ID,
		Email:     user.Email,
		Apps:      apps,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}
	if err := a.sessions.Put(ctx, tokenID, sess, a.sessionTTL); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if err := a.accounts.TouchLastLogin(ctx, user.ID); err != nil {
		obs.Logger().Warn().Err(err).Str("user_id", user.ID).Msg("touch_last_login")
	}

	obs.Logger().Info().Str("user_id", user.ID).Str("token_id", tokenID).Msg("login_success")
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"token":     signed,
		"user":      user,
		"expiresAt": expiresAt,
	})
}

// handleLogout revokes the presented token and removes its session. Logging
// out an already-expired token succeeds: the token is unusable either way.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	raw := bearerToken(r)
	if raw == "" {
		w.Header().Set("WWW-Authenticate", `Bearer realm="authgate"`)
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	_, claims, err := a.issuer.Verify(raw)
	if err != nil {
		if errors.Is(err, token.ErrExpiredToken) {
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "logged out"})
			return
		}
		a.writeAuthFailure(w, r, err)
		return
	}

	ctx := r.Context()
	remaining := time.Until(claims.ExpiresAt.Time)
	if err := a.sessions.Revoke(ctx, claims.ID, remaining); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if err := a.sessions.Delete(ctx, claims.ID); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	obs.Logger().Info().Str("token_id", claims.ID).Msg("logout")
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "logged out"})
}

type verifyRequest struct {
	Token string `json:"token"`
}

// handleVerify reports full token validity: signature, expiry, revocation
// list and session existence. GET reads the Authorization header, POST
// accepts the token in the body.
func (a *API) handleVerify(w http.ResponseWriter, r *http.Request) {
	var raw string
	switch r.Method {
	case http.MethodGet:
		raw = bearerToken(r)
	case http.MethodPost:
		var req verifyRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		raw = strings.TrimSpace(req.Token)
		if raw == "" {
			raw = bearerToken(r)
		}
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		return
	}
	if raw == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"valid": false, "error": "token is required"})
		return
	}

	id, claims, err := a.authenticate(r.Context(), raw)
	if err != nil {
		msg := "invalid token"
		if errors.Is(err, token.ErrExpiredToken) {
			msg = "token expired"
		}
		writeJSON(w, http.StatusUnauthorized, map[string]any{"valid": false, "error": msg})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid": true,
		"user": map[string]any{
			"id":    id.UserID,
			"email": id.Email,
		},
		"apps":       id.Apps,
		"expires_at": claims.ExpiresAt.Time,
	})
}

// handleValidate answers "may this caller use application X" from the token
// snapshot, returning the roles and permissions the caller holds there.
func (a *API) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	app := strings.Trim(strings.TrimPrefix(r.URL.Path, "/auth/validate/"), "/")
	if app == "" {
		writeError(w, r, http.StatusBadRequest, "application name is required")
		return
	}

	id, _ := authz.IdentityFromContext(r.Context())
	access, err := id.Access(app)
	if err != nil {
		if id.IsSuperAdmin() {
			access = authz.AppAccess{
				Roles:       []string{authz.RoleSuperAdmin},
				Permissions: []string{authz.PermissionWildcard},
			}
		} else {
			payload := map[string]any{
				"success": false,
				"error":   "no access to application",
				"app":     app,
			}
			if rid := RequestIDFromContext(r.Context()); rid != "" {
				payload["request_id"] = rid
			}
			writeJSON(w, http.StatusForbidden, payload)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"app":         app,
		"roles":       access.Roles,
		"permissions": access.Permissions,
	})
}
