package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"authgate.org/internal/authz"
	"authgate.org/internal/httpapi"
)

// Identity headers set for upstream services. Incoming values are always
// stripped first so a caller can never spoof them through the gateway.
const (
	HeaderUserID      = "X-User-Id"
	HeaderUserEmail   = "X-User-Email"
	HeaderRoles       = "X-User-Roles"
	HeaderPermissions = "X-User-Permissions"
)

// extractToken looks for credentials in order: Authorization header, the
// auth_token cookie, then a token query parameter.
func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if c, err := r.Cookie("auth_token"); err == nil && c.Value != "" {
		return c.Value
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func stripIdentityHeaders(r *http.Request) {
	r.Header.Del(HeaderUserID)
	r.Header.Del(HeaderUserEmail)
	r.Header.Del(HeaderRoles)
	r.Header.Del(HeaderPermissions)
}

// injectIdentity replaces any caller-supplied identity headers with the
// verified identity's roles and permissions for the route's application.
func injectIdentity(r *http.Request, id authz.Identity, app string) {
	stripIdentityHeaders(r)
	r.Header.Set(HeaderUserID, id.UserID)
	r.Header.Set(HeaderUserEmail, id.Email)

	access, err := id.Access(app)
	if err != nil && id.IsSuperAdmin() {
		access = authz.AppAccess{
			Roles:       []string{authz.RoleSuperAdmin},
			Permissions: []string{authz.PermissionWildcard},
		}
	}
	r.Header.Set(HeaderRoles, strings.Join(access.Roles, ","))
	r.Header.Set(HeaderPermissions, strings.Join(access.Permissions, ","))
}

// IdentityFromHeaders reconstructs the gateway-injected identity on the
// backend side. The backend scope is the single application it serves.
func IdentityFromHeaders(r *http.Request, app string) (authz.Identity, bool) {
	userID := r.Header.Get(HeaderUserID)
	if userID == "" {
		return authz.Identity{}, false
	}
	return authz.Identity{
		UserID: userID,
		Email:  r.Header.Get(HeaderUserEmail),
		Apps: map[string]authz.AppAccess{
			app: {
				Roles:       splitCSV(r.Header.Get(HeaderRoles)),
				Permissions: splitCSV(r.Header.Get(HeaderPermissions)),
			},
		},
	}, true
}

func splitCSV(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"success": false,
		"error":   msg,
	}
	if rid := httpapi.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}
