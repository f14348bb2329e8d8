// Package authz decides whether an authenticated identity may perform an
// action. Decisions use the snapshot captured at token issue time, never a
// live store query, so role changes take effect at the next login.
package authz

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	// PermissionWildcard grants every permission within an application.
	PermissionWildcard = "*"
	// RoleSuperAdmin short-circuits every role and permission check.
	RoleSuperAdmin = "super_admin"
)

// ErrNoAppAccess indicates the identity has no assignment for the application.
var ErrNoAppAccess = errors.New("authz: no access to application")

// AppAccess is the per-application authorization snapshot embedded in tokens
// and sessions.
type AppAccess struct {
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// Identity is the typed authentication/authorization context threaded through
// request handling in place of ad hoc request augmentation.
type Identity struct {
	UserID string
	Email  string
	Apps   map[string]AppAccess
}

// Denial explains a failed authorization check. It names the missing
// capability and the caller's actual set; the identity is the caller's own,
// so echoing it back leaks nothing in this threat model.
type Denial struct {
	App               string   `json:"app"`
	MissingPermission string   `json:"missing_permission,omitempty"`
	MissingRoles      []string `json:"missing_roles,omitempty"`
	Permissions       []string `json:"permissions"`
	Roles             []string `json:"roles"`
}

func (d *Denial) Error() string {
	if d.MissingPermission != "" {
		return fmt.Sprintf("authz: missing permission %q for application %q", d.MissingPermission, d.App)
	}
	return fmt.Sprintf("authz: missing role (one of %s) for application %q", strings.Join(d.MissingRoles, ", "), d.App)
}

// Access returns the snapshot for app, or ErrNoAppAccess.
func (id Identity) Access(app string) (AppAccess, error) {
	access, ok := id.Apps[app]
	if !ok {
		return AppAccess{}, ErrNoAppAccess
	}
	return access, nil
}

// IsSuperAdmin reports whether any application grants the super-admin role.
func (id Identity) IsSuperAdmin() bool {
	for _, access := range id.Apps {
		for _, role := range access.Roles {
			if role == RoleSuperAdmin {
				return true
			}
		}
	}
	return false
}

// RequirePermission allows when the snapshot for app contains perm, the
// wildcard permission, or the super-admin role. Denials are *Denial values.
func RequirePermission(id Identity, app, perm string) error {
	if id.IsSuperAdmin() {
		return nil
	}
	access, err := id.Access(app)
	if err != nil {
		return &Denial{App: app, MissingPermission: perm, Permissions: []string{}, Roles: []string{}}
	}
	for _, p := range access.Permissions {
		if p == perm || p == PermissionWildcard {
			return nil
		}
	}
	return &Denial{
		App:               app,
		MissingPermission: perm,
		Permissions:       sortedCopy(access.Permissions),
		Roles:             sortedCopy(access.Roles),
	}
}

// RequireRole allows when the snapshot for app contains any of roles or the
// super-admin role.
func RequireRole(id Identity, app string, roles ...string) error {
	if id.IsSuperAdmin() {
		return nil
	}
	access, err := id.Access(app)
	if err != nil {
		return &Denial{App: app, MissingRoles: roles, Permissions: []string{}, Roles: []string{}}
	}
	for _, have := range access.Roles {
		for _, want := range roles {
			if have == want {
				return nil
			}
		}
	}
	return &Denial{
		App:          app,
		MissingRoles: roles,
		Permissions:  sortedCopy(access.Permissions),
		Roles:        sortedCopy(access.Roles),
	}
}

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}
