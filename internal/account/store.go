package account

import (
	"context"

	"authgate.org/internal/authz"
)

// Store describes persistence operations required by the account subsystem.
// All implementations use parameterized queries exclusively.
type Store interface {
	CreateUser(ctx context.Context, u *User) error
	UserByID(ctx context.Context, id string) (User, error)
	UserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context, filter ListFilter) ([]User, int, error)
	UpdateUser(ctx context.Context, id string, upd UserUpdate) (User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	SetActive(ctx context.Context, id string, active bool) (User, error)
	TouchLastLogin(ctx context.Context, id string) error
	Stats(ctx context.Context) (Stats, error)

	// AppAccess resolves the denormalized role/permission snapshot embedded
	// into tokens at issue time.
	AppAccess(ctx context.Context, userID string) (map[string]authz.AppAccess, error)

	CreateApplication(ctx context.Context, app *Application) error
	ListApplications(ctx context.Context) ([]Application, error)
	CreateRole(ctx context.Context, role *Role) error
	SetRolePermissions(ctx context.Context, roleID string, permissionKeys []string) error
	AssignRole(ctx context.Context, a Assignment) error
	RemoveAssignment(ctx context.Context, userID, roleID string) error
}
