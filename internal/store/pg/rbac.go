package pg

import (
	"context"
	"sort"

	"authgate.org/internal/account"
	"authgate.org/internal/authz"
	"authgate.org/internal/ids"
)

var _ account.Store = (*Store)(nil)

func (s *Store) CreateApplication(ctx context.Context, app *account.Application) error {
	if app.ID == "" {
		app.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into applications (id, name, description)
		values ($1, $2, $3)
		returning created_at
	`, app.ID, app.Name, app.Description)
	if err := row.Scan(&app.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return account.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListApplications(ctx context.Context) ([]account.Application, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, name, description, created_at from applications order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var apps []account.Application
	for rows.Next() {
		var app account.Application
		if err := rows.Scan(&app.ID, &app.Name, &app.Description, &app.CreatedAt); err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

func (s *Store) CreateRole(ctx context.Context, role *account.Role) error {
	if role.ID == "" {
		role.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into roles (id, application_id, name, description)
		values ($1, $2, $3, $4)
		returning created_at, updated_at
	`, role.ID, role.ApplicationID, role.Name, role.Description)
	if err := row.Scan(&role.CreatedAt, &role.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return account.ErrConflict
			case pgErrForeignKeyViolation:
				return account.ErrNotFound
			}
		}
		return err
	}
	return nil
}

func (s *Store) SetRolePermissions(ctx context.Context, roleID string, permissionKeys []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`delete from role_permissions where role_id = $1`, roleID); err != nil {
		return err
	}
	for _, key := range permissionKeys {
		if _, err := tx.ExecContext(ctx, `
			insert into permissions (id, key) values ($1, $2)
			on conflict (key) do nothing
		`, ids.New(), key); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			insert into role_permissions (role_id, permission_id)
			select $1, id from permissions where key = $2
		`, roleID, key); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) AssignRole(ctx context.Context, a account.Assignment) error {
	_, err := s.db.ExecContext(ctx, `
		insert into user_roles (user_id, role_id)
		values ($1, $2)
		on conflict do nothing
	`, a.UserID, a.RoleID)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return account.ErrNotFound
		}
	}
	return err
}

func (s *Store) RemoveAssignment(ctx context.Context, userID, roleID string) error {
	res, err := s.db.ExecContext(ctx,
		`delete from user_roles where user_id = $1 and role_id = $2`, userID, roleID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// AppAccess resolves the user's applications, roles and permissions into the
// snapshot embedded in tokens. One query; deduplication happens in memory.
func (s *Store) AppAccess(ctx context.Context, userID string) (map[string]authz.AppAccess, error) {
	rows, err := s.db.QueryContext(ctx, `
		select a.name, r.name, coalesce(p.key, '')
		from user_roles ur
		join roles r on r.id = ur.role_id
		join applications a on a.id = r.application_id
		left join role_permissions rp on rp.role_id = r.id
		left join permissions p on p.id = rp.permission_id
		where ur.user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type set = map[string]struct{}
	roleSets := map[string]set{}
	permSets := map[string]set{}

	for rows.Next() {
		var appName, roleName, permKey string
		if err := rows.Scan(&appName, &roleName, &permKey); err != nil {
			return nil, err
		}
		if roleSets[appName] == nil {
			roleSets[appName] = set{}
			permSets[appName] = set{}
		}
		roleSets[appName][roleName] = struct{}{}
		if permKey != "" {
			permSets[appName][permKey] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	access := make(map[string]authz.AppAccess, len(roleSets))
	for app, roles := range roleSets {
		access[app] = authz.AppAccess{
			Roles:       sortedKeys(roles),
			Permissions: sortedKeys(permSets[app]),
		}
	}
	return access, nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
