package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"authgate.org/internal/account"
	"authgate.org/internal/ids"
)

const userColumns = `id, email, first_name, last_name, password_hash, active, created_at, updated_at, last_login`

var allowedSortColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"last_login": "last_login",
	"email":      "email",
	"first_name": "first_name",
	"last_name":  "last_name",
}

func scanUser(row interface{ Scan(...any) error }) (account.User, error) {
	var (
		u         account.User
		lastLogin sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash,
		&u.Active, &u.CreatedAt, &u.UpdatedAt, &lastLogin)
	if err != nil {
		return account.User{}, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *account.User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, email, first_name, last_name, password_hash, active)
		values ($1, $2, $3, $4, $5, $6)
		returning created_at, updated_at
	`, u.ID, u.Email, u.FirstName, u.LastName, u.PasswordHash, u.Active)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return account.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) UserByID(ctx context.Context, id string) (account.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return account.User{}, account.ErrNotFound
	}
	return u, err
}

func (s *Store) UserByEmail(ctx context.Context, email string) (account.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email = $1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return account.User{}, account.ErrNotFound
	}
	return u, err
}

func (s *Store) ListUsers(ctx context.Context, filter account.ListFilter) ([]account.User, int, error) {
	var (
		where []string
		args  []any
	)
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		idx := len(args)
		where = append(where, fmt.Sprintf(
			"(email ilike $%d or first_name ilike $%d or last_name ilike $%d)", idx, idx, idx))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		where = append(where, fmt.Sprintf("active = $%d", len(args)))
	}
	whereClause := ""
	if len(where) > 0 {
		whereClause = " where " + strings.Join(where, " and ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`select count(*) from users`+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sortCol, ok := allowedSortColumns[filter.SortBy]
	if !ok {
		sortCol = "created_at"
	}
	sortDir := "desc"
	if strings.EqualFold(filter.SortDir, "asc") {
		sortDir = "asc"
	}

	args = append(args, filter.PerPage, (filter.Page-1)*filter.PerPage)
	query := fmt.Sprintf(`select %s from users%s order by %s %s limit $%d offset $%d`,
		userColumns, whereClause, sortCol, sortDir, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []account.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

func (s *Store) UpdateUser(ctx context.Context, id string, upd account.UserUpdate) (account.User, error) {
	var (
		set  []string
		args []any
	)
	if upd.Email != nil {
		args = append(args, *upd.Email)
		set = append(set, fmt.Sprintf("email = $%d", len(args)))
	}
	if upd.FirstName != nil {
		args = append(args, *upd.FirstName)
		set = append(set, fmt.Sprintf("first_name = $%d", len(args)))
	}
	if upd.LastName != nil {
		args = append(args, *upd.LastName)
		set = append(set, fmt.Sprintf("last_name = $%d", len(args)))
	}
	if len(set) > 0 {
		set = append(set, "updated_at = now()")
		args = append(args, id)
		query := fmt.Sprintf(`update users set %s where id = $%d`,
			strings.Join(set, ", "), len(args))
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return account.User{}, account.ErrConflict
			}
			return account.User{}, err
		}
		if aff, err := res.RowsAffected(); err == nil && aff == 0 {
			return account.User{}, account.ErrNotFound
		}
	}
	return s.UserByID(ctx, id)
}

func (s *Store) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set password_hash = $2, updated_at = now() where id = $1`, id, passwordHash)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) SetActive(ctx context.Context, id string, active bool) (account.User, error) {
	res, err := s.db.ExecContext(ctx,
		`update users set active = $2, updated_at = now() where id = $1`, id, active)
	if err != nil {
		return account.User{}, err
	}
	if err := requireAffected(res); err != nil {
		return account.User{}, err
	}
	return s.UserByID(ctx, id)
}

func (s *Store) TouchLastLogin(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set last_login = now() where id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) Stats(ctx context.Context) (account.Stats, error) {
	var st account.Stats
	err := s.db.QueryRowContext(ctx, `
		select
			count(*),
			count(*) filter (where active),
			count(*) filter (where not active),
			count(*) filter (where last_login >= now() - interval '7 days'),
			count(*) filter (where created_at >= date_trunc('month', now()))
		from users
	`).Scan(&st.TotalUsers, &st.ActiveUsers, &st.InactiveUsers, &st.RecentLogins, &st.CreatedThisMonth)
	return st, err
}

func requireAffected(res sql.Result) error {
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return account.ErrNotFound
	}
	return nil
}
