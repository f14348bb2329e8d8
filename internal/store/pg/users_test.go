package pg

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"authgate.org/internal/account"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db), mock
}

func userRow(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "email", "first_name", "last_name", "password_hash",
		"active", "created_at", "updated_at", "last_login",
	}).AddRow("u1", "alice@example.com", "Alice", "Smith", "hash", true, now, now, nil)
}

func TestCreateUser(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery("insert into users").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	u := &account.User{Email: "alice@example.com", PasswordHash: "hash", Active: true}
	if err := store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.ID == "" {
		t.Fatal("expected a generated id")
	}
	if u.CreatedAt.IsZero() {
		t.Fatal("expected created_at from the database")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCreateUserConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("insert into users").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	u := &account.User{Email: "alice@example.com", PasswordHash: "hash"}
	if err := store.CreateUser(context.Background(), u); !errors.Is(err, account.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestUserByEmailNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select (.+) from users where email").
		WillReturnError(sql.ErrNoRows)

	if _, err := store.UserByEmail(context.Background(), "nobody@example.com"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserByID(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery("select (.+) from users where id").
		WithArgs("u1").
		WillReturnRows(userRow(now))

	u, err := store.UserByID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("UserByID: %v", err)
	}
	if u.Email != "alice@example.com" || u.LastLogin != nil {
		t.Fatalf("unexpected user: %+v", u)
	}
}

func TestListUsersSearch(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("select count(*) from users")).
		WithArgs("%ali%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("select (.+) from users(.+) order by created_at desc limit").
		WillReturnRows(userRow(now))

	users, total, err := store.ListUsers(context.Background(), account.ListFilter{
		Search: "ali", Page: 1, PerPage: 20,
	})
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if total != 1 || len(users) != 1 {
		t.Fatalf("expected one user, got %d/%d", len(users), total)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpdateUserNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	email := "new@example.com"

	mock.ExpectExec("update users set email").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := store.UpdateUser(context.Background(), "missing", account.UserUpdate{Email: &email})
	if !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTouchLastLoginMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("update users set last_login").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.TouchLastLogin(context.Background(), "missing"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStats(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select").
		WillReturnRows(sqlmock.NewRows([]string{"c1", "c2", "c3", "c4", "c5"}).
			AddRow(10, 7, 3, 4, 2))

	st, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.TotalUsers != 10 || st.ActiveUsers != 7 || st.InactiveUsers != 3 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestAppAccessSnapshot(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("from user_roles").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"app", "role", "perm"}).
			AddRow("auth", "admin", "*").
			AddRow("calculator", "power_user", "calc.basic").
			AddRow("calculator", "power_user", "calc.advanced").
			AddRow("calculator", "user", "calc.basic").
			AddRow("dashboard", "viewer", ""))

	access, err := store.AppAccess(context.Background(), "u1")
	if err != nil {
		t.Fatalf("AppAccess: %v", err)
	}
	calc, ok := access["calculator"]
	if !ok {
		t.Fatalf("missing calculator snapshot: %+v", access)
	}
	if len(calc.Roles) != 2 {
		t.Fatalf("roles must be deduplicated: %+v", calc.Roles)
	}
	if len(calc.Permissions) != 2 {
		t.Fatalf("permissions must be deduplicated: %+v", calc.Permissions)
	}
	dash := access["dashboard"]
	if len(dash.Permissions) != 0 {
		t.Fatalf("role without permissions must yield empty set: %+v", dash)
	}
}
