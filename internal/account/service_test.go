package account

import (
	"context"
	"errors"
	"testing"

	"authgate.org/internal/authz"
)

// fakeStore implements the subset of Store the service tests exercise;
// calls outside that subset panic via the embedded nil interface.
type fakeStore struct {
	Store

	users       map[string]User
	access      map[string]map[string]authz.AppAccess
	lastLogins  []string
	createdUser *User
	listFilter  ListFilter
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:  map[string]User{},
		access: map[string]map[string]authz.AppAccess{},
	}
}

func (f *fakeStore) UserByEmail(_ context.Context, email string) (User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (f *fakeStore) UserByID(_ context.Context, id string) (User, error) {
	u, ok := f.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (f *fakeStore) AppAccess(_ context.Context, userID string) (map[string]authz.AppAccess, error) {
	return f.access[userID], nil
}

func (f *fakeStore) TouchLastLogin(_ context.Context, id string) error {
	f.lastLogins = append(f.lastLogins, id)
	return nil
}

func (f *fakeStore) CreateUser(_ context.Context, u *User) error {
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return ErrConflict
		}
	}
	u.ID = "generated-id"
	f.users[u.ID] = *u
	f.createdUser = u
	return nil
}

func (f *fakeStore) ListUsers(_ context.Context, filter ListFilter) ([]User, int, error) {
	f.listFilter = filter
	return nil, 0, nil
}

func mustService(t *testing.T, store Store) *Service {
	t.Helper()
	svc, err := NewService(store)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func addUser(t *testing.T, store *fakeStore, id, email, password string, active bool) {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	store.users[id] = User{ID: id, Email: email, PasswordHash: hash, Active: active}
}

func TestAuthenticate(t *testing.T) {
	store := newFakeStore()
	addUser(t, store, "u1", "alice@example.com", "Sup3rSecret", true)
	store.access["u1"] = map[string]authz.AppAccess{
		"auth": {Roles: []string{"admin"}, Permissions: []string{"*"}},
	}
	svc := mustService(t, store)
	ctx := context.Background()

	user, apps, err := svc.Authenticate(ctx, "  ALICE@example.com ", "Sup3rSecret")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if user.ID != "u1" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if _, ok := apps["auth"]; !ok {
		t.Fatalf("expected auth snapshot, got %+v", apps)
	}
}

func TestAuthenticateFailuresCollapse(t *testing.T) {
	store := newFakeStore()
	addUser(t, store, "u1", "alice@example.com", "Sup3rSecret", true)
	addUser(t, store, "u2", "bob@example.com", "Sup3rSecret", false)
	svc := mustService(t, store)
	ctx := context.Background()

	cases := []struct {
		name            string
		email, password string
	}{
		{"unknown email", "nobody@example.com", "Sup3rSecret"},
		{"wrong password", "alice@example.com", "WrongPass1"},
		{"deactivated user", "bob@example.com", "Sup3rSecret"},
		{"empty credentials", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.Authenticate(ctx, tc.email, tc.password)
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("expected ErrInvalidCredentials, got %v", err)
			}
		})
	}
}

func TestCreateUserValidation(t *testing.T) {
	store := newFakeStore()
	svc := mustService(t, store)
	ctx := context.Background()

	if _, err := svc.CreateUser(ctx, "not-an-email", "Sup3rSecret", "A", "B"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for bad email, got %v", err)
	}
	if _, err := svc.CreateUser(ctx, "a@example.com", "weak", "A", "B"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for weak password, got %v", err)
	}

	user, err := svc.CreateUser(ctx, " Carol@Example.COM ", "Sup3rSecret", " Carol ", " Jones ")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.Email != "carol@example.com" {
		t.Fatalf("email must be normalized, got %q", user.Email)
	}
	if user.FirstName != "Carol" || user.LastName != "Jones" {
		t.Fatalf("names must be trimmed: %+v", user)
	}
	if !user.Active {
		t.Fatal("new users start active")
	}
	if store.createdUser.PasswordHash == "Sup3rSecret" {
		t.Fatal("password must be stored hashed")
	}

	if _, err := svc.CreateUser(ctx, "carol@example.com", "Sup3rSecret", "C", "J"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate email, got %v", err)
	}
}

func TestListUsersDefaults(t *testing.T) {
	store := newFakeStore()
	svc := mustService(t, store)
	ctx := context.Background()

	if _, _, err := svc.ListUsers(ctx, ListFilter{}); err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if store.listFilter.Page != 1 || store.listFilter.PerPage != 20 {
		t.Fatalf("defaults not applied: %+v", store.listFilter)
	}

	if _, _, err := svc.ListUsers(ctx, ListFilter{Page: 3, PerPage: 500}); err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if store.listFilter.Page != 3 || store.listFilter.PerPage != 20 {
		t.Fatalf("per-page cap not applied: %+v", store.listFilter)
	}
}
