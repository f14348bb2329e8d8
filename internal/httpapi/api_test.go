package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"authgate.org/internal/account"
	"authgate.org/internal/authz"
	"authgate.org/internal/session"
	"authgate.org/internal/token"
)

type fakeStore struct {
	account.Store

	users  map[string]account.User
	access map[string]map[string]authz.AppAccess
}

func (f *fakeStore) UserByEmail(_ context.Context, email string) (account.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return account.User{}, account.ErrNotFound
}

func (f *fakeStore) UserByID(_ context.Context, id string) (account.User, error) {
	u, ok := f.users[id]
	if !ok {
		return account.User{}, account.ErrNotFound
	}
	return u, nil
}

func (f *fakeStore) AppAccess(_ context.Context, userID string) (map[string]authz.AppAccess, error) {
	return f.access[userID], nil
}

func (f *fakeStore) TouchLastLogin(_ context.Context, _ string) error { return nil }

func (f *fakeStore) ListUsers(_ context.Context, _ account.ListFilter) ([]account.User, int, error) {
	var out []account.User
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, len(out), nil
}

func (f *fakeStore) Stats(_ context.Context) (account.Stats, error) {
	return account.Stats{TotalUsers: len(f.users), ActiveUsers: len(f.users)}, nil
}

type fixture struct {
	api      *API
	handler  http.Handler
	sessions session.Store
	issuer   *token.Issuer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	adminHash, err := account.HashPassword("Adm1nSecret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	userHash, err := account.HashPassword("Us3rSecret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	store := &fakeStore{
		users: map[string]account.User{
			"admin-1": {ID: "admin-1", Email: "admin@example.com", PasswordHash: adminHash, Active: true},
			"user-1":  {ID: "user-1", Email: "user@example.com", PasswordHash: userHash, Active: true},
		},
		access: map[string]map[string]authz.AppAccess{
			"admin-1": {
				"auth": {Roles: []string{"admin"}, Permissions: []string{"*"}},
			},
			"user-1": {
				"calculator": {Roles: []string{"user"}, Permissions: []string{"calc.basic"}},
			},
		},
	}

	accounts, err := account.NewService(store)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	issuer, err := token.NewIssuer("test-secret", "authgate", time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	sessions := session.NewMemoryStore()
	t.Cleanup(func() { _ = sessions.Close() })

	api, err := New(Options{
		Accounts:      accounts,
		Sessions:      sessions,
		Issuer:        issuer,
		SessionTTL:    time.Hour,
		MaxFailures:   3,
		LockoutWindow: time.Minute,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{api: api, handler: api.Handler(), sessions: sessions, issuer: issuer}
}

func (f *fixture) do(t *testing.T, method, path, body, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) login(t *testing.T, email, password string) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/auth/login",
		`{"email":"`+email+`","password":"`+password+`"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("login response must carry a token")
	}
	return resp.Token
}

func TestLoginSuccess(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/auth/login",
		`{"email":"admin@example.com","password":"Adm1nSecret"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Success   bool      `json:"success"`
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expiresAt"`
		User      struct {
			Email string `json:"email"`
		} `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Token == "" || resp.User.Email != "admin@example.com" {
		t.Fatalf("unexpected response: %s", rec.Body.String())
	}
	if time.Until(resp.ExpiresAt) <= 0 {
		t.Fatal("expiresAt must be in the future")
	}
	if strings.Contains(rec.Body.String(), "password_hash") {
		t.Fatal("password hash leaked into the response")
	}
}

func TestLoginBadCredentials(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/auth/login",
		`{"email":"admin@example.com","password":"wrong"}`, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestLoginLockout(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 2; i++ {
		rec := f.do(t, http.MethodPost, "/auth/login",
			`{"email":"admin@example.com","password":"wrong"}`, "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, rec.Code)
		}
	}
	// Third failure crosses the threshold.
	rec := f.do(t, http.MethodPost, "/auth/login",
		`{"email":"admin@example.com","password":"wrong"}`, "")
	if rec.Code != http.StatusLocked {
		t.Fatalf("expected 423, got %d", rec.Code)
	}
	// Correct credentials are refused while locked.
	rec = f.do(t, http.MethodPost, "/auth/login",
		`{"email":"admin@example.com","password":"Adm1nSecret"}`, "")
	if rec.Code != http.StatusLocked {
		t.Fatalf("expected 423 while locked, got %d", rec.Code)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := newFixture(t)
	tok := f.login(t, "admin@example.com", "Adm1nSecret")

	if rec := f.do(t, http.MethodPost, "/auth/logout", "", tok); rec.Code != http.StatusOK {
		t.Fatalf("first logout: expected 200, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/auth/verify", "", tok); rec.Code != http.StatusUnauthorized {
		t.Fatalf("token must be dead after logout, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/auth/logout", "", tok); rec.Code != http.StatusOK {
		t.Fatalf("second logout: expected 200, got %d", rec.Code)
	}
}

func TestVerify(t *testing.T) {
	f := newFixture(t)
	tok := f.login(t, "user@example.com", "Us3rSecret")

	rec := f.do(t, http.MethodGet, "/auth/verify", "", tok)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Valid bool `json:"valid"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Valid || resp.User.ID != "user-1" {
		t.Fatalf("unexpected response: %s", rec.Body.String())
	}

	// POST form with the token in the body.
	rec = f.do(t, http.MethodPost, "/auth/verify", `{"token":"`+tok+`"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("POST verify: expected 200, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/auth/verify", "", "garbage")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", rec.Code)
	}
}

func TestVerifyRejectsTokenWithoutSession(t *testing.T) {
	f := newFixture(t)
	// A correctly signed token whose session was never created.
	signed, _, _, err := f.issuer.Issue(authz.Identity{UserID: "ghost", Email: "ghost@example.com"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	rec := f.do(t, http.MethodGet, "/auth/verify", "", signed)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a session, got %d", rec.Code)
	}
}

func TestValidateApp(t *testing.T) {
	f := newFixture(t)
	tok := f.login(t, "user@example.com", "Us3rSecret")

	rec := f.do(t, http.MethodGet, "/auth/validate/calculator", "", tok)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		App         string   `json:"app"`
		Roles       []string `json:"roles"`
		Permissions []string `json:"permissions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.App != "calculator" || len(resp.Roles) != 1 || resp.Roles[0] != "user" {
		t.Fatalf("unexpected response: %s", rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, "/auth/validate/dashboard", "", tok)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for unassigned app, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/auth/validate/calculator", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestUsersRequireManagePermission(t *testing.T) {
	f := newFixture(t)

	adminTok := f.login(t, "admin@example.com", "Adm1nSecret")
	userTok := f.login(t, "user@example.com", "Us3rSecret")

	if rec := f.do(t, http.MethodGet, "/users", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: expected 401, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/users", "", userTok); rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin: expected 403, got %d", rec.Code)
	}

	rec := f.do(t, http.MethodGet, "/users", "", adminTok)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 2 {
		t.Fatalf("expected 2 users, got %d", resp.Total)
	}
}

func TestUserStatsOverview(t *testing.T) {
	f := newFixture(t)
	adminTok := f.login(t, "admin@example.com", "Adm1nSecret")

	rec := f.do(t, http.MethodGet, "/users/stats/overview", "", adminTok)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Stats struct {
			TotalUsers int `json:"total_users"`
		} `json:"stats"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Stats.TotalUsers != 2 {
		t.Fatalf("unexpected stats: %s", rec.Body.String())
	}
}

func TestUsersExportCSV(t *testing.T) {
	f := newFixture(t)
	adminTok := f.login(t, "admin@example.com", "Adm1nSecret")

	rec := f.do(t, http.MethodGet, "/users/export/csv", "", adminTok)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("expected text/csv, got %q", ct)
	}
	cd := rec.Header().Get("Content-Disposition")
	if !strings.HasPrefix(cd, "attachment;") || !strings.Contains(cd, "users_export_") {
		t.Fatalf("unexpected Content-Disposition: %q", cd)
	}
	if !strings.HasPrefix(rec.Body.String(), "id,email,first_name") {
		t.Fatalf("unexpected CSV header: %q", rec.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(t, http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/readyz", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
