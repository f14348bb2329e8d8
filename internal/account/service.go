package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"authgate.org/internal/authz"
)

// Service provides validated account operations on top of a Store.
type Service struct {
	store Store
}

// NewService constructs a Service.
func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("account store is required")
	}
	return &Service{store: store}, nil
}

// Authenticate checks credentials and returns the user together with its
// authorization snapshot. Unknown email, bad password and deactivated users
// all collapse into ErrInvalidCredentials so responses do not reveal which
// part failed.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, map[string]authz.AppAccess, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return User{}, nil, ErrInvalidCredentials
	}
	user, err := s.store.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, nil, ErrInvalidCredentials
		}
		return User{}, nil, err
	}
	if !user.Active {
		return User{}, nil, ErrInvalidCredentials
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return User{}, nil, ErrInvalidCredentials
	}
	apps, err := s.store.AppAccess(ctx, user.ID)
	if err != nil {
		return User{}, nil, err
	}
	return user, apps, nil
}

// AppAccess returns the current snapshot for a user.
func (s *Service) AppAccess(ctx context.Context, userID string) (map[string]authz.AppAccess, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return s.store.AppAccess(ctx, userID)
}

// TouchLastLogin records a successful login.
func (s *Service) TouchLastLogin(ctx context.Context, userID string) error {
	return s.store.TouchLastLogin(ctx, userID)
}

// CreateUser validates input, hashes the password and persists the user.
func (s *Service) CreateUser(ctx context.Context, email, password, firstName, lastName string) (User, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return User{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if err := ValidatePassword(password); err != nil {
		return User{}, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return User{}, err
	}
	user := &User{
		Email:        email,
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
		Active:       true,
		PasswordHash: hash,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return User{}, err
	}
	return *user, nil
}

// User loads a single user.
func (s *Service) User(ctx context.Context, id string) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return s.store.UserByID(ctx, id)
}

// ListUsers pages through users; filter defaults are applied here.
func (s *Service) ListUsers(ctx context.Context, filter ListFilter) ([]User, int, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PerPage < 1 || filter.PerPage > 100 {
		filter.PerPage = 20
	}
	return s.store.ListUsers(ctx, filter)
}

// UpdateUser applies optional profile updates.
func (s *Service) UpdateUser(ctx context.Context, id string, upd UserUpdate) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if upd.Email != nil {
		email := normalizeEmail(*upd.Email)
		if email == "" || !strings.Contains(email, "@") {
			return User{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
		}
		upd.Email = &email
	}
	if upd.FirstName != nil {
		v := strings.TrimSpace(*upd.FirstName)
		upd.FirstName = &v
	}
	if upd.LastName != nil {
		v := strings.TrimSpace(*upd.LastName)
		upd.LastName = &v
	}
	return s.store.UpdateUser(ctx, id, upd)
}

// UpdatePassword validates and rehashes a user's password.
func (s *Service) UpdatePassword(ctx context.Context, id, password string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if err := ValidatePassword(password); err != nil {
		return err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	return s.store.UpdatePassword(ctx, id, hash)
}

// SetActive toggles the active flag.
func (s *Service) SetActive(ctx context.Context, id string, active bool) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return s.store.SetActive(ctx, id, active)
}

// DeactivateUser soft-deletes a user. Physical deletion is deliberately not
// offered.
func (s *Service) DeactivateUser(ctx context.Context, id string) error {
	_, err := s.SetActive(ctx, id, false)
	return err
}

// Stats returns the admin overview aggregate.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.store.Stats(ctx)
}

// ExportUsers returns the full user listing for CSV export.
func (s *Service) ExportUsers(ctx context.Context) ([]User, error) {
	users, _, err := s.store.ListUsers(ctx, ListFilter{Page: 1, PerPage: 10000})
	return users, err
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
