package account

import "time"

// User is an identity record. Users are deactivated, never physically
// deleted, so audit history stays intact.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Active       bool       `json:"active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	PasswordHash string     `json:"-"`
}

// Application is a named downstream system that defines its own roles.
type Application struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Role groups permissions within one application. Role names are unique per
// application.
type Role struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"application_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Assignment links a user to a role.
type Assignment struct {
	UserID        string    `json:"user_id"`
	RoleID        string    `json:"role_id"`
	ApplicationID string    `json:"application_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// UserUpdate carries optional field updates; nil means "leave unchanged".
type UserUpdate struct {
	Email     *string
	FirstName *string
	LastName  *string
}

// ListFilter narrows and pages user listings.
type ListFilter struct {
	Search  string
	Active  *bool
	Page    int
	PerPage int
	SortBy  string
	SortDir string
}

// Stats is the admin overview aggregate.
type Stats struct {
	TotalUsers       int `json:"total_users"`
	ActiveUsers      int `json:"active_users"`
	InactiveUsers    int `json:"inactive_users"`
	RecentLogins     int `json:"recent_logins"`
	CreatedThisMonth int `json:"created_this_month"`
}
