package models

import "time"

// UserRole represents the available roles for the RBAC system.
// Admin is the only role allowed to run privileged mutations
// (ordinance ingestion, invitations, user deletion).
type UserRole string

const (
	RoleAdmin       UserRole = "admin"
	RolePM          UserRole = "pm"
	RoleAR1Planning UserRole = "ar1_planning"
	RoleAR2Field    UserRole = "ar2_field"
	RoleUser        UserRole = "user"
	RoleModerator   UserRole = "moderator"
)

// ReviewerRoles are allowed to run AI compliance reviews.
var ReviewerRoles = []UserRole{RoleAdmin, RolePM, RoleAR1Planning, RoleAR2Field}

// ValidRole reports whether the role is one of the known assignments.
func ValidRole(r UserRole) bool {
	switch r {
	case RoleAdmin, RolePM, RoleAR1Planning, RoleAR2Field, RoleUser, RoleModerator:
		return true
	}
	return false
}

// User represents an application user stored in the users table.
// A user carries exactly one active role.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// UpdateUserRequest carries the mutable user fields.
type UpdateUserRequest struct {
	FullName string   `json:"full_name" validate:"required,min=2,max=120"`
	Role     UserRole `json:"role" validate:"required"`
	Active   *bool    `json:"active" validate:"required"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
