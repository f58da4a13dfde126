package models

import "time"

// UserRole represents the roles recognised by the registrar back office.
type UserRole string

const (
	RoleStudent    UserRole = "student"
	RoleAccounting UserRole = "accounting"
	RoleAdmin      UserRole = "admin"
)

// IsStaff reports whether the role belongs to registrar or accounting staff.
func (r UserRole) IsStaff() bool {
	return r == RoleAdmin || r == RoleAccounting
}

// User represents an authenticated actor stored in the users table.
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	FullName     string    `db:"full_name" json:"fullName"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         UserRole  `db:"role" json:"role"`
	IsActive     bool      `db:"is_active" json:"isActive"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
