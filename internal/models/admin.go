package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrAdminNotFound is returned when no admin matches.
var ErrAdminNotFound = errors.New("admin not found")

// Role is an admin's permission level.
type Role string

const (
	// RoleAdmin may create, end and delete sessions and remove participants.
	RoleAdmin Role = "admin"
	// RoleObserver may watch dashboards and streams but not mutate sessions.
	RoleObserver Role = "observer"
)

// ValidRole reports whether r is a known role.
func ValidRole(r Role) bool {
	return r == RoleAdmin || r == RoleObserver
}

// Admin is a presenter account allowed to create and run sessions.
type Admin struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	FullName  string    `json:"full_name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AdminPublic is Admin without sensitive fields for API responses.
type AdminPublic struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// ToPublic converts Admin to AdminPublic.
func (a *Admin) ToPublic() AdminPublic {
	return AdminPublic{
		ID:        a.ID,
		Email:     a.Email,
		FullName:  a.FullName,
		Role:      a.Role,
		CreatedAt: a.CreatedAt,
	}
}
