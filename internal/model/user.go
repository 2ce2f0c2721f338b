package model

import "time"

// Role is the access level stored in users.role and carried in the
// JWT "role" claim.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleLibrarian Role = "librarian"
	RoleMember    Role = "member"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleLibrarian, RoleMember:
		return true
	}
	return false
}

// Staff reports whether the role may manage inventory and other
// users' loans (librarian or admin).
func (r Role) Staff() bool { return r == RoleAdmin || r == RoleLibrarian }

// User mirrors the `users` table.
type User struct {
	ID           uint64    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	Role         Role      `json:"role"`
	Phone        *string   `json:"phone,omitempty"`
	Address      *string   `json:"address,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FullName joins first and last name for display.
func (u *User) FullName() string { return u.FirstName + " " + u.LastName }

// UserStats aggregates user counts for the admin surface.
type UserStats struct {
	TotalUsers     int64 `json:"total_users"`
	ActiveUsers    int64 `json:"active_users"`
	AdminCount     int64 `json:"admin_count"`
	LibrarianCount int64 `json:"librarian_count"`
	MemberCount    int64 `json:"member_count"`
}
