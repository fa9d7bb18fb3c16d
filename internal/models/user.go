package models

// Role determines which parts of the API a user may reach
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether the role is one of the known values
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User represents a registered participant or administrator
type User struct {
	Username     string `json:"username"`
	Name         string `json:"name"`
	Role         Role   `json:"role"`
	PasswordHash string `json:"-"` // Never serialize
}

// IsAdmin reports whether the user may reach the admin surface
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
