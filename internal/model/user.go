package model

import "time"

// Operator role constants. Admins hold every capability on every server,
// moderators can always view, viewers rely entirely on per-server grants.
const (
	RoleAdmin     = "admin"
	RoleModerator = "moderator"
	RoleViewer    = "viewer"
)

// User is an operator account. Users authenticate with API keys; the role
// feeds the permission engine's bypass rules.
type User struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Role      string    `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ValidRole reports whether s is a known operator role.
func ValidRole(s string) bool {
	switch s {
	case RoleAdmin, RoleModerator, RoleViewer:
		return true
	}
	return false
}
