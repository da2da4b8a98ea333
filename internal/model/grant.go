package model

import "time"

// Per-server capability constants. CapabilityManage implies all of the
// others when the permission engine evaluates a grant.
const (
	CapabilityView      = "view"
	CapabilityConsole   = "console"
	CapabilityStartStop = "start_stop"
	CapabilityFiles     = "files"
	CapabilityBackups   = "backups"
	CapabilityManage    = "manage"
)

// Grant assigns a set of capabilities on one server to one user. A user has
// at most one grant per server; granting again replaces the whole set.
type Grant struct {
	ID           string    `json:"id" db:"id"`
	UserID       string    `json:"user_id" db:"user_id"`
	ServerID     string    `json:"server_id" db:"server_id"`
	Capabilities []string  `json:"capabilities" db:"capabilities"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`

	// Joined from users for display.
	UserName string `json:"user_name,omitempty" db:"-"`
}

// ValidCapability reports whether s is a known capability.
func ValidCapability(s string) bool {
	switch s {
	case CapabilityView, CapabilityConsole, CapabilityStartStop,
		CapabilityFiles, CapabilityBackups, CapabilityManage:
		return true
	}
	return false
}
