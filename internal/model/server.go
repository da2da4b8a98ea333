package model

import "time"

// Server lifecycle status constants.
const (
	StatusStopped      = "stopped"
	StatusDownloading  = "downloading"
	StatusInitializing = "initializing"
	StatusStarting     = "starting"
	StatusRunning      = "running"
	StatusStopping     = "stopping"
	StatusError        = "error"
)

// ServerInstance is a managed Minecraft server: its identity, resource
// allocation and lifecycle state. The RCON password is minted at provision
// time and never leaves the API.
type ServerInstance struct {
	ID             string     `json:"id" db:"id"`
	Name           string     `json:"name" db:"name"`
	Description    string     `json:"description" db:"description"`
	Flavor         string     `json:"flavor" db:"flavor"`
	Version        string     `json:"version" db:"version"`
	GamePort       int        `json:"game_port" db:"game_port"`
	RconPort       int        `json:"rcon_port" db:"rcon_port"`
	QueryPort      int        `json:"query_port" db:"query_port"`
	RconPassword   string     `json:"-" db:"rcon_password"`
	MemoryMB       int        `json:"memory_mb" db:"memory_mb"`
	ContainerID    *string    `json:"container_id,omitempty" db:"container_id"`
	ContainerName  string     `json:"container_name" db:"container_name"`
	Status         string     `json:"status" db:"status"`
	HasBeenStarted bool       `json:"has_been_started" db:"has_been_started"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
	LastStartedAt  *time.Time `json:"last_started_at,omitempty" db:"last_started_at"`
	LastStoppedAt  *time.Time `json:"last_stopped_at,omitempty" db:"last_stopped_at"`
}
