package model

// ServerStats is a live snapshot of one server. Fields degrade to zero
// values when a source (container runtime, query port) is unreachable.
type ServerStats struct {
	ServerID      string   `json:"server_id"`
	Status        string   `json:"status"`
	OnlinePlayers int      `json:"online_players"`
	MaxPlayers    int      `json:"max_players"`
	CPUPercent    float64  `json:"cpu_percent"`
	MemoryUsedMB  float64  `json:"memory_used_mb"`
	MemoryLimitMB float64  `json:"memory_limit_mb"`
	Players       []string `json:"players,omitempty"`
}

// PlayerList is the parsed result of the in-game "list" command.
type PlayerList struct {
	Online int      `json:"online"`
	Max    int      `json:"max"`
	Names  []string `json:"names"`
}
