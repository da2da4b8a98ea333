package request

// CreateServer provisions a new instance. Zero ports mean "allocate from the
// configured ranges"; zero memory means the configured default.
type CreateServer struct {
	Name        string `json:"name" validate:"required,slug"`
	Description string `json:"description" validate:"omitempty,max=1024"`
	Flavor      string `json:"flavor" validate:"required"`
	Version     string `json:"version" validate:"omitempty,mcversion"`
	MemoryMB    int    `json:"memory_mb" validate:"omitempty,min=512"`
	GamePort    int    `json:"game_port" validate:"omitempty,min=1,max=65535"`
	RconPort    int    `json:"rcon_port" validate:"omitempty,min=1,max=65535"`
	QueryPort   int    `json:"query_port" validate:"omitempty,min=1,max=65535"`
}

// UpdateServer carries the mutable fields of a stopped server. Absent fields
// are left untouched.
type UpdateServer struct {
	Name        *string `json:"name" validate:"omitempty,slug"`
	Description *string `json:"description" validate:"omitempty,max=1024"`
	MemoryMB    *int    `json:"memory_mb" validate:"omitempty,min=512"`
}
