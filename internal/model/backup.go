package model

import "time"

// Backup is a point-in-time archive of a server's data directory stored in
// the object store under ObjectKey.
type Backup struct {
	ID        string    `json:"id" db:"id"`
	ServerID  string    `json:"server_id" db:"server_id"`
	ObjectKey string    `json:"object_key" db:"object_key"`
	SizeBytes int64     `json:"size_bytes" db:"size_bytes"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
