package model

// Hub event type constants.
const (
	EventStatusUpdate     = "status_update"
	EventDownloadProgress = "download_progress"
	EventLogLine          = "log_line"
	EventError            = "error"
)

// Hub channel names. Default carries lifecycle events; the log channels are
// started on demand by their first subscriber.
const (
	ChannelDefault      = "default"
	ChannelGameLog      = "game_log"
	ChannelContainerLog = "container_log"
)

// Event is one message pushed to hub subscribers. Which fields are set
// depends on Type: status updates carry Status and optionally Message,
// download progress carries Layer/Current/Total alongside Status, log lines
// carry Line, errors carry Message.
type Event struct {
	Type     string `json:"type"`
	ServerID string `json:"server_id"`
	Status   string `json:"status,omitempty"`
	Message  string `json:"message,omitempty"`
	Line     string `json:"line,omitempty"`
	Layer    string `json:"layer,omitempty"`
	Current  int64  `json:"current,omitempty"`
	Total    int64  `json:"total,omitempty"`
}

// ValidChannel reports whether s names a hub channel.
func ValidChannel(s string) bool {
	switch s {
	case ChannelDefault, ChannelGameLog, ChannelContainerLog:
		return true
	}
	return false
}
