package request

// GrantPermission replaces a user's whole capability set on one server.
type GrantPermission struct {
	UserID       string   `json:"user_id" validate:"required"`
	Capabilities []string `json:"capabilities" validate:"required,min=1,dive,required"`
}
