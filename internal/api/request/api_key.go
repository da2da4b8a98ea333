package request

// CreateAPIKey holds the request body for issuing an API key.
type CreateAPIKey struct {
	UserID string `json:"user_id" validate:"required"`
	Name   string `json:"name" validate:"required,min=1,max=255"`
}
