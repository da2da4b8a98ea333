package request

type CreateUser struct {
	Name string `json:"name" validate:"required,slug"`
	Role string `json:"role" validate:"required,oneof=admin moderator viewer"`
}

type UpdateUserRole struct {
	Role string `json:"role" validate:"required,oneof=admin moderator viewer"`
}
