package request

type ConsoleCommand struct {
	Command string `json:"command" validate:"required,min=1,max=2048"`
}

type ConsoleSay struct {
	Message string `json:"message" validate:"required,min=1,max=256"`
}
