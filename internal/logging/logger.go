package logging

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/craftyard/craftyard/internal/config"
)

// NewLogger creates the root zerolog.Logger. Components derive children with
// logger.With().Str("component", ...).
func NewLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "craftyard-api").
		Logger()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	return logger.Level(level)
}
