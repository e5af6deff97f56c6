package util

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// NewLogger builds the root logger. Component packages derive children via
// logger.With().Str("comp", "...").Logger().
func NewLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger().Level(lvl)
}
