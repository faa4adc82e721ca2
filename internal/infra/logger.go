package infra

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the process logger. Production writes one JSON object per
// line; development writes colored console output. LOG_LEVEL overrides the
// environment's default level.
func NewLogger(cfg *Config) zerolog.Logger {
	return newLogger(cfg.AppEnv, cfg.LogLevel, os.Stdout)
}

func newLogger(appEnv, level string, out io.Writer) zerolog.Logger {
	dev := appEnv == "development"

	lvl := zerolog.InfoLevel
	if dev {
		lvl = zerolog.DebugLevel
	}
	if parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level))); err == nil && level != "" {
		lvl = parsed
	}

	w := out
	if dev {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Str("service", "crowdfund").
		Str("env", appEnv).
		Logger()
}
