// Package logging configures the process-wide zerolog logger and hands out
// component-scoped child loggers, the way cuemby-warren's pkg/log does.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config controls the global logger.
type Config struct {
	Level string // debug, info, warn, error
	JSON  bool
}

// Logger is the process-wide logger. Init must be called once before any
// subsystem starts; until then it defaults to info-level console output.
var Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).Level(zerolog.InfoLevel).With().Timestamp().Logger()

// Init configures Logger from cfg. Called once from the lifecycle driver
// after flags are parsed.
func Init(cfg Config) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.JSON {
		Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
		return
	}
	Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()
}

// Component returns a child logger tagged with the given subsystem name,
// e.g. "supervisor", "autoscaler", "proxy", "stats".
func Component(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}
