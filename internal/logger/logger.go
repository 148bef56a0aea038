// Package logger provides structured logging with subsystem-specific levels
// and a destination that can be redirected mid-run, since the takeover
// pivot moves the process's effective root out from under any open log
// file (§4.3 step 6 of the design: logging starts on the console, then
// switches to a file inside the staging tree, and again to an external
// log partition if one is configured).
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

type contextKey string

const loggerKey contextKey = "logger"

// Subsystem names for per-subsystem logging configuration.
const (
	SubsystemStage1    = "STAGE1"
	SubsystemStaging   = "STAGING"
	SubsystemPivot     = "PIVOT"
	SubsystemInit      = "INIT"
	SubsystemReaper    = "REAPER"
	SubsystemFlash     = "FLASH"
	SubsystemPostFlash = "POSTFLASH"
)

// Config holds logging configuration.
type Config struct {
	// DefaultLevel is the default log level for all subsystems.
	DefaultLevel slog.Level
	// SubsystemLevels maps subsystem names to their specific log levels.
	// If a subsystem is not in this map, DefaultLevel is used.
	SubsystemLevels map[string]slog.Level
	// AddSource adds source file information to log entries.
	AddSource bool
}

// NewConfig creates a Config from environment variables.
// Reads LOG_LEVEL for default level and LOG_LEVEL_<SUBSYSTEM> for per-subsystem levels.
func NewConfig() Config {
	cfg := Config{
		DefaultLevel:    slog.LevelInfo,
		SubsystemLevels: make(map[string]slog.Level),
		AddSource:       false,
	}

	if levelStr := os.Getenv("LOG_LEVEL"); levelStr != "" {
		cfg.DefaultLevel = ParseLevel(levelStr)
	}

	subsystems := []string{
		SubsystemStage1, SubsystemStaging, SubsystemPivot, SubsystemInit,
		SubsystemReaper, SubsystemFlash, SubsystemPostFlash,
	}
	for _, subsystem := range subsystems {
		envKey := "LOG_LEVEL_" + subsystem
		if levelStr := os.Getenv(envKey); levelStr != "" {
			cfg.SubsystemLevels[subsystem] = ParseLevel(levelStr)
		}
	}

	return cfg
}

// ParseLevel parses a log level string. Unrecognized strings default to info,
// matching the --s2-log-level flag's tolerance for loose input (§6).
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LevelFor returns the log level for the given subsystem.
func (c Config) LevelFor(subsystem string) slog.Level {
	if level, ok := c.SubsystemLevels[subsystem]; ok {
		return level
	}
	return c.DefaultLevel
}

// NewSubsystemLogger creates a logger for a specific subsystem with its
// configured level, writing through a Redirectable sink so the destination
// can be swapped later without losing the handler's attributes/level.
func NewSubsystemLogger(subsystem string, cfg Config, sink *Redirectable) *slog.Logger {
	level := cfg.LevelFor(subsystem)
	handler := slog.NewJSONHandler(sink, &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
	})
	return slog.New(handler).With(slog.String("subsystem", subsystem))
}

// AddToContext adds a logger to the context.
func AddToContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext retrieves the logger from context, or returns the default logger.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
