// Package obs contains observability utilities such as logging.
package obs

import (
	"log/slog"
	"os"
	"strings"
)

// Level controls the minimum level of Logger; it can be changed at runtime.
var Level = new(slog.LevelVar)

// Logger is the global structured logger used by the service.
//
// It starts as the slog default so packages may log before InitLogger runs.
var Logger = slog.Default()

// InitLogger initializes the global Logger with a JSON handler on stdout.
func InitLogger() {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: Level})
	Logger = slog.New(h)
}

// SetLevel parses a level name (debug, info, warn, error) and applies it.
// Unknown names leave the level at info.
func SetLevel(name string) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		Level.Set(slog.LevelDebug)
	case "warn", "warning":
		Level.Set(slog.LevelWarn)
	case "error":
		Level.Set(slog.LevelError)
	default:
		Level.Set(slog.LevelInfo)
	}
}
