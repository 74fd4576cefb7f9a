// Package env holds helpers for process-level settings.
package env

import (
	"log/slog"
	"strings"
)

// ParseLogLevel maps "debug", "info", "warn" (or "warning") and "error" to
// the corresponding slog.Level, case-insensitively. Anything else yields
// fallback.
func ParseLogLevel(raw string, fallback slog.Level) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return fallback
	}
}
