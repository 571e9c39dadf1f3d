package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

const EnvLogLevel = "GALLERY_LOG_LEVEL"

// levelOff is above every level slog emits.
const levelOff = slog.Level(100)

// Configure installs a text handler on w as the default logger. flagLevel
// wins over GALLERY_LOG_LEVEL; unparseable values fall back to info.
func Configure(w io.Writer, flagLevel string) slog.Level {
	level := slog.LevelInfo
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		level = lvl
	}
	if lvl, ok := ParseLevel(flagLevel); ok {
		level = lvl
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
	return level
}

func ParseLevel(raw string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return slog.LevelInfo, false
	case "debug", "trace":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	case "off", "none", "disabled":
		return levelOff, true
	default:
		return slog.LevelInfo, false
	}
}
