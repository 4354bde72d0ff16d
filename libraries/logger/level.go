package logger

import (
	"fmt"
	"strings"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
	LevelFatal
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel accepts the names used by the log-level config key.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	case "fatal":
		return LevelFatal, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Categories named "error" and "warning" carry their own level; any category
// starting with "debug" is debug output. Everything else logs at info.
func levelForCategory(category string) Level {
	switch category {
	case "error":
		return LevelError
	case "warning":
		return LevelWarning
	default:
		if strings.HasPrefix(category, "debug") {
			return LevelDebug
		}
		return LevelInfo
	}
}

func validateCategory(category string) bool {
	if category == "" {
		return false
	}
	for _, r := range category {
		if r >= 'A' && r <= 'Z' {
			return false
		}
	}
	return true
}
