package slogobs

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// LevelTrace is below slog.LevelDebug and carries full request and response
// payloads.
const LevelTrace = slog.Level(-8)

// Environment variables consulted for the default level and format. The
// MULE_ variant wins over the generic one.
const (
	EnvLogLevel          = "MULE_LOG_LEVEL"
	EnvLogLevelFallback  = "LOG_LEVEL"
	EnvLogFormat         = "MULE_LOG_FORMAT"
	EnvLogFormatFallback = "LOG_FORMAT"
)

// GetLogLevelFromEnv returns the level configured via MULE_LOG_LEVEL, falling
// back to LOG_LEVEL. Default: INFO.
func GetLogLevelFromEnv() slog.Level {
	level := firstEnv(EnvLogLevel, EnvLogLevelFallback)
	if level == "" {
		return slog.LevelInfo
	}
	return ParseLogLevel(level)
}

// LookupLogLevel resolves TRACE, DEBUG, INFO, WARN, WARNING or ERROR
// (case-insensitive).
func LookupLogLevel(level string) (slog.Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "TRACE":
		return LevelTrace, true
	case "DEBUG":
		return slog.LevelDebug, true
	case "INFO":
		return slog.LevelInfo, true
	case "WARN", "WARNING":
		return slog.LevelWarn, true
	case "ERROR":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// ParseLogLevel is [LookupLogLevel] with INFO as the fallback. Unknown values
// also print a warning on stderr.
func ParseLogLevel(level string) slog.Level {
	parsed, ok := LookupLogLevel(level)
	if !ok {
		fmt.Fprintf(os.Stderr, "Warning: Unknown log level '%s', using INFO\n", level)
	}
	return parsed
}

// LogLevelString returns a human-readable string for the log level.
func LogLevelString(level slog.Level) string {
	switch level {
	case LevelTrace:
		return "TRACE"
	case slog.LevelDebug:
		return "DEBUG"
	case slog.LevelInfo:
		return "INFO"
	case slog.LevelWarn:
		return "WARN"
	case slog.LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", level)
	}
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return ""
}
