package slogobs

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation settings for the log file written by [WithFile].
const (
	DefaultLogFile       = "/tmp/mule.log"
	DefaultMaxSizeMB     = 10
	DefaultMaxBackups    = 3
	DefaultMaxAgeDays    = 7
	DefaultCompressFiles = false
)

// Option is a functional option for configuring the Observer.
type Option func(*config)

// config holds the configuration for creating an Observer.
type config struct {
	format Format
	level  slog.Leveler
	output io.Writer
	colors bool
	file   *lumberjack.Logger
	logger *slog.Logger // If provided, use this logger directly (bypass custom handler)
}

// WithFormat sets the log output format.
func WithFormat(format Format) Option {
	return func(c *config) {
		c.format = format
	}
}

// WithLevel sets the minimum log level. Passing a *slog.LevelVar allows the
// level to change after the observer is built.
func WithLevel(level slog.Leveler) Option {
	return func(c *config) {
		c.level = level
	}
}

// WithOutput sets the output writer for logs.
func WithOutput(output io.Writer) Option {
	return func(c *config) {
		c.output = output
	}
}

// WithColors enables or disables ANSI color codes.
// Only applies to compact and pretty formats, and is ignored when a log file
// is configured.
func WithColors(enabled bool) Option {
	return func(c *config) {
		c.colors = enabled
	}
}

// WithFile additionally writes every line to a size-rotated file at path.
// An empty path uses DefaultLogFile.
func WithFile(path string) Option {
	return func(c *config) {
		if path == "" {
			path = DefaultLogFile
		}
		c.file = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    DefaultMaxSizeMB,
			MaxBackups: DefaultMaxBackups,
			MaxAge:     DefaultMaxAgeDays,
			Compress:   DefaultCompressFiles,
		}
	}
}

// WithLogger uses an existing slog.Logger instead of creating a custom handler.
// This option takes precedence over every other option.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// defaultConfig returns the default configuration.
func defaultConfig() *config {
	return &config{
		format: GetFormatFromEnv(),
		level:  GetLogLevelFromEnv(),
		output: os.Stderr,
	}
}

// applyOptions applies the given options to the config.
func applyOptions(opts ...Option) *config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
