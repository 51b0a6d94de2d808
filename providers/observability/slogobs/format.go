package slogobs

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Format selects how the handler renders a record.
type Format string

const (
	// FormatCompact is one line per record with the attributes as JSON. It is
	// the default.
	// Example: 2025-11-03 10:40:35 INFO  [dispatch] Dispatched -> {"agent":"mule1-bob"}
	FormatCompact Format = "compact"

	// FormatPretty puts every attribute on its own line.
	// Example:
	// 2025-11-03 10:40:35 [I] INFO   [grounding] Grounded
	//                     `- kept: 3
	FormatPretty Format = "pretty"

	// FormatJSON is one JSON object per record, meant for the log file.
	// Example: {"time":"2025-11-03T10:40:35","level":"INFO","msg":"Grounded","kept":3}
	FormatJSON Format = "json"
)

// ErrUnknownFormat is returned by [LookupFormat] for an unsupported name.
var ErrUnknownFormat = errors.New("slogobs: unknown log format")

var formats = []Format{FormatCompact, FormatPretty, FormatJSON}

// Formats lists the supported formats, default first.
func Formats() []Format {
	return slices.Clone(formats)
}

// LookupFormat resolves a case-insensitive format name. An unknown name
// yields [FormatCompact] and an error wrapping [ErrUnknownFormat].
func LookupFormat(name string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(name)))
	if slices.Contains(formats, f) {
		return f, nil
	}
	return FormatCompact, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// ParseFormat is [LookupFormat] without the error.
func ParseFormat(name string) Format {
	f, _ := LookupFormat(name)
	return f
}

// GetFormatFromEnv returns the format configured via MULE_LOG_FORMAT,
// falling back to LOG_FORMAT. Default: compact.
func GetFormatFromEnv() Format {
	return ParseFormat(firstEnv(EnvLogFormat, EnvLogFormatFallback))
}

func (f Format) String() string {
	return string(f)
}
