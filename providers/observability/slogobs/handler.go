package slogobs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
)

// AgentKey is the attribute key that the compact and pretty formats lift out
// of the attribute list and render as a "[name]" prefix before the message.
const AgentKey = "agent"

// Handler is a custom slog.Handler that supports multiple output formats.
type Handler struct {
	format Format
	level  slog.Leveler
	output io.Writer
	colors bool
	mu     *sync.Mutex
	attrs  []slog.Attr
	groups []string
}

// HandlerOptions configures a Handler.
type HandlerOptions struct {
	// Format specifies the output format (compact, pretty, json).
	Format Format
	// Level is the minimum log level to output.
	Level slog.Leveler
	// Output is where logs are written (defaults to os.Stdout).
	Output io.Writer
	// Colors enables ANSI color codes (only for compact/pretty formats).
	Colors bool
}

// NewHandler creates a new Handler with the given options.
func NewHandler(opts *HandlerOptions) *Handler {
	if opts == nil {
		opts = &HandlerOptions{}
	}
	output := opts.Output
	if output == nil {
		output = os.Stdout
	}
	format := opts.Format
	if format == "" {
		format = FormatCompact
	}
	level := opts.Level
	if level == nil {
		level = slog.LevelInfo
	}

	// Auto-detect TTY for colors if not explicitly set
	colors := opts.Colors
	if !colors && format != FormatJSON {
		if f, ok := output.(*os.File); ok {
			colors = isTerminal(f)
		}
	}

	return &Handler{
		format: format,
		level:  level,
		output: output,
		colors: colors,
		mu:     &sync.Mutex{},
	}
}

// Enabled reports whether the handler handles records at the given level.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle formats and writes a log record.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var buf []byte
	var err error

	switch h.format {
	case FormatPretty:
		buf = h.formatPretty(r)
	case FormatJSON:
		buf, err = h.formatJSON(r)
	default:
		buf = h.formatCompact(r)
	}
	if err != nil {
		return err
	}

	// Handlers derived through WithAttrs share the mutex, so concurrent
	// agents never interleave partial lines on the same writer.
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.output.Write(buf)
	return err
}

// WithAttrs returns a new Handler with additional attributes.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &clone
}

// WithGroup returns a new Handler with a group name.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string{}, h.groups...), name)
	return &clone
}

// formatCompact renders a single line:
// "2006-01-02 15:04:05  INFO [critic] Message -> {"key":"value"}"
func (h *Handler) formatCompact(r slog.Record) []byte {
	buf := make([]byte, 0, 256)

	buf = append(buf, r.Time.Format("2006-01-02 15:04:05")...)
	buf = append(buf, ' ')

	// Level right-aligned, 5 chars width
	buf = h.appendLevel(buf, r.Level, "%5s")
	buf = append(buf, ' ')

	attrs := h.collectAttrs(r)
	buf = appendAgent(buf, attrs)
	buf = append(buf, r.Message...)

	if len(attrs) > 0 {
		buf = append(buf, " -> "...)
		jsonData, err := json.Marshal(attrs)
		if err != nil {
			buf = append(buf, "[json-error]"...)
		} else {
			buf = append(buf, jsonData...)
		}
	}

	return append(buf, '\n')
}

// formatPretty renders the message on one line and each attribute on its own
// indented line, sorted by key:
//
//	2025-11-03 10:40:35 [I] INFO   [critic] Message
//	                    |- key: value
//	                    `- other: value
func (h *Handler) formatPretty(r slog.Record) []byte {
	buf := make([]byte, 0, 256)

	buf = append(buf, r.Time.Format("2006-01-02 15:04:05")...)
	buf = append(buf, ' ')
	buf = append(buf, markerForLevel(r.Level)...)
	buf = append(buf, ' ')
	buf = h.appendLevel(buf, r.Level, "%-6s")
	buf = append(buf, ' ')

	attrs := h.collectAttrs(r)
	buf = appendAgent(buf, attrs)
	buf = append(buf, r.Message...)
	buf = append(buf, '\n')

	keys := sortedKeys(attrs)
	for i, key := range keys {
		if i == len(keys)-1 {
			buf = append(buf, prettyIndent+"`- "...)
		} else {
			buf = append(buf, prettyIndent+"|- "...)
		}
		buf = append(buf, key...)
		buf = append(buf, ": "...)
		buf = append(buf, fmt.Sprintf("%v", attrs[key])...)
		buf = append(buf, '\n')
	}

	return buf
}

const prettyIndent = "                    "

// formatJSON renders a single JSON object:
// {"time":"2025-11-03T10:40:35","level":"DEBUG","msg":"Message","key":"value"}
// Standard fields are always included; attributes are merged at the top level.
func (h *Handler) formatJSON(r slog.Record) ([]byte, error) {
	data := h.collectAttrs(r)
	data["time"] = r.Time.Format("2006-01-02T15:04:05")
	data["level"] = levelString(r.Level)
	data["msg"] = r.Message

	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return append(jsonData, '\n'), nil
}

func (h *Handler) appendLevel(buf []byte, level slog.Level, layout string) []byte {
	if h.colors {
		buf = append(buf, colorForLevel(level)...)
		buf = append(buf, fmt.Sprintf(layout, levelString(level))...)
		return append(buf, colorReset...)
	}
	return append(buf, fmt.Sprintf(layout, levelString(level))...)
}

// appendAgent writes the "[name] " prefix and removes the agent attribute.
func appendAgent(buf []byte, attrs map[string]interface{}) []byte {
	agent, ok := attrs[AgentKey]
	if !ok {
		return buf
	}
	delete(attrs, AgentKey)
	return append(buf, fmt.Sprintf("[%v] ", agent)...)
}

// collectAttrs gathers the handler's stored attributes and the record's
// attributes into a single map, prefixing keys with any group names.
func (h *Handler) collectAttrs(r slog.Record) map[string]interface{} {
	attrs := make(map[string]interface{}, len(h.attrs)+r.NumAttrs())
	for _, attr := range h.attrs {
		h.addAttr(attrs, attr)
	}
	r.Attrs(func(attr slog.Attr) bool {
		h.addAttr(attrs, attr)
		return true
	})
	return attrs
}

func (h *Handler) addAttr(attrs map[string]interface{}, attr slog.Attr) {
	key := attr.Key
	for i := len(h.groups) - 1; i >= 0; i-- {
		key = h.groups[i] + "." + key
	}
	value := attr.Value.Resolve()
	if err, ok := value.Any().(error); ok {
		attrs[key] = err.Error()
		return
	}
	attrs[key] = value.Any()
}

func sortedKeys(attrs map[string]interface{}) []string {
	keys := make([]string, 0, len(attrs))
	for key := range attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// levelString maps TRACE (level < Debug), DEBUG, INFO, WARN and ERROR.
func levelString(level slog.Level) string {
	switch {
	case level < slog.LevelDebug:
		return "TRACE"
	case level < slog.LevelInfo:
		return "DEBUG"
	case level < slog.LevelWarn:
		return "INFO"
	case level < slog.LevelError:
		return "WARN"
	default:
		return "ERROR"
	}
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorGreen  = "\033[32m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[90m"
)

func colorForLevel(level slog.Level) string {
	switch {
	case level < slog.LevelDebug:
		return colorGray
	case level < slog.LevelInfo:
		return colorBlue
	case level < slog.LevelWarn:
		return colorGreen
	case level < slog.LevelError:
		return colorYellow
	default:
		return colorRed
	}
}

// markerForLevel returns the single-letter bracket marker used by the pretty format.
func markerForLevel(level slog.Level) string {
	return "[" + levelString(level)[:1] + "]"
}

// isTerminal checks whether the given file is connected to a terminal device.
func isTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fileInfo, err := f.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
