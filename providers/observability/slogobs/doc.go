// Package slogobs provides an observability.Provider implementation backed by
// log/slog.
//
// Spans are emitted as debug log lines, metrics are accumulated in memory and
// exposed through [Observer.Summary], and every line can be teed into a
// size-rotated file with [WithFile]. Loggers derived with [AgentLogger] print
// the agent name in front of each message so interleaved output from
// concurrent agents stays readable.
package slogobs
