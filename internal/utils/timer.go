package utils

import (
	"fmt"
	"time"
)

// Stopwatch measures the wall-clock time of a run and of its consecutive
// laps, such as the agentic and non-agentic halves of a research bench.
type Stopwatch struct {
	start   time.Time
	lastLap time.Time
	laps    []Lap
}

// Lap is one named interval recorded by a [Stopwatch].
type Lap struct {
	Name     string
	Duration time.Duration
}

// StartStopwatch returns a running stopwatch.
func StartStopwatch() *Stopwatch {
	now := time.Now()
	return &Stopwatch{start: now, lastLap: now}
}

// Elapsed returns the time since the stopwatch started.
func (s *Stopwatch) Elapsed() time.Duration {
	return time.Since(s.start)
}

// Lap closes the current lap under name and returns its duration. The next
// lap starts immediately.
func (s *Stopwatch) Lap(name string) time.Duration {
	now := time.Now()
	d := now.Sub(s.lastLap)
	s.lastLap = now
	s.laps = append(s.laps, Lap{Name: name, Duration: d})
	return d
}

// Laps returns the laps recorded so far, oldest first.
func (s *Stopwatch) Laps() []Lap {
	return append([]Lap(nil), s.laps...)
}

// FormatMinSec renders d as "XmYs" on whole seconds, the way the CLI reports
// run times.
func FormatMinSec(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%dm%02ds", secs/60, secs%60)
}
