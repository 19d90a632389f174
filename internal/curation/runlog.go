package curation

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// LogLine is one buffered structured log entry captured during a submodule
// execution and persisted with the run record.
type LogLine struct {
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
	At      time.Time      `json:"at"`
}

// RunLogger buffers log lines for one submodule execution instead of writing
// them immediately, mirroring each line to the process logger. Safe for
// concurrent use by parallel entity workers.
type RunLogger struct {
	mu    sync.Mutex
	lines []LogLine
	zl    *zap.Logger
	now   func() time.Time
}

// NewRunLogger builds a RunLogger backed by the given zap logger. A nil
// logger disables mirroring.
func NewRunLogger(zl *zap.Logger) *RunLogger {
	if zl == nil {
		zl = zap.NewNop()
	}
	return &RunLogger{zl: zl, now: func() time.Time { return time.Now().UTC() }}
}

// Info records an info-level line.
func (l *RunLogger) Info(msg string, fields map[string]any) {
	l.append("info", msg, fields)
	l.zl.Info(msg, zap.Any("fields", fields))
}

// Warn records a warn-level line.
func (l *RunLogger) Warn(msg string, fields map[string]any) {
	l.append("warn", msg, fields)
	l.zl.Warn(msg, zap.Any("fields", fields))
}

// Error records an error-level line.
func (l *RunLogger) Error(msg string, fields map[string]any) {
	l.append("error", msg, fields)
	l.zl.Error(msg, zap.Any("fields", fields))
}

// Lines returns a copy of the buffered lines in append order.
func (l *RunLogger) Lines() []LogLine {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogLine, len(l.lines))
	copy(out, l.lines)
	return out
}

func (l *RunLogger) append(level, msg string, fields map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, LogLine{
		Level:   level,
		Message: msg,
		Fields:  fields,
		At:      l.now(),
	})
}
