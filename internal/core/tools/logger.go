package tools

import (
	"log/slog"
	"sync"
	"unicode/utf8"
)

// DefaultAuditCapacity bounds how many entries a ToolLogger keeps in memory.
const DefaultAuditCapacity = 1024

// ToolLogger keeps the audit trail of tool invocations.
// Concurrent requests dispatch through the same registry, hence the mutex.
type ToolLogger struct {
	mu       sync.Mutex
	entries  []ToolLogEntry
	capacity int
	log      *slog.Logger
}

// NewToolLogger creates an audit logger. Entries are mirrored to log when
// it is non-nil; only the most recent capacity entries are retained.
func NewToolLogger(log *slog.Logger, capacity int) *ToolLogger {
	if capacity <= 0 {
		capacity = DefaultAuditCapacity
	}
	return &ToolLogger{
		entries:  make([]ToolLogEntry, 0, 64),
		capacity: capacity,
		log:      log,
	}
}

// Log records a tool invocation.
func (l *ToolLogger) Log(entry ToolLogEntry) {
	if l == nil {
		return
	}

	l.mu.Lock()
	if len(l.entries) == l.capacity {
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:len(l.entries)-1]
	}
	l.entries = append(l.entries, entry)
	l.mu.Unlock()

	if l.log == nil {
		return
	}
	attrs := []any{
		"tool", entry.ToolName,
		"duration_ms", entry.DurationMs,
		"params", entry.Params,
	}
	if entry.RequestID != "" {
		attrs = append(attrs, "request_id", entry.RequestID)
	}
	if entry.IsError {
		l.log.Warn("tool call failed", append(attrs, "error", truncate(entry.Error, 200))...)
		return
	}
	l.log.Info("tool call", attrs...)
}

// Entries returns a copy of the retained entries, oldest first.
func (l *ToolLogger) Entries() []ToolLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	result := make([]ToolLogEntry, len(l.entries))
	copy(result, l.entries)
	return result
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	for maxLen > 0 && !utf8.RuneStart(s[maxLen]) {
		maxLen--
	}
	return s[:maxLen] + "... (truncated)"
}
