package testutil

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

// TestLogger captures structured logs for assertion in tests.
type TestLogger struct {
	mu      sync.RWMutex
	entries []LogEntry
	Logger  *slog.Logger
}

// LogEntry represents a captured log entry.
type LogEntry struct {
	Time    time.Time
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// NewTestLogger creates a logger that captures all log entries for testing.
func NewTestLogger(t *testing.T) *TestLogger {
	t.Helper()
	tl := &TestLogger{}
	tl.Logger = slog.New(&captureHandler{testLogger: tl})
	return tl
}

// captureHandler records every entry at debug level and above.
type captureHandler struct {
	testLogger *TestLogger
	attrs      []slog.Attr // Accumulated attrs, keys already qualified
	group      string      // Current group name
}

func (h *captureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= slog.LevelDebug
}

func (h *captureHandler) Handle(ctx context.Context, r slog.Record) error {
	entry := LogEntry{
		Time:    r.Time,
		Level:   r.Level,
		Message: r.Message,
		Attrs:   make(map[string]any),
	}
	for _, a := range h.attrs {
		entry.Attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		entry.Attrs[h.qualify(a.Key)] = a.Value.Any()
		return true
	})

	h.testLogger.mu.Lock()
	h.testLogger.entries = append(h.testLogger.entries, entry)
	h.testLogger.mu.Unlock()
	return nil
}

func (h *captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	for _, a := range attrs {
		newAttrs = append(newAttrs, slog.Attr{Key: h.qualify(a.Key), Value: a.Value})
	}
	return &captureHandler{testLogger: h.testLogger, attrs: newAttrs, group: h.group}
}

func (h *captureHandler) qualify(key string) string {
	if h.group == "" {
		return key
	}
	return h.group + "." + key
}

func (h *captureHandler) WithGroup(name string) slog.Handler {
	newGroup := name
	if h.group != "" {
		newGroup = h.group + "." + name
	}
	return &captureHandler{testLogger: h.testLogger, attrs: h.attrs, group: newGroup}
}

// Entries returns a copy of all captured log entries.
func (l *TestLogger) Entries() []LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	result := make([]LogEntry, len(l.entries))
	copy(result, l.entries)
	return result
}

// EntriesContaining returns entries whose message contains a substring.
func (l *TestLogger) EntriesContaining(substring string) []LogEntry {
	var result []LogEntry
	for _, e := range l.Entries() {
		if strings.Contains(e.Message, substring) {
			result = append(result, e)
		}
	}
	return result
}

// EntriesWithAttrValue returns entries that have a specific attribute value.
func (l *TestLogger) EntriesWithAttrValue(key string, value any) []LogEntry {
	var result []LogEntry
	for _, e := range l.Entries() {
		if v, exists := e.Attrs[key]; exists && v == value {
			result = append(result, e)
		}
	}
	return result
}

// CountLevel returns the count of entries at a specific level.
func (l *TestLogger) CountLevel(level slog.Level) int {
	count := 0
	for _, e := range l.Entries() {
		if e.Level == level {
			count++
		}
	}
	return count
}

// AssertContains asserts that at least one log entry contains the message.
func (l *TestLogger) AssertContains(t *testing.T, msg string) {
	t.Helper()
	if len(l.EntriesContaining(msg)) == 0 {
		t.Errorf("Expected log to contain message %q, but it wasn't found", msg)
	}
}

// AssertNotContains asserts that no log entry contains the message.
func (l *TestLogger) AssertNotContains(t *testing.T, msg string) {
	t.Helper()
	if entries := l.EntriesContaining(msg); len(entries) > 0 {
		t.Errorf("Expected log to not contain message %q, but found %d entries", msg, len(entries))
	}
}

// AssertNoErrors asserts that nothing was logged at error level.
func (l *TestLogger) AssertNoErrors(t *testing.T) {
	t.Helper()
	for _, e := range l.Entries() {
		if e.Level >= slog.LevelError {
			t.Errorf("Unexpected error log: %s %v", e.Message, e.Attrs)
		}
	}
}
