package executor

import (
	"strings"
	"sync"
)

// lineWriter splits a byte stream into lines on '\n' and '\r', dropping
// empty segments, and reports each line as soon as it is complete.
type lineWriter struct {
	stream string
	onLine LineFunc

	mu      sync.Mutex
	partial []byte
	lines   []string
}

func newLineWriter(stream string, onLine LineFunc) *lineWriter {
	return &lineWriter{stream: stream, onLine: onLine}
}

// Write implements io.Writer.
func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, b := range p {
		if b == '\n' || b == '\r' {
			w.emit()
			continue
		}
		w.partial = append(w.partial, b)
	}
	return len(p), nil
}

func (w *lineWriter) emit() {
	if len(w.partial) == 0 {
		return
	}
	line := string(w.partial)
	w.partial = w.partial[:0]
	w.lines = append(w.lines, line)
	if w.onLine != nil {
		w.onLine(w.stream, line)
	}
}

// Close flushes a trailing partial line and returns the captured text,
// lines joined by '\n'.
func (w *lineWriter) Close() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.emit()
	return strings.Join(w.lines, "\n")
}
