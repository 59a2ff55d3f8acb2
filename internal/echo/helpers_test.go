package echo

import (
	"sync"
	"testing"
	"time"

	"github.com/opensesame/sesametools/internal/ports"
)

type logEntry struct {
	level  string
	msg    string
	fields []ports.Field
}

// recordingLogger implements ports.Logger and keeps every entry.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) add(level, msg string, fields []ports.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, fields: fields})
}

func (l *recordingLogger) Debug(msg string, fields ...ports.Field) { l.add("debug", msg, fields) }
func (l *recordingLogger) Info(msg string, fields ...ports.Field)  { l.add("info", msg, fields) }
func (l *recordingLogger) Warn(msg string, fields ...ports.Field)  { l.add("warn", msg, fields) }
func (l *recordingLogger) Error(msg string, fields ...ports.Field) { l.add("error", msg, fields) }

func (l *recordingLogger) count(level, msg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			n++
		}
	}
	return n
}

func (l *recordingLogger) find(level, msg string) (logEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			return e, true
		}
	}
	return logEntry{}, false
}

func (l *recordingLogger) messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e.level+": "+e.msg)
	}
	return out
}

func fieldValue(e logEntry, key string) (interface{}, bool) {
	for _, f := range e.fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
