package eventlog

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultCapacity bounds the number of retained lines.
const DefaultCapacity = 1000

const timestampLayout = "2006-01-02 15:04:05"

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Entry is an immutable timestamped line.
type Entry struct {
	Time    time.Time
	Message string
}

// String renders the entry as "[YYYY-MM-DD HH:MM:SS] message" in local time.
func (e Entry) String() string {
	return fmt.Sprintf("[%s] %s", e.Time.Local().Format(timestampLayout), e.Message)
}

// Log is a thread-safe ring buffer of entries.
type Log struct {
	clock  Clock
	logger *zap.Logger

	mu      sync.Mutex
	entries []Entry
	start   int
	size    int
}

// New builds a Log holding at most capacity entries. A non-positive capacity
// selects DefaultCapacity.
func New(capacity int, clock Clock, logger *zap.Logger) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{
		clock:   clock,
		logger:  logger,
		entries: make([]Entry, capacity),
	}
}

// Append stamps message, writes it to the process log and stores it,
// evicting the oldest entry when the ring is full.
func (l *Log) Append(message string) {
	entry := Entry{Time: l.clock.Now(), Message: message}
	l.logger.Info("event", zap.String("line", entry.String()))

	l.mu.Lock()
	defer l.mu.Unlock()
	capacity := len(l.entries)
	if l.size < capacity {
		l.entries[(l.start+l.size)%capacity] = entry
		l.size++
		return
	}
	l.entries[l.start] = entry
	l.start = (l.start + 1) % capacity
}

// Appendf formats according to a format specifier and appends the result.
func (l *Log) Appendf(format string, args ...any) {
	l.Append(fmt.Sprintf(format, args...))
}

// Snapshot returns the rendered entries, oldest first.
func (l *Log) Snapshot() []string {
	entries := l.Entries()
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.String()
	}
	return out
}

// Entries returns a copy of the stored entries, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, l.size)
	capacity := len(l.entries)
	for i := 0; i < l.size; i++ {
		out[i] = l.entries[(l.start+i)%capacity]
	}
	return out
}

// Len reports the number of stored entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// Capacity reports the maximum number of stored entries.
func (l *Log) Capacity() int {
	return len(l.entries)
}
