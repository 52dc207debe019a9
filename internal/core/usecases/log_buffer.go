package usecases

import (
	"sync"

	"github.com/samirrijal/patrolscan/internal/core/domain"
)

// DefaultLogCapacity is the number of log entries kept when none is configured.
const DefaultLogCapacity = 100

// LogBuffer is a bounded ring of operator log entries; the oldest entry is
// overwritten once the buffer is full.
type LogBuffer struct {
	mu      sync.Mutex
	entries []domain.LogEntry
	next    int
	full    bool
}

// NewLogBuffer creates a buffer holding at most capacity entries.
func NewLogBuffer(capacity int) *LogBuffer {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &LogBuffer{entries: make([]domain.LogEntry, capacity)}
}

// Append records an entry.
func (b *LogBuffer) Append(entry domain.LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.next] = entry
	b.next = (b.next + 1) % len(b.entries)
	if b.next == 0 {
		b.full = true
	}
}

// Entries returns the buffered entries, oldest first.
func (b *LogBuffer) Entries() []domain.LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.full {
		out := make([]domain.LogEntry, b.next)
		copy(out, b.entries[:b.next])
		return out
	}
	out := make([]domain.LogEntry, 0, len(b.entries))
	out = append(out, b.entries[b.next:]...)
	out = append(out, b.entries[:b.next]...)
	return out
}
