// Package ringbuf implements the C2 rolling buffer: a fixed-capacity window
// of recent (raw, annotated) frame pairs, owned exclusively by one camera
// worker.
package ringbuf

import (
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Entry is one retained frame pair.
type Entry struct {
	Raw        gocv.Mat
	Annotated  gocv.Mat
	Index      uint64
	CapturedAt time.Time
}

// Buffer is a fixed-capacity deque of the most recent K frames. Append is
// O(1) and overwrites the oldest slot once full. Snapshot clones every
// retained Mat under a single critical section so the sink never reads a
// Mat the worker is concurrently mutating: "copy the pixels out, no queue
// semantics."
type Buffer struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	next     int
	size     int
}

// New builds a Buffer holding up to capacity frame pairs.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer{
		entries:  make([]Entry, capacity),
		capacity: capacity,
	}
}

// Append adds a new (raw, annotated) pair, closing and overwriting the
// oldest entry once the buffer is full. The Buffer takes ownership of both
// Mats; callers must not use or close them afterward.
func (b *Buffer) Append(raw, annotated gocv.Mat, index uint64, capturedAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	old := b.entries[b.next]
	if !old.Raw.Empty() {
		old.Raw.Close()
	}
	if !old.Annotated.Empty() {
		old.Annotated.Close()
	}

	b.entries[b.next] = Entry{Raw: raw, Annotated: annotated, Index: index, CapturedAt: capturedAt}
	b.next = (b.next + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Snapshot returns a clone of every retained entry, oldest first, leaving
// the live buffer untouched. The caller owns the returned Mats and must
// Close them.
func (b *Buffer) Snapshot() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Entry, 0, b.size)
	start := b.next - b.size
	if start < 0 {
		start += b.capacity
	}
	for i := 0; i < b.size; i++ {
		idx := (start + i) % b.capacity
		e := b.entries[idx]
		out = append(out, Entry{
			Raw:        e.Raw.Clone(),
			Annotated:  e.Annotated.Clone(),
			Index:      e.Index,
			CapturedAt: e.CapturedAt,
		})
	}
	return out
}

// Len reports how many frame pairs are currently retained.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Close releases every retained Mat. Call once the owning worker is done
// with the buffer.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.entries {
		if !e.Raw.Empty() {
			e.Raw.Close()
		}
		if !e.Annotated.Empty() {
			e.Annotated.Close()
		}
	}
}
