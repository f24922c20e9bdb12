// Package history keeps the most recent calculator evaluations.
package history

import (
	"errors"
	"fmt"
)

// DefaultLimit is the number of entries a Buffer keeps unless told otherwise.
const DefaultLimit = 10

// ErrIndexOutOfRange is returned by Select for a position the buffer does not
// hold.
var ErrIndexOutOfRange = errors.New("history index out of range")

// Entry is one completed evaluation.
type Entry struct {
	Expression string  `json:"expression"`
	Result     float64 `json:"result"`
}

// Buffer holds at most Cap entries, most recent first. It is not safe for
// concurrent use.
type Buffer struct {
	entries []Entry
	limit   int
}

// New creates a buffer bounded to limit entries. A non-positive limit falls
// back to DefaultLimit.
func New(limit int) *Buffer {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Buffer{
		entries: make([]Entry, 0, limit+1),
		limit:   limit,
	}
}

// Push inserts e at the front, evicting the oldest entry once the buffer is
// over its limit.
func (b *Buffer) Push(e Entry) {
	b.entries = append(b.entries, Entry{})
	copy(b.entries[1:], b.entries)
	b.entries[0] = e

	if len(b.entries) > b.limit {
		b.entries = b.entries[:b.limit]
	}
}

// Clear removes every entry.
func (b *Buffer) Clear() {
	b.entries = b.entries[:0]
}

// Select returns the entry at position i, where 0 is the most recent.
func (b *Buffer) Select(i int) (Entry, error) {
	if i < 0 || i >= len(b.entries) {
		return Entry{}, fmt.Errorf("%w: %d (have %d)", ErrIndexOutOfRange, i, len(b.entries))
	}
	return b.entries[i], nil
}

// Entries returns a copy of the buffer, most recent first.
func (b *Buffer) Entries() []Entry {
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Len returns the number of stored entries.
func (b *Buffer) Len() int {
	return len(b.entries)
}

// Cap returns the maximum number of entries kept.
func (b *Buffer) Cap() int {
	return b.limit
}
