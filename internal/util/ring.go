package util

import "sync"

// Ring is a fixed-capacity circular buffer; Push overwrites the oldest
// element once full. Safe for concurrent use.
type Ring[T any] struct {
	mu   sync.RWMutex
	buf  []T
	next int
	full bool
}

// NewRing creates a ring with the given capacity (minimum 1).
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends an item, evicting the oldest when the ring is full.
func (r *Ring[T]) Push(item T) {
	r.mu.Lock()
	r.buf[r.next] = item
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
	r.mu.Unlock()
}

// Snapshot returns the stored elements oldest-first.
func (r *Ring[T]) Snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.full {
		out := make([]T, r.next)
		copy(out, r.buf[:r.next])
		return out
	}
	out := make([]T, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	out = append(out, r.buf[:r.next]...)
	return out
}

// Len returns the number of stored elements.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// Last returns the most recently pushed element, or the zero value when empty.
func (r *Ring[T]) Last() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var zero T
	if !r.full && r.next == 0 {
		return zero, false
	}
	idx := r.next - 1
	if idx < 0 {
		idx = len(r.buf) - 1
	}
	return r.buf[idx], true
}
