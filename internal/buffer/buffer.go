package buffer

import (
	"sync"
)

// Ring is a thread-safe bounded buffer that drops the oldest entry on
// overflow. It backs the audit log and the metrics snapshot history.
type Ring[T any] struct {
	mu       sync.Mutex
	data     []T
	capacity int
}

// NewRing creates a Ring with the specified capacity.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{
		data:     make([]T, 0, capacity),
		capacity: capacity,
	}
}

// Push adds an item. If the ring is full, the oldest item is dropped and
// returned with dropped=true.
func (r *Ring[T]) Push(item T) (oldest T, dropped bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.data) >= r.capacity {
		oldest = r.data[0]
		dropped = true
		r.data = r.data[1:]
	}
	r.data = append(r.data, item)
	return oldest, dropped
}

// Items returns a copy of the buffered items, oldest first.
func (r *Ring[T]) Items() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]T, len(r.data))
	copy(out, r.data)
	return out
}

// TrimFunc removes leading items for which keep returns false, stopping at
// the first kept item. Used for age-based trimming of chronological data.
func (r *Ring[T]) TrimFunc(keep func(T) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := 0
	for i < len(r.data) && !keep(r.data[i]) {
		i++
	}
	if i > 0 {
		r.data = append(r.data[:0], r.data[i:]...)
	}
}

// Len returns the current number of items.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

// Clear removes all items.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = r.data[:0]
}
