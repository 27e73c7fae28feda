package logger

import "sync"

// RingBuffer keeps the most recent entries up to a fixed capacity.
type RingBuffer[T any] struct {
	mu    sync.RWMutex
	items []T
	next  int
	full  bool
}

func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer[T]{items: make([]T, capacity)}
}

// Push appends an item, overwriting the oldest once full.
func (r *RingBuffer[T]) Push(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[r.next] = item
	r.next++
	if r.next == len(r.items) {
		r.next = 0
		r.full = true
	}
}

// Last returns up to n items, oldest first. n <= 0 returns everything.
func (r *RingBuffer[T]) Last(n int) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	size := r.lenLocked()
	if n <= 0 || n > size {
		n = size
	}

	out := make([]T, 0, n)
	start := r.next - n
	if start < 0 {
		start += len(r.items)
	}
	for i := 0; i < n; i++ {
		out = append(out, r.items[(start+i)%len(r.items)])
	}
	return out
}

func (r *RingBuffer[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lenLocked()
}

func (r *RingBuffer[T]) lenLocked() int {
	if r.full {
		return len(r.items)
	}
	return r.next
}
