package logging

import "sync"

// RingBuffer is a thread-safe circular buffer. When full, Write overwrites
// the oldest value.
type RingBuffer[T any] struct {
	entries []T
	size    int
	head    int
	count   int
	mu      sync.RWMutex
}

// NewRingBuffer creates a new ring buffer with the specified capacity.
// A capacity below 1 is raised to 1.
func NewRingBuffer[T any](size int) *RingBuffer[T] {
	if size < 1 {
		size = 1
	}
	return &RingBuffer[T]{
		entries: make([]T, size),
		size:    size,
	}
}

// Write adds a value to the buffer, overwriting the oldest value if full.
func (rb *RingBuffer[T]) Write(values ...T) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	for _, v := range values {
		rb.entries[rb.head] = v
		rb.head = (rb.head + 1) % rb.size
		if rb.count < rb.size {
			rb.count++
		}
	}
}

// ReadAll returns all values in insertion order, oldest first.
func (rb *RingBuffer[T]) ReadAll() []T {
	return rb.Last(rb.size)
}

// Last returns up to n most recent values, oldest first.
func (rb *RingBuffer[T]) Last(n int) []T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if n > rb.count {
		n = rb.count
	}
	if n <= 0 {
		return nil
	}

	result := make([]T, n)
	start := (rb.head - n + rb.size) % rb.size
	for i := range n {
		result[i] = rb.entries[(start+i)%rb.size]
	}
	return result
}

// Count returns the number of values in the buffer.
func (rb *RingBuffer[T]) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}

// Capacity returns the maximum number of values the buffer holds.
func (rb *RingBuffer[T]) Capacity() int {
	return rb.size
}

// Reset empties the buffer.
func (rb *RingBuffer[T]) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	var zero T
	for i := range rb.entries {
		rb.entries[i] = zero
	}
	rb.head = 0
	rb.count = 0
}
