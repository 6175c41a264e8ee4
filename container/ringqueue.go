package container

import (
	"context"
	"log/slog"
)

// RingQueue is a growable circular FIFO.
type RingQueue[T any] struct {
	buf   *Array[T]
	start int
	count int
}

// NewRingQueue creates an empty queue. A nil allocator means the Go heap.
func NewRingQueue[T any](alloc Allocator[T]) *RingQueue[T] {
	return &RingQueue[T]{buf: NewArray(alloc)}
}

// grow moves the queue into a larger buffer. The wrapped tail
// [0, end) is copied to sit right after the old capacity boundary so the
// items are contiguous from start.
func (q *RingQueue[T]) grow() bool {
	old := q.buf.Len()
	if !q.buf.Resize(growCapacity(old, q.count+1)) {
		return false
	}
	if q.start+q.count > old {
		wrapped := q.start + q.count - old
		s := q.buf.Slice()
		copy(s[old:], s[:wrapped])
		clear(s[:wrapped])
	}
	return true
}

// Push appends v at the back.
func (q *RingQueue[T]) Push(v T) bool {
	if q.count == q.buf.Len() && !q.grow() {
		return false
	}
	q.buf.Set((q.start+q.count)%q.buf.Len(), v)
	q.count++
	return true
}

// Pop removes the front item.
func (q *RingQueue[T]) Pop() (T, bool) {
	var zero T
	if q.count == 0 {
		return zero, false
	}
	v := q.buf.At(q.start)
	q.buf.Set(q.start, zero)
	q.start = (q.start + 1) % q.buf.Len()
	q.count--
	return v, true
}

// Peek returns the front item without removing it.
func (q *RingQueue[T]) Peek() (T, bool) {
	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.buf.At(q.start), true
}

// At returns the i-th item counted from the front.
func (q *RingQueue[T]) At(i int) T { return q.buf.At((q.start + i) % q.buf.Len()) }

// Len returns the number of queued items.
func (q *RingQueue[T]) Len() int { return q.count }

// Cap returns the current buffer capacity.
func (q *RingQueue[T]) Cap() int { return q.buf.Len() }

// Clear drops all items and keeps the buffer.
func (q *RingQueue[T]) Clear() {
	clear(q.buf.Slice())
	q.start = 0
	q.count = 0
}

// FixedRingQueue is a circular FIFO that never grows. Pushing into a full
// queue overwrites the oldest item.
type FixedRingQueue[T any] struct {
	buf    []T
	start  int
	count  int
	logger *slog.Logger
}

// NewFixedRingQueue creates a queue holding at most n items. Overwrites
// are reported to logger at warn level; nil disables the report.
func NewFixedRingQueue[T any](n int, logger *slog.Logger) *FixedRingQueue[T] {
	if n < 1 {
		panic("container: FixedRingQueue capacity must be positive")
	}
	return &FixedRingQueue[T]{buf: make([]T, n), logger: logger}
}

// Push appends v. It returns true if the oldest item was evicted to make
// room.
func (q *FixedRingQueue[T]) Push(v T) bool {
	n := len(q.buf)
	if q.count == n {
		q.buf[q.start] = v
		q.start = (q.start + 1) % n
		if q.logger != nil && q.logger.Enabled(context.Background(), slog.LevelWarn) {
			q.logger.Warn("ring queue full, overwrote oldest entry", slog.Int("capacity", n))
		}
		return true
	}
	q.buf[(q.start+q.count)%n] = v
	q.count++
	return false
}

// Pop removes the front item.
func (q *FixedRingQueue[T]) Pop() (T, bool) {
	var zero T
	if q.count == 0 {
		return zero, false
	}
	v := q.buf[q.start]
	q.buf[q.start] = zero
	q.start = (q.start + 1) % len(q.buf)
	q.count--
	return v, true
}

// Peek returns the front item without removing it.
func (q *FixedRingQueue[T]) Peek() (T, bool) {
	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.buf[q.start], true
}

// At returns the i-th item counted from the front.
func (q *FixedRingQueue[T]) At(i int) T { return q.buf[(q.start+i)%len(q.buf)] }

// Len returns the number of queued items.
func (q *FixedRingQueue[T]) Len() int { return q.count }

// Cap returns the fixed capacity.
func (q *FixedRingQueue[T]) Cap() int { return len(q.buf) }

// Clear drops all items.
func (q *FixedRingQueue[T]) Clear() {
	clear(q.buf)
	q.start = 0
	q.count = 0
}
