// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package ringbuffer provides a fixed-capacity circular buffer for exactly one
// producer goroutine and one consumer goroutine, without locks.
//
// The producer may call Push and Load. The consumer may call Pop, At, All,
// Discard and Clear. Len, IsEmpty, IsFull and Space may be called from either
// side, but the value they return is advisory: the other side may have moved
// its cursor by the time the caller acts on it. Every operation stays in
// bounds under that staleness.
//
// One slot is always left unused so that a full buffer and an empty buffer
// can be told apart from the cursors alone; a buffer of size N holds at most
// N-1 elements.
package ringbuffer

import (
	"errors"
	"fmt"
	"iter"
	"sync/atomic"
)

var (
	// ErrFull is returned by Push when the buffer holds Cap() elements.
	// The pushed value is dropped.
	ErrFull = errors.New("ringbuffer: buffer full")

	// ErrEmpty is returned by Pop on an empty buffer.
	ErrEmpty = errors.New("ringbuffer: buffer empty")

	// ErrOutOfRange is returned by At when the index is not below Len().
	ErrOutOfRange = errors.New("ringbuffer: index out of range")
)

// RingBuffer is a lock-free single-producer/single-consumer circular buffer.
//
// head is written only by the producer and tail only by the consumer. Both are
// published with atomic stores, so a slot written before head advances is
// visible to a consumer that observes the new head, and a slot read before
// tail advances is never overwritten by a producer that observes the new tail.
type RingBuffer[T any] struct {
	data []T
	size uint64

	head atomic.Uint64 // next slot to write
	_    [56]byte      // keep the cursors on separate cache lines
	tail atomic.Uint64 // next slot to read
	_    [56]byte
}

// New allocates a ring buffer with size slots. The usable capacity is size-1.
// size must be at least 2.
func New[T any](size int) *RingBuffer[T] {
	if size < 2 {
		panic(fmt.Sprintf("ringbuffer: size must be at least 2, got %d", size))
	}
	return &RingBuffer[T]{
		data: make([]T, size),
		size: uint64(size),
	}
}

// Size returns the number of slots, including the reserved one.
func (r *RingBuffer[T]) Size() int {
	return int(r.size)
}

// Cap returns the number of elements the buffer can hold.
func (r *RingBuffer[T]) Cap() int {
	return int(r.size - 1)
}

// next returns the slot after i, wrapping at size.
func (r *RingBuffer[T]) next(i uint64) uint64 {
	i++
	if i == r.size {
		return 0
	}
	return i
}

// distance returns (head - tail) mod size.
func (r *RingBuffer[T]) distance(head, tail uint64) uint64 {
	if head >= tail {
		return head - tail
	}
	return r.size - tail + head
}

// Push appends v at the head. If the buffer is full the value is dropped and
// ErrFull is returned; the buffer is left unchanged.
func (r *RingBuffer[T]) Push(v T) error {
	head := r.head.Load()
	next := r.next(head)
	if next == r.tail.Load() {
		return ErrFull
	}
	r.data[head] = v
	r.head.Store(next)
	return nil
}

// Load pushes every value in order. Values that do not fit are dropped; the
// returned error wraps ErrFull and reports how many were lost.
func (r *RingBuffer[T]) Load(values []T) error {
	dropped := 0
	for _, v := range values {
		if err := r.Push(v); err != nil {
			dropped++
		}
	}
	if dropped > 0 {
		return fmt.Errorf("%w: dropped %d of %d values", ErrFull, dropped, len(values))
	}
	return nil
}

// Pop removes and returns the oldest element.
func (r *RingBuffer[T]) Pop() (T, error) {
	var zero T
	tail := r.tail.Load()
	if tail == r.head.Load() {
		return zero, ErrEmpty
	}
	v := r.data[tail]
	r.data[tail] = zero
	r.tail.Store(r.next(tail))
	return v, nil
}

// Discard removes up to n of the oldest elements and returns how many were
// removed.
func (r *RingBuffer[T]) Discard(n int) int {
	removed := 0
	for removed < n {
		if _, err := r.Pop(); err != nil {
			break
		}
		removed++
	}
	return removed
}

// At returns the element at logical offset i without removing it. Offset 0 is
// the oldest element.
func (r *RingBuffer[T]) At(i int) (T, error) {
	var zero T
	tail := r.tail.Load()
	n := r.distance(r.head.Load(), tail)
	if i < 0 || uint64(i) >= n {
		return zero, ErrOutOfRange
	}
	return r.data[(tail+uint64(i))%r.size], nil
}

// Len returns the number of buffered elements.
func (r *RingBuffer[T]) Len() int {
	tail := r.tail.Load()
	return int(r.distance(r.head.Load(), tail))
}

// IsEmpty reports whether Len() == 0.
func (r *RingBuffer[T]) IsEmpty() bool {
	return r.Len() == 0
}

// IsFull reports whether Len() == Cap().
func (r *RingBuffer[T]) IsFull() bool {
	return r.Len() >= r.Cap()
}

// Space returns Size() - Len(). The count includes the reserved slot, so a
// Push succeeds only while Space() > 1.
func (r *RingBuffer[T]) Space() int {
	return r.Size() - r.Len()
}

// Clear resets both cursors. Neither producer nor consumer may be active.
func (r *RingBuffer[T]) Clear() {
	r.head.Store(0)
	r.tail.Store(0)
}

// All returns an iterator over the buffered elements from oldest to newest.
// The length is re-read on every step, so elements pushed during iteration
// may be included and elements popped during iteration end it early.
func (r *RingBuffer[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for pos := 0; ; pos++ {
			v, err := r.At(pos)
			if err != nil {
				return
			}
			if !yield(v) {
				return
			}
		}
	}
}
