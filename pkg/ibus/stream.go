// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ibus

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"github.com/Thermoquad/ibuscope/pkg/ringbuffer"
)

// Handler receives each decode result from a Stream: either a message, or a
// malformed-frame error after the offending byte has been dropped.
type Handler func(msg Message, err error)

// readChunk is the Pump read size
const readChunk = 256

// Stream connects one byte producer to one frame consumer through a ring
// buffer. Feed and Pump belong to the producer goroutine; Drain, Run and
// Decoder to the consumer goroutine.
type Stream struct {
	ring    *ringbuffer.RingBuffer[byte]
	decoder *Decoder
	ready   chan struct{}
	dropped atomic.Uint64
}

// NewStream creates a stream whose ring buffer has size slots.
func NewStream(size int, role Role) *Stream {
	ring := ringbuffer.New[byte](size)
	return &Stream{
		ring:    ring,
		decoder: NewDecoder(ring, role),
		ready:   make(chan struct{}, 1),
	}
}

// Feed pushes p into the ring buffer and wakes the consumer. Bytes that do
// not fit are dropped and counted. Returns the number of bytes accepted.
func (s *Stream) Feed(p []byte) int {
	accepted := 0
	for _, b := range p {
		if err := s.ring.Push(b); err != nil {
			s.dropped.Add(1)
			continue
		}
		accepted++
	}
	if accepted > 0 {
		s.signal()
	}
	return accepted
}

// signal wakes Run without blocking. One pending wakeup is enough because
// Run drains everything buffered each time it wakes.
func (s *Stream) signal() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// Pump reads from r and feeds the stream until r fails or ctx is done.
// io.EOF ends the pump with a nil error. A blocked Read is not interrupted by
// ctx; close the reader to unblock it.
func (s *Stream) Pump(ctx context.Context, r io.Reader) error {
	buf := make([]byte, readChunk)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 {
			s.Feed(buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// Drain decodes until the buffer holds no complete frame. Each message and
// each malformed-frame error is passed to h. Returns the number of messages
// delivered.
func (s *Stream) Drain(h Handler) int {
	delivered := 0
	for {
		msg, err := s.decoder.Next()
		if errors.Is(err, ErrIncompleteFrame) {
			return delivered
		}
		if err == nil {
			delivered++
		}
		if h != nil {
			h(msg, err)
		}
	}
}

// Run drains the stream every time the producer signals new bytes, until ctx
// is done. It returns ctx.Err().
func (s *Stream) Run(ctx context.Context, h Handler) error {
	for {
		s.Drain(h)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.ready:
		}
	}
}

// Dropped returns how many bytes Feed discarded because the buffer was full.
func (s *Stream) Dropped() uint64 {
	return s.dropped.Load()
}

// Buffered returns the number of bytes waiting to be decoded.
func (s *Stream) Buffered() int {
	return s.ring.Len()
}

// Decoder returns the consumer-side decoder for synchronization details.
func (s *Stream) Decoder() *Decoder {
	return s.decoder
}
