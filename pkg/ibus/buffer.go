// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ibus

import (
	"github.com/Thermoquad/ibuscope/pkg/ringbuffer"
)

// Buffer is a read-only view of buffered bytes, indexed from the oldest.
// At must fail for i >= Len().
type Buffer interface {
	Len() int
	At(i int) (byte, error)
}

// Queue is a Buffer the consumer can remove bytes from.
type Queue interface {
	Buffer
	Discard(n int) int
}

// Sink accepts encoded frame bytes. Space follows ringbuffer.RingBuffer and
// counts one reserved slot, so Push accepts Space()-1 more bytes.
type Sink interface {
	Push(b byte) error
	Space() int
}

// Compile-time assertions that the ring buffer serves every role.
var (
	_ Queue = (*ringbuffer.RingBuffer[byte])(nil)
	_ Sink  = (*ringbuffer.RingBuffer[byte])(nil)
	_ Queue = (*ByteSlice)(nil)
)

// ByteSlice adapts a byte slice to Queue. Discard reslices; the backing array
// is never copied.
type ByteSlice struct {
	data []byte
}

// NewByteSlice wraps data.
func NewByteSlice(data []byte) *ByteSlice {
	return &ByteSlice{data: data}
}

// Len returns the number of remaining bytes.
func (s *ByteSlice) Len() int {
	return len(s.data)
}

// At returns the byte at offset i.
func (s *ByteSlice) At(i int) (byte, error) {
	if i < 0 || i >= len(s.data) {
		return 0, ringbuffer.ErrOutOfRange
	}
	return s.data[i], nil
}

// Discard drops up to n bytes from the front.
func (s *ByteSlice) Discard(n int) int {
	if n > len(s.data) {
		n = len(s.data)
	}
	if n < 0 {
		n = 0
	}
	s.data = s.data[n:]
	return n
}

// Bytes returns the remaining bytes.
func (s *ByteSlice) Bytes() []byte {
	return s.data
}
