// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ibus

import "fmt"

// Parser checks and decodes frames at the front of a Buffer according to its
// Role. The zero value decodes as RoleSensor.
type Parser struct {
	Role Role
}

var defaultParser = Parser{Role: RoleSensor}

// CheckFrame reports whether the front of buf holds a valid frame for
// RoleSensor. See Parser.Check.
func CheckFrame(buf Buffer) error {
	return defaultParser.Check(buf)
}

// NeedsResync reports whether the front byte of buf cannot start a valid
// RoleSensor frame and has to be dropped.
func NeedsResync(buf Buffer) bool {
	return defaultParser.NeedsResync(buf)
}

// NeedsResync reports whether the front byte of buf cannot start a valid
// frame. A buffer that does not yet hold the declared frame length does not
// need a resync: the caller has to wait instead.
func (p Parser) NeedsResync(buf Buffer) bool {
	return IsMalformed(p.Check(buf))
}

// Check inspects the frame at the front of buf. It returns nil when a whole,
// well-formed frame with a matching checksum is buffered; ErrIncompleteFrame
// when more bytes are needed to judge; or an error wrapping ErrInvalidLength,
// ErrInvalidCommand or ErrChecksumMismatch when the front byte must be
// dropped.
func (p Parser) Check(buf Buffer) error {
	n := buf.Len()
	if n == 0 {
		return ErrIncompleteFrame
	}

	first, err := buf.At(0)
	if err != nil {
		return ErrIncompleteFrame
	}
	length := int(first)
	if length < MinLength || length > MaxLength {
		return fmt.Errorf("%w: %d (valid %d-%d)", ErrInvalidLength, length, MinLength, MaxLength)
	}

	// Nothing more can be judged until the whole declared frame is here.
	if n < length {
		return ErrIncompleteFrame
	}

	second, err := buf.At(1)
	if err != nil {
		return ErrIncompleteFrame
	}
	cmd := Command(second & commandMask)
	if !p.Role.accepts(cmd, length) {
		return fmt.Errorf("%w: 0x%02X with length %d for %s", ErrInvalidCommand, uint8(cmd), length, p.Role)
	}

	expected, err := Checksum(buf, length-checksumSize)
	if err != nil {
		return ErrIncompleteFrame
	}
	lo, err := buf.At(length - 2)
	if err != nil {
		return ErrIncompleteFrame
	}
	hi, err := buf.At(length - 1)
	if err != nil {
		return ErrIncompleteFrame
	}
	got := uint16(lo) | uint16(hi)<<8
	if got != expected {
		return fmt.Errorf("%w: expected 0x%04X, got 0x%04X", ErrChecksumMismatch, expected, got)
	}

	return nil
}
