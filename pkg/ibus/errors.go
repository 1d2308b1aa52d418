// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ibus

import "errors"

// Frame errors. ErrIncompleteFrame means "wait for more bytes"; the other
// three mean the front byte cannot start a frame and must be dropped.
var (
	ErrIncompleteFrame  = errors.New("ibus: incomplete frame")
	ErrInvalidLength    = errors.New("ibus: invalid length")
	ErrInvalidCommand   = errors.New("ibus: invalid command")
	ErrChecksumMismatch = errors.New("ibus: checksum mismatch")
)

// Encoder errors
var (
	ErrUnsupportedVariant = errors.New("ibus: message has no outbound encoding")
	ErrFrameLength        = errors.New("ibus: encoded frame length out of range")
	ErrNoSpace            = errors.New("ibus: not enough space for frame")
)

// Sensor set errors
var (
	ErrInvalidAddress   = errors.New("ibus: invalid sensor address")
	ErrDuplicateAddress = errors.New("ibus: duplicate sensor address")
	ErrUnknownSensor    = errors.New("ibus: unknown sensor")
	ErrValueRange       = errors.New("ibus: value out of range")
)

// IsMalformed reports whether err is one of the frame errors that require
// dropping a byte to resynchronize.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrInvalidLength) ||
		errors.Is(err, ErrInvalidCommand) ||
		errors.Is(err, ErrChecksumMismatch)
}
