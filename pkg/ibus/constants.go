// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package ibus provides a Go implementation of the FlySky iBus serial protocol.
//
// iBus frames are length-prefixed and terminated by a 16-bit checksum:
//
//	[length] [command|address] [payload ...] [checksum low] [checksum high]
//
// The length byte counts the whole frame. The high nibble of the second byte
// is the command and the low nibble the sensor address. No start or escape
// bytes exist, so a reader that loses alignment recovers by dropping one byte
// at a time until a well-formed frame starts at the front of its buffer.
//
// This package decodes frames from any Buffer (usually a
// ringbuffer.RingBuffer[byte] filled by a reader goroutine), encodes sensor
// responses, emulates sensors, validates decoded values and keeps statistics.
package ibus

// Frame size limits
const (
	MinLength = 0x04 // length + command + 2 checksum bytes
	MaxLength = 0x20
)

// NumChannels is the number of servo channels carried by a full SET frame.
const NumChannels = 14

// Checksum configuration
const (
	checksumInitial = 0xFFFF
	checksumSize    = 2
)

// Command is the high nibble of the second frame byte.
type Command uint8

// Command codes
const (
	CmdSet      Command = 0x40
	CmdDiscover Command = 0x80
	CmdType     Command = 0x90
	CmdValue    Command = 0xA0
)

// Nibble masks for the command|address byte
const (
	commandMask = 0xF0
	addressMask = 0x0F
)

// MaxAddress is the highest sensor address that fits in the low nibble.
const MaxAddress = 0x0F

// SensorType identifies the kind of measurement a sensor reports.
type SensorType uint8

// Sensor type values
const (
	SensorInternalVoltage SensorType = 0x00
	SensorTemperature     SensorType = 0x01
	SensorRPM             SensorType = 0x02
	SensorExternalVoltage SensorType = 0x03
	SensorPressure        SensorType = 0x41
	SensorServo           SensorType = 0xFD
)

// SensorWidth is the size in bytes of a sensor's value.
type SensorWidth uint8

// Sensor width values
const (
	WidthShort SensorWidth = 0x02
	WidthLong  SensorWidth = 0x04
)

// Channel value limits used by the validator. Radios nominally send 1000-2000;
// extended travel on some transmitters reaches further. Zero marks an unused
// channel.
const (
	ChannelMin = 800
	ChannelMax = 2200
)
