// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ibus

import "fmt"

// AnomalyType represents different kinds of suspicious decoded values
type AnomalyType int

const (
	AnomalyChannelRange AnomalyType = iota
	AnomalyUnknownSensor
	AnomalyInvalidWidth
	AnomalyInvalidAddress
)

// String returns a short name for the anomaly
func (a AnomalyType) String() string {
	switch a {
	case AnomalyChannelRange:
		return "channel_range"
	case AnomalyUnknownSensor:
		return "unknown_sensor"
	case AnomalyInvalidWidth:
		return "invalid_width"
	case AnomalyInvalidAddress:
		return "invalid_address"
	default:
		return fmt.Sprintf("anomaly(%d)", int(a))
	}
}

// ValidationError represents a value that passed the checksum but looks wrong
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateMessage checks decoded values for anomalies.
// Returns a slice of validation errors (empty if the message looks sane)
func ValidateMessage(m Message) []ValidationError {
	errors := []ValidationError{}

	switch v := m.(type) {
	case SetChannels:
		errors = append(errors, validateSetChannels(v)...)
	case TypeResponse:
		errors = append(errors, validateTypeResponse(v)...)
	}

	// Address 0 is the receiver's own voltage sensor and never polled
	if addr, ok := AddressOf(m); ok && addr == 0 {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidAddress,
			Message: fmt.Sprintf("%s addressed to receiver (address 0)", FormatMessageName(m)),
			Details: map[string]interface{}{"address": addr},
		})
	}

	return errors
}

// validateSetChannels flags channels outside the servo range.
// Zero is treated as an unused channel.
func validateSetChannels(m SetChannels) []ValidationError {
	errors := []ValidationError{}
	for i, value := range m.Channels {
		if value == 0 {
			continue
		}
		if value < ChannelMin || value > ChannelMax {
			errors = append(errors, ValidationError{
				Type:    AnomalyChannelRange,
				Message: fmt.Sprintf("Channel %d out of range (%d, valid %d-%d)", i+1, value, ChannelMin, ChannelMax),
				Details: map[string]interface{}{"channel": i + 1, "value": value, "min": ChannelMin, "max": ChannelMax},
			})
		}
	}
	return errors
}

// validateTypeResponse checks the sensor type and width bytes
func validateTypeResponse(m TypeResponse) []ValidationError {
	errors := []ValidationError{}

	if !KnownSensorType(m.Sensor) {
		errors = append(errors, ValidationError{
			Type:    AnomalyUnknownSensor,
			Message: fmt.Sprintf("Unknown sensor type 0x%02X at address %d", uint8(m.Sensor), m.Address),
			Details: map[string]interface{}{"sensor": uint8(m.Sensor), "address": m.Address},
		})
	}

	if m.Width != WidthShort && m.Width != WidthLong {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidWidth,
			Message: fmt.Sprintf("Invalid sensor width %d at address %d (expected 2 or 4)", m.Width, m.Address),
			Details: map[string]interface{}{"width": uint8(m.Width), "address": m.Address},
		})
	}

	return errors
}

// KnownSensorType reports whether t is one of the defined sensor types
func KnownSensorType(t SensorType) bool {
	switch t {
	case SensorInternalVoltage, SensorTemperature, SensorRPM,
		SensorExternalVoltage, SensorPressure, SensorServo:
		return true
	}
	return false
}
