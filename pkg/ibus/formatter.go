// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ibus

import (
	"fmt"
	"strings"
	"time"
)

// FormatMessage formats a message into a human-readable line
func FormatMessage(m Message, t time.Time) string {
	timestamp := t.Format("15:04:05.000")
	result := fmt.Sprintf("[%s] %s (0x%02X)", timestamp, FormatMessageName(m), uint8(m.Command()))

	if addr, ok := AddressOf(m); ok {
		result += fmt.Sprintf(" addr=%d", addr)
	}
	result += "\n"

	return result + FormatPayload(m)
}

// FormatMessageName returns the upper-case name of a message variant
func FormatMessageName(m Message) string {
	switch m.(type) {
	case DiscoveryRequest:
		return "DISCOVERY_REQUEST"
	case DiscoveryResponse:
		return "DISCOVERY_RESPONSE"
	case SetChannels:
		return "SET_CHANNELS"
	case TypeRequest:
		return "TYPE_REQUEST"
	case TypeResponse:
		return "TYPE_RESPONSE"
	case ValueRequest:
		return "VALUE_REQUEST"
	case ValueResponseShort:
		return "VALUE_RESPONSE"
	case ValueResponseLong:
		return "VALUE_RESPONSE_LONG"
	default:
		return "UNKNOWN"
	}
}

// FormatCommand returns the name of a command code
func FormatCommand(cmd Command) string {
	switch cmd {
	case CmdSet:
		return "SET"
	case CmdDiscover:
		return "DISCOVER"
	case CmdType:
		return "TYPE"
	case CmdValue:
		return "VALUE"
	default:
		return "UNKNOWN"
	}
}

// FormatSensorType returns the name of a sensor type
func FormatSensorType(t SensorType) string {
	switch t {
	case SensorInternalVoltage:
		return "INTERNAL_VOLTAGE"
	case SensorTemperature:
		return "TEMPERATURE"
	case SensorRPM:
		return "RPM"
	case SensorExternalVoltage:
		return "EXTERNAL_VOLTAGE"
	case SensorPressure:
		return "PRESSURE"
	case SensorServo:
		return "SERVO"
	default:
		return "UNKNOWN"
	}
}

// FormatSensorValue renders a raw reading in the unit of its sensor type
func FormatSensorValue(t SensorType, value uint32) string {
	switch t {
	case SensorInternalVoltage, SensorExternalVoltage:
		return fmt.Sprintf("%.2f V", float64(value)/100.0)
	case SensorTemperature:
		return fmt.Sprintf("%.1f°C", (float64(value)-400.0)/10.0)
	case SensorRPM:
		return fmt.Sprintf("%d RPM", value)
	case SensorPressure:
		return fmt.Sprintf("%d Pa", value)
	default:
		return fmt.Sprintf("%d", value)
	}
}

// FormatPayload formats the fields of a message, one indented line per group
func FormatPayload(m Message) string {
	switch v := m.(type) {
	case DiscoveryRequest, DiscoveryResponse, TypeRequest, ValueRequest:
		return "  (no payload)\n"

	case SetChannels:
		var s strings.Builder
		for i, value := range v.Channels {
			if i%7 == 0 {
				s.WriteString("  ")
			}
			s.WriteString(fmt.Sprintf("CH%-2d=%4d ", i+1, value))
			if i%7 == 6 {
				s.WriteString("\n")
			}
		}
		return s.String()

	case TypeResponse:
		return fmt.Sprintf("  Sensor: %s (0x%02X), Width: %d bytes\n", FormatSensorType(v.Sensor), uint8(v.Sensor), v.Width)

	case ValueResponseShort:
		return fmt.Sprintf("  Value: %d (0x%04X)\n", v.Value, v.Value)

	case ValueResponseLong:
		return fmt.Sprintf("  Value: %d (0x%08X)\n", v.Value, v.Value)
	}
	return ""
}

// FormatFrame returns a hex dump of frame bytes
func FormatFrame(frame []byte) string {
	var s strings.Builder
	for i, b := range frame {
		if i > 0 {
			if i%16 == 0 {
				s.WriteString("\n")
			} else {
				s.WriteString(" ")
			}
		}
		s.WriteString(fmt.Sprintf("%02X", b))
	}
	return s.String()
}
