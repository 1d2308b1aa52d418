// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ibus

import (
	"fmt"
	"math"
	"sync"
)

// Sensor is one emulated telemetry sensor.
type Sensor struct {
	Address uint8
	Type    SensorType
	Width   SensorWidth
	Value   uint32
}

// DefaultWidth returns the value width a sensor type normally uses.
func DefaultWidth(t SensorType) SensorWidth {
	if t == SensorPressure {
		return WidthLong
	}
	return WidthShort
}

// Natural-unit limits of the 16-bit temperature and voltage encodings
const (
	MinCelsius = -40.0
	MaxCelsius = (0xFFFF - 400) / 10.0
	MinVolts   = 0.0
	MaxVolts   = 0xFFFF / 100.0
)

// TemperatureValue converts degrees Celsius to the iBus encoding
// (tenths of a degree, offset by 40 degrees). Temperatures outside
// MinCelsius..MaxCelsius return ErrValueRange.
func TemperatureValue(celsius float64) (uint16, error) {
	if math.IsNaN(celsius) || celsius < MinCelsius || celsius > MaxCelsius {
		return 0, fmt.Errorf("%w: temperature %.1f (valid %.0f to %.1f)", ErrValueRange, celsius, MinCelsius, MaxCelsius)
	}
	return uint16(math.Round(celsius*10 + 400)), nil
}

// VoltageValue converts volts to the iBus encoding (hundredths of a volt).
// Voltages outside MinVolts..MaxVolts return ErrValueRange.
func VoltageValue(volts float64) (uint16, error) {
	if math.IsNaN(volts) || volts < MinVolts || volts > MaxVolts {
		return 0, fmt.Errorf("%w: voltage %.2f (valid %.0f to %.2f)", ErrValueRange, volts, MinVolts, MaxVolts)
	}
	return uint16(math.Round(volts * 100)), nil
}

// SensorSet answers receiver requests on behalf of a set of sensors.
// It is safe for concurrent use: values may be updated while another
// goroutine is responding.
type SensorSet struct {
	mu      sync.RWMutex
	sensors [MaxAddress + 1]*Sensor
	count   int
}

// NewSensorSet creates an empty sensor set.
func NewSensorSet() *SensorSet {
	return &SensorSet{}
}

// Add registers a sensor. Address 0 belongs to the receiver itself and is
// rejected, as is any address above MaxAddress or one already in use.
// A zero Width is replaced with DefaultWidth.
func (s *SensorSet) Add(sensor Sensor) error {
	if sensor.Address == 0 || sensor.Address > MaxAddress {
		return fmt.Errorf("%w: %d (valid 1-%d)", ErrInvalidAddress, sensor.Address, MaxAddress)
	}
	if sensor.Width == 0 {
		sensor.Width = DefaultWidth(sensor.Type)
	}
	if sensor.Width != WidthShort && sensor.Width != WidthLong {
		return fmt.Errorf("sensor %d: invalid width %d", sensor.Address, sensor.Width)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sensors[sensor.Address] != nil {
		return fmt.Errorf("%w: %d", ErrDuplicateAddress, sensor.Address)
	}
	s.sensors[sensor.Address] = &sensor
	s.count++
	return nil
}

// SetValue updates the reading of the sensor at addr.
func (s *SensorSet) SetValue(addr uint8, value uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if addr > MaxAddress || s.sensors[addr] == nil {
		return fmt.Errorf("%w: %d", ErrUnknownSensor, addr)
	}
	s.sensors[addr].Value = value
	return nil
}

// Get returns a copy of the sensor at addr.
func (s *SensorSet) Get(addr uint8) (Sensor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if addr > MaxAddress || s.sensors[addr] == nil {
		return Sensor{}, false
	}
	return *s.sensors[addr], true
}

// Len returns the number of registered sensors.
func (s *SensorSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Sensors returns copies of all sensors ordered by address.
func (s *SensorSet) Sensors() []Sensor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Sensor, 0, s.count)
	for _, sensor := range s.sensors {
		if sensor != nil {
			out = append(out, *sensor)
		}
	}
	return out
}

// Respond returns the reply a sensor sends for req. It returns false when no
// sensor is registered at the request's address or req is not a sensor
// request.
func (s *SensorSet) Respond(req Message) (Message, bool) {
	addr, ok := AddressOf(req)
	if !ok {
		return nil, false
	}
	sensor, ok := s.Get(addr)
	if !ok {
		return nil, false
	}

	switch req.(type) {
	case DiscoveryRequest:
		return DiscoveryResponse{Address: addr}, true

	case TypeRequest:
		return TypeResponse{Address: addr, Sensor: sensor.Type, Width: sensor.Width}, true

	case ValueRequest:
		if sensor.Width == WidthLong {
			return ValueResponseLong{Address: addr, Value: sensor.Value}, true
		}
		return ValueResponseShort{Address: addr, Value: uint16(sensor.Value)}, true
	}

	return nil, false
}
