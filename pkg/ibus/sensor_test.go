// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ibus

import (
	"bytes"
	"errors"
	"math"
	"sync"
	"testing"
)

func newTestSensorSet(t *testing.T) *SensorSet {
	t.Helper()
	s := NewSensorSet()
	sensors := []Sensor{
		{Address: 1, Type: SensorInternalVoltage, Value: 1260},
		{Address: 2, Type: SensorPressure, Value: 0x12345678},
		{Address: 3, Type: SensorRPM, Width: WidthLong, Value: 0x00010000},
		{Address: 4, Type: SensorTemperature, Value: 650},
	}
	for _, sensor := range sensors {
		if err := s.Add(sensor); err != nil {
			t.Fatalf("Add(%d): %v", sensor.Address, err)
		}
	}
	return s
}

func TestSensorSet_Add(t *testing.T) {
	tests := []struct {
		name    string
		sensor  Sensor
		wantErr error
	}{
		{"address zero", Sensor{Address: 0, Type: SensorRPM}, ErrInvalidAddress},
		{"address too high", Sensor{Address: 16, Type: SensorRPM}, ErrInvalidAddress},
		{"duplicate", Sensor{Address: 1, Type: SensorRPM}, ErrDuplicateAddress},
		{"new address", Sensor{Address: 15, Type: SensorServo}, nil},
	}

	s := newTestSensorSet(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Add(tt.sensor)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Add() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Add() = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if s.Len() != 5 {
		t.Errorf("Len() = %d, want 5", s.Len())
	}
}

func TestSensorSet_AddInvalidWidth(t *testing.T) {
	s := NewSensorSet()
	if err := s.Add(Sensor{Address: 1, Type: SensorRPM, Width: 3}); err == nil {
		t.Error("expected error for width 3")
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

func TestSensorSet_DefaultWidth(t *testing.T) {
	s := newTestSensorSet(t)
	tests := []struct {
		addr uint8
		want SensorWidth
	}{
		{1, WidthShort},
		{2, WidthLong},
		{3, WidthLong},
		{4, WidthShort},
	}
	for _, tt := range tests {
		sensor, ok := s.Get(tt.addr)
		if !ok {
			t.Fatalf("sensor %d not found", tt.addr)
		}
		if sensor.Width != tt.want {
			t.Errorf("sensor %d width = %d, want %d", tt.addr, sensor.Width, tt.want)
		}
	}
}

func TestSensorSet_Respond(t *testing.T) {
	s := newTestSensorSet(t)
	tests := []struct {
		name string
		req  Message
		want Message
		ok   bool
	}{
		{"discovery", DiscoveryRequest{Address: 1}, DiscoveryResponse{Address: 1}, true},
		{"type short", TypeRequest{Address: 1}, TypeResponse{Address: 1, Sensor: SensorInternalVoltage, Width: WidthShort}, true},
		{"type long", TypeRequest{Address: 2}, TypeResponse{Address: 2, Sensor: SensorPressure, Width: WidthLong}, true},
		{"value short", ValueRequest{Address: 4}, ValueResponseShort{Address: 4, Value: 650}, true},
		{"value long", ValueRequest{Address: 2}, ValueResponseLong{Address: 2, Value: 0x12345678}, true},
		{"explicit long", ValueRequest{Address: 3}, ValueResponseLong{Address: 3, Value: 0x00010000}, true},
		{"unknown address", DiscoveryRequest{Address: 9}, nil, false},
		{"set channels", SetChannels{}, nil, false},
		{"response", DiscoveryResponse{Address: 1}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := s.Respond(tt.req)
			if ok != tt.ok {
				t.Fatalf("Respond() ok = %v, want %v", ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("Respond() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

// A request decoded in the sensor role and answered must decode back in the
// receiver role.
func TestSensorSet_RespondOnTheWire(t *testing.T) {
	s := newTestSensorSet(t)

	req, n := DecodeNext(buf(typeRequest2))
	if n != 4 {
		t.Fatalf("request consumed %d", n)
	}
	resp, ok := s.Respond(req)
	if !ok {
		t.Fatal("no response")
	}
	frame, err := EncodeMessage(resp)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	if !bytes.Equal(frame, typeResponse2) {
		t.Errorf("response frame = % X, want % X", frame, typeResponse2)
	}
}

func TestSensorSet_SetValue(t *testing.T) {
	s := newTestSensorSet(t)
	value, err := TemperatureValue(30)
	if err != nil {
		t.Fatalf("TemperatureValue: %v", err)
	}
	if err := s.SetValue(4, uint32(value)); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	got, _ := s.Respond(ValueRequest{Address: 4})
	if got != (ValueResponseShort{Address: 4, Value: 700}) {
		t.Errorf("Respond() = %#v", got)
	}
	if err := s.SetValue(9, 1); !errors.Is(err, ErrUnknownSensor) {
		t.Errorf("SetValue(9) = %v, want ErrUnknownSensor", err)
	}
	if err := s.SetValue(200, 1); !errors.Is(err, ErrUnknownSensor) {
		t.Errorf("SetValue(200) = %v, want ErrUnknownSensor", err)
	}
}

func TestSensorSet_Sensors(t *testing.T) {
	s := NewSensorSet()
	for _, addr := range []uint8{9, 2, 5} {
		if err := s.Add(Sensor{Address: addr, Type: SensorRPM}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	sensors := s.Sensors()
	if len(sensors) != 3 {
		t.Fatalf("Sensors() returned %d", len(sensors))
	}
	for i, want := range []uint8{2, 5, 9} {
		if sensors[i].Address != want {
			t.Errorf("sensors[%d].Address = %d, want %d", i, sensors[i].Address, want)
		}
	}

	// Copies, not references
	sensors[0].Value = 42
	if got, _ := s.Get(2); got.Value != 0 {
		t.Error("Sensors() must return copies")
	}
}

func TestSensorSet_ConcurrentUpdate(t *testing.T) {
	s := newTestSensorSet(t)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			s.SetValue(4, uint32(i))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			if _, ok := s.Respond(ValueRequest{Address: 4}); !ok {
				t.Error("missing response")
				return
			}
		}
	}()
	wg.Wait()
}

func TestValueConversions(t *testing.T) {
	tests := []struct {
		name    string
		convert func(float64) (uint16, error)
		in      float64
		want    uint16
	}{
		{"25 C", TemperatureValue, 25, 650},
		{"lowest temperature", TemperatureValue, -40, 0},
		{"highest temperature", TemperatureValue, MaxCelsius, 0xFFFF},
		{"12.5 V", VoltageValue, 12.5, 1250},
		// 12.6*100 is just below 1260 in binary floating point
		{"12.6 V", VoltageValue, 12.6, 1260},
		{"zero volts", VoltageValue, 0, 0},
		{"highest voltage", VoltageValue, MaxVolts, 0xFFFF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.convert(tt.in)
			if err != nil {
				t.Fatalf("conversion of %v failed: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("conversion of %v = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestValueConversions_OutOfRange(t *testing.T) {
	tests := []struct {
		name    string
		convert func(float64) (uint16, error)
		in      float64
	}{
		{"below -40 C", TemperatureValue, -100},
		{"just below -40 C", TemperatureValue, -40.1},
		{"above max temperature", TemperatureValue, 7000},
		{"NaN temperature", TemperatureValue, math.NaN()},
		{"negative voltage", VoltageValue, -1},
		{"above max voltage", VoltageValue, 1000},
		{"infinite voltage", VoltageValue, math.Inf(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.convert(tt.in)
			if !errors.Is(err, ErrValueRange) {
				t.Errorf("conversion of %v = %d, %v; want ErrValueRange", tt.in, got, err)
			}
		})
	}
}
