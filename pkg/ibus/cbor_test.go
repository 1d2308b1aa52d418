// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ibus

import (
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
)

func TestRecord_RoundTrip(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 123456789, time.UTC)
	msgs := []Message{
		DiscoveryRequest{Address: 1},
		DiscoveryResponse{Address: 1},
		SetChannels{Channels: setChannelsFullValues},
		TypeRequest{Address: 2},
		TypeResponse{Address: 2, Sensor: SensorInternalVoltage, Width: WidthShort},
		ValueRequest{Address: 3},
		ValueResponseShort{Address: 3, Value: 0},
		ValueResponseLong{Address: 3, Value: 0xFFFFFFFF},
	}

	for _, m := range msgs {
		t.Run(FormatMessageName(m), func(t *testing.T) {
			data, err := MarshalRecord(NewRecord(m, ts))
			if err != nil {
				t.Fatalf("MarshalRecord: %v", err)
			}
			r, err := UnmarshalRecord(data)
			if err != nil {
				t.Fatalf("UnmarshalRecord: %v", err)
			}
			if !r.Time().Equal(ts) {
				t.Errorf("Time() = %v, want %v", r.Time(), ts)
			}
			if r.Command != uint8(m.Command()) {
				t.Errorf("Command = 0x%02X, want 0x%02X", r.Command, uint8(m.Command()))
			}
			got, err := r.Message()
			if err != nil {
				t.Fatalf("Message: %v", err)
			}
			if got != m {
				t.Errorf("Message() = %#v, want %#v", got, m)
			}
		})
	}
}

func TestRecord_IntegerKeys(t *testing.T) {
	data, err := MarshalRecord(NewRecord(ValueResponseShort{Address: 5, Value: 9}, time.Unix(0, 1)))
	if err != nil {
		t.Fatalf("MarshalRecord: %v", err)
	}

	var raw map[int]interface{}
	if err := cbor.Unmarshal(data, &raw); err != nil {
		t.Fatalf("decode as map: %v", err)
	}
	for _, key := range []int{1, 2, 3, 4, 8} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing key %d in %v", key, raw)
		}
	}
	for _, key := range []int{5, 6, 7} {
		if _, ok := raw[key]; ok {
			t.Errorf("unexpected key %d in %v", key, raw)
		}
	}
}

func TestRecord_MessageErrors(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
	}{
		{"unknown kind", Record{Kind: "PING"}},
		{"type without sensor", Record{Kind: "TYPE_RESPONSE"}},
		{"value without value", Record{Kind: "VALUE_RESPONSE"}},
		{"long without value", Record{Kind: "VALUE_RESPONSE_LONG"}},
		{"short value overflow", Record{Kind: "VALUE_RESPONSE", Value: func() *uint32 { v := uint32(0x10000); return &v }()}},
		{"too many channels", Record{Kind: "SET_CHANNELS", Channels: make([]uint16, NumChannels+1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.rec.Message(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestUnmarshalRecord_Invalid(t *testing.T) {
	if _, err := UnmarshalRecord(nil); err == nil {
		t.Error("expected error for empty data")
	}
	if _, err := UnmarshalRecord([]byte{0xFF, 0x00}); err == nil {
		t.Error("expected error for malformed CBOR")
	}
}
