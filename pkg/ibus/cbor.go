// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ibus

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Record is the machine-readable form of a decoded message, encoded as a CBOR
// map with integer keys. Sensor and Value are pointers because zero is a
// meaningful sensor type and reading.
type Record struct {
	Timestamp int64    `cbor:"1,keyasint"` // Unix nanoseconds
	Command   uint8    `cbor:"2,keyasint"`
	Kind      string   `cbor:"3,keyasint"` // FormatMessageName
	Address   uint8    `cbor:"4,keyasint,omitempty"`
	Channels  []uint16 `cbor:"5,keyasint,omitempty"`
	Sensor    *uint8   `cbor:"6,keyasint,omitempty"`
	Width     uint8    `cbor:"7,keyasint,omitempty"`
	Value     *uint32  `cbor:"8,keyasint,omitempty"`
}

// NewRecord builds the record for m received at t
func NewRecord(m Message, t time.Time) Record {
	r := Record{
		Timestamp: t.UnixNano(),
		Command:   uint8(m.Command()),
		Kind:      FormatMessageName(m),
	}
	if addr, ok := AddressOf(m); ok {
		r.Address = addr
	}

	switch v := m.(type) {
	case SetChannels:
		r.Channels = append([]uint16(nil), v.Channels[:]...)
	case TypeResponse:
		sensor := uint8(v.Sensor)
		r.Sensor = &sensor
		r.Width = uint8(v.Width)
	case ValueResponseShort:
		value := uint32(v.Value)
		r.Value = &value
	case ValueResponseLong:
		value := v.Value
		r.Value = &value
	}
	return r
}

// Time returns the record timestamp
func (r Record) Time() time.Time {
	return time.Unix(0, r.Timestamp)
}

// Message rebuilds the message the record was made from
func (r Record) Message() (Message, error) {
	switch r.Kind {
	case "DISCOVERY_REQUEST":
		return DiscoveryRequest{Address: r.Address}, nil
	case "DISCOVERY_RESPONSE":
		return DiscoveryResponse{Address: r.Address}, nil
	case "TYPE_REQUEST":
		return TypeRequest{Address: r.Address}, nil
	case "VALUE_REQUEST":
		return ValueRequest{Address: r.Address}, nil

	case "SET_CHANNELS":
		if len(r.Channels) > NumChannels {
			return nil, fmt.Errorf("record has %d channels, max %d", len(r.Channels), NumChannels)
		}
		var msg SetChannels
		copy(msg.Channels[:], r.Channels)
		return msg, nil

	case "TYPE_RESPONSE":
		if r.Sensor == nil {
			return nil, fmt.Errorf("TYPE_RESPONSE record missing sensor type")
		}
		return TypeResponse{Address: r.Address, Sensor: SensorType(*r.Sensor), Width: SensorWidth(r.Width)}, nil

	case "VALUE_RESPONSE":
		if r.Value == nil {
			return nil, fmt.Errorf("VALUE_RESPONSE record missing value")
		}
		if *r.Value > 0xFFFF {
			return nil, fmt.Errorf("VALUE_RESPONSE value out of range: %d", *r.Value)
		}
		return ValueResponseShort{Address: r.Address, Value: uint16(*r.Value)}, nil

	case "VALUE_RESPONSE_LONG":
		if r.Value == nil {
			return nil, fmt.Errorf("VALUE_RESPONSE_LONG record missing value")
		}
		return ValueResponseLong{Address: r.Address, Value: *r.Value}, nil
	}
	return nil, fmt.Errorf("unknown record kind %q", r.Kind)
}

// MarshalRecord encodes a record as CBOR
func MarshalRecord(r Record) ([]byte, error) {
	data, err := cbor.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode CBOR: %w", err)
	}
	return data, nil
}

// UnmarshalRecord decodes one CBOR record
func UnmarshalRecord(data []byte) (Record, error) {
	var r Record
	if len(data) == 0 {
		return r, fmt.Errorf("empty CBOR payload")
	}
	if err := cbor.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("failed to decode CBOR: %w", err)
	}
	return r, nil
}
