// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ibus

// Message is one decoded iBus frame. The set of implementations is closed:
// DiscoveryRequest, DiscoveryResponse, SetChannels, TypeRequest, TypeResponse,
// ValueRequest, ValueResponseShort and ValueResponseLong.
type Message interface {
	// Command returns the frame's command code.
	Command() Command
	isMessage()
}

// DiscoveryRequest asks whether a sensor exists at Address.
type DiscoveryRequest struct {
	Address uint8
}

// DiscoveryResponse acknowledges a discovery request.
type DiscoveryResponse struct {
	Address uint8
}

// SetChannels carries servo channel values. Channels past the count encoded
// in the frame are zero.
type SetChannels struct {
	Channels [NumChannels]uint16
}

// TypeRequest asks the sensor at Address for its type.
type TypeRequest struct {
	Address uint8
}

// TypeResponse reports a sensor's type and value width.
type TypeResponse struct {
	Address uint8
	Sensor  SensorType
	Width   SensorWidth
}

// ValueRequest asks the sensor at Address for its current value.
type ValueRequest struct {
	Address uint8
}

// ValueResponseShort is a 2-byte sensor reading.
type ValueResponseShort struct {
	Address uint8
	Value   uint16
}

// ValueResponseLong is a 4-byte sensor reading.
type ValueResponseLong struct {
	Address uint8
	Value   uint32
}

func (DiscoveryRequest) Command() Command   { return CmdDiscover }
func (DiscoveryResponse) Command() Command  { return CmdDiscover }
func (SetChannels) Command() Command        { return CmdSet }
func (TypeRequest) Command() Command        { return CmdType }
func (TypeResponse) Command() Command       { return CmdType }
func (ValueRequest) Command() Command       { return CmdValue }
func (ValueResponseShort) Command() Command { return CmdValue }
func (ValueResponseLong) Command() Command  { return CmdValue }

func (DiscoveryRequest) isMessage()   {}
func (DiscoveryResponse) isMessage()  {}
func (SetChannels) isMessage()        {}
func (TypeRequest) isMessage()        {}
func (TypeResponse) isMessage()       {}
func (ValueRequest) isMessage()       {}
func (ValueResponseShort) isMessage() {}
func (ValueResponseLong) isMessage()  {}

// AddressOf returns the sensor address a message refers to. SetChannels
// frames are not addressed and report false.
func AddressOf(m Message) (uint8, bool) {
	switch v := m.(type) {
	case DiscoveryRequest:
		return v.Address, true
	case DiscoveryResponse:
		return v.Address, true
	case TypeRequest:
		return v.Address, true
	case TypeResponse:
		return v.Address, true
	case ValueRequest:
		return v.Address, true
	case ValueResponseShort:
		return v.Address, true
	case ValueResponseLong:
		return v.Address, true
	}
	return 0, false
}

// IsRequest reports whether m travels from the receiver to sensors.
func IsRequest(m Message) bool {
	switch m.(type) {
	case DiscoveryRequest, TypeRequest, ValueRequest, SetChannels:
		return true
	}
	return false
}
