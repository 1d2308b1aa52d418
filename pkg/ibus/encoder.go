// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ibus

import (
	"errors"
	"fmt"
)

// maxBody is the longest command+payload section any response needs.
const maxBody = 5

// AppendMessage appends the wire frame for m to dst.
// Only the sensor responses (DiscoveryResponse, TypeResponse,
// ValueResponseShort, ValueResponseLong) can be encoded; requests return
// ErrUnsupportedVariant. On error dst is returned unchanged.
func AppendMessage(dst []byte, m Message) ([]byte, error) {
	var body [maxBody]byte
	n, err := encodeBody(body[:], m)
	if err != nil {
		return dst, err
	}
	return appendFrame(dst, body[:n])
}

// EncodeMessage returns the wire frame for m.
func EncodeMessage(m Message) ([]byte, error) {
	return AppendMessage(make([]byte, 0, MaxLength), m)
}

// AppendFrame appends the wire frame for any message, including the
// requests and SET frames a receiver sends. SetChannels is always written
// in its full NumChannels form, whatever length it was decoded from.
func AppendFrame(dst []byte, m Message) ([]byte, error) {
	var body [1 + 2*NumChannels]byte
	n, err := encodeBody(body[:], m)
	if errors.Is(err, ErrUnsupportedVariant) {
		n, err = encodeReceiverBody(body[:], m)
	}
	if err != nil {
		return dst, err
	}
	return appendFrame(dst, body[:n])
}

// EncodeFrame returns the wire frame for any message.
func EncodeFrame(m Message) ([]byte, error) {
	return AppendFrame(make([]byte, 0, MaxLength), m)
}

// PushMessage writes the frame for m into dst. Either the whole frame is
// written or nothing is: when dst has no room for every byte ErrNoSpace is
// returned before the first push.
func PushMessage(dst Sink, m Message) error {
	var scratch [MaxLength]byte
	frame, err := AppendMessage(scratch[:0], m)
	if err != nil {
		return err
	}
	// Space counts the slot a ring buffer keeps free.
	if dst.Space() <= len(frame) {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrNoSpace, len(frame), dst.Space()-1)
	}
	for _, b := range frame {
		if err := dst.Push(b); err != nil {
			return err
		}
	}
	return nil
}

// encodeBody writes the command|address byte and payload of m into body.
func encodeBody(body []byte, m Message) (int, error) {
	switch v := m.(type) {
	case DiscoveryResponse:
		body[0] = byte(CmdDiscover) | v.Address&addressMask
		return 1, nil

	case TypeResponse:
		body[0] = byte(CmdType) | v.Address&addressMask
		body[1] = byte(v.Sensor)
		body[2] = byte(v.Width)
		return 3, nil

	case ValueResponseShort:
		body[0] = byte(CmdValue) | v.Address&addressMask
		body[1] = byte(v.Value)
		body[2] = byte(v.Value >> 8)
		return 3, nil

	case ValueResponseLong:
		body[0] = byte(CmdValue) | v.Address&addressMask
		body[1] = byte(v.Value)
		body[2] = byte(v.Value >> 8)
		body[3] = byte(v.Value >> 16)
		body[4] = byte(v.Value >> 24)
		return 5, nil
	}
	return 0, fmt.Errorf("%w: %T", ErrUnsupportedVariant, m)
}

// encodeReceiverBody writes the body of a frame sent by the receiver.
func encodeReceiverBody(body []byte, m Message) (int, error) {
	switch v := m.(type) {
	case DiscoveryRequest:
		body[0] = byte(CmdDiscover) | v.Address&addressMask
		return 1, nil

	case TypeRequest:
		body[0] = byte(CmdType) | v.Address&addressMask
		return 1, nil

	case ValueRequest:
		body[0] = byte(CmdValue) | v.Address&addressMask
		return 1, nil

	case SetChannels:
		body[0] = byte(CmdSet)
		for i, c := range v.Channels {
			body[1+2*i] = byte(c)
			body[2+2*i] = byte(c >> 8)
		}
		return 1 + 2*NumChannels, nil
	}
	return 0, fmt.Errorf("%w: %T", ErrUnsupportedVariant, m)
}

// appendFrame wraps body with the length byte and checksum.
func appendFrame(dst []byte, body []byte) ([]byte, error) {
	length := len(body) + 3
	if length < MinLength || length > MaxLength {
		return dst, fmt.Errorf("%w: %d", ErrFrameLength, length)
	}

	start := len(dst)
	dst = append(dst, byte(length))
	dst = append(dst, body...)
	sum := ChecksumBytes(dst[start:])
	dst = append(dst, byte(sum), byte(sum>>8))
	return dst, nil
}
