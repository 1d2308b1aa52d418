// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ibus

// DecodeNext decodes the RoleSensor frame at the front of buf without
// removing anything. See Parser.DecodeNext.
func DecodeNext(buf Buffer) (Message, int) {
	return defaultParser.DecodeNext(buf)
}

// DecodeNext decodes the frame at the front of buf without removing anything
// and returns the message with the number of bytes the caller must now drop:
//
//   - (nil, 1): the front byte cannot start a frame. Drop one byte and call
//     again.
//   - (nil, 0): the frame is not complete. Drop nothing and wait for more
//     bytes before calling again.
//   - (msg, n): a valid frame of n bytes. Drop exactly n bytes.
func (p Parser) DecodeNext(buf Buffer) (Message, int) {
	msg, n, _ := p.step(buf)
	return msg, n
}

// step is DecodeNext that also returns the frame check error.
func (p Parser) step(buf Buffer) (Message, int, error) {
	err := p.Check(buf)
	if IsMalformed(err) {
		return nil, 1, err
	}
	if err != nil || buf.Len() < 2 {
		return nil, 0, ErrIncompleteFrame
	}

	length := int(peek(buf, 0))
	msg := p.decode(buf, length)
	if msg == nil {
		return nil, 1, ErrInvalidCommand
	}
	return msg, length, nil
}

// decode builds the message for a frame that passed Check.
func (p Parser) decode(buf Buffer, length int) Message {
	b1 := peek(buf, 1)
	cmd := Command(b1 & commandMask)
	addr := b1 & addressMask

	switch cmd {
	case CmdSet:
		return decodeSetChannels(buf, length)

	case CmdDiscover:
		if p.Role == RoleReceiver {
			return DiscoveryResponse{Address: addr}
		}
		return DiscoveryRequest{Address: addr}

	case CmdType:
		if length == requestFrameLength {
			return TypeRequest{Address: addr}
		}
		return TypeResponse{
			Address: addr,
			Sensor:  SensorType(peek(buf, 2)),
			Width:   SensorWidth(peek(buf, 3)),
		}

	case CmdValue:
		switch length {
		case requestFrameLength:
			return ValueRequest{Address: addr}
		case valueShortLength:
			return ValueResponseShort{
				Address: addr,
				Value:   uint16(peek(buf, 2)) | uint16(peek(buf, 3))<<8,
			}
		default:
			return ValueResponseLong{
				Address: addr,
				Value: uint32(peek(buf, 2)) | uint32(peek(buf, 3))<<8 |
					uint32(peek(buf, 4))<<16 | uint32(peek(buf, 5))<<24,
			}
		}
	}

	// Unreachable for frames accepted by a Role.
	return nil
}

// decodeSetChannels reads length/2-2 little-endian channel values starting
// at offset 2. At most NumChannels are kept.
func decodeSetChannels(buf Buffer, length int) SetChannels {
	var msg SetChannels
	count := length/2 - 2
	if count > NumChannels {
		count = NumChannels
	}
	for i := 0; i < count; i++ {
		msg.Channels[i] = uint16(peek(buf, 2+2*i)) | uint16(peek(buf, 3+2*i))<<8
	}
	return msg
}

// peek returns buf[i], or 0 if i is not buffered. Callers only ask for
// offsets inside a frame that already passed Check.
func peek(buf Buffer, i int) byte {
	b, err := buf.At(i)
	if err != nil {
		return 0
	}
	return b
}

// Decoder drives a Parser over a Queue, removing bytes as frames are decoded
// or skipped. It is used by the single consumer of the queue.
type Decoder struct {
	parser       Parser
	queue        Queue
	synchronized bool
	skippedBytes int
}

// NewDecoder creates a decoder that consumes from q.
func NewDecoder(q Queue, role Role) *Decoder {
	return &Decoder{
		parser: Parser{Role: role},
		queue:  q,
	}
}

// Reset forgets synchronization state. Buffered bytes are left alone.
func (d *Decoder) Reset() {
	d.synchronized = false
	d.skippedBytes = 0
}

// Role returns the role the decoder parses with.
func (d *Decoder) Role() Role {
	return d.parser.Role
}

// Synchronized reports whether at least one valid frame has been decoded.
func (d *Decoder) Synchronized() bool {
	return d.synchronized
}

// SkippedBytes returns how many bytes were dropped before the first valid
// frame.
func (d *Decoder) SkippedBytes() int {
	return d.skippedBytes
}

// Next runs one decode step.
// Returns a message after removing its frame from the queue.
// Returns a malformed-frame error after removing exactly one byte.
// Returns ErrIncompleteFrame, removing nothing, when more bytes are needed.
func (d *Decoder) Next() (Message, error) {
	msg, n, err := d.parser.step(d.queue)
	if n == 0 {
		return nil, ErrIncompleteFrame
	}

	if msg == nil {
		d.queue.Discard(1)
		if !d.synchronized {
			d.skippedBytes++
		}
		return nil, err
	}

	d.queue.Discard(n)
	d.synchronized = true
	return msg, nil
}
