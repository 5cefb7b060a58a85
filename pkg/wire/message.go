package wire

import (
	"encoding/binary"
	"fmt"
)

// Part indices within a message.
const (
	PartTopic = iota
	PartEndian
	PartEnvelope
	PartPayload
)

// Part counts.
const (
	HeartbeatParts = 3
	EventParts     = 4
)

// Message is a frame sequence ready to hand to a socket.
//
// Owned parts are private copies. A borrowed payload references the caller's
// buffer and must not outlive the completion of the send.
type Message struct {
	parts    [][]byte
	borrowed bool
}

// Codec builds messages for one byte order.
// The zero value is not usable; use NewCodec or HostCodec.
type Codec struct {
	order  binary.ByteOrder
	marker byte
}

// NewCodec returns a codec writing envelopes in order.
func NewCodec(order binary.ByteOrder) *Codec {
	return &Codec{order: order, marker: EndianMarker(order)}
}

// HostCodec returns a codec for the native byte order.
func HostCodec() *Codec {
	return &Codec{order: binary.NativeEndian, marker: HostEndianness()}
}

// Marker returns the endian marker written by this codec.
func (c *Codec) Marker() byte {
	return c.marker
}

// EncodeHeartbeat builds the 3-part heartbeat message for topic.
func (c *Codec) EncodeHeartbeat(topic string) (*Message, error) {
	if topic == "" {
		return nil, ErrEmptyTopic
	}
	env := NewEnvelope(0, false)
	return &Message{
		parts: [][]byte{
			[]byte(topic),
			{c.marker},
			env.AppendHeartbeat(make([]byte, 0, HeartbeatEnvelopeSize), c.order),
		},
	}, nil
}

// EncodeEvent builds the 4-part data-event message.
//
// When large is false the payload is copied into a fresh buffer. When large
// is true the message references payload directly; the caller must keep the
// buffer unchanged until every send of the message has completed.
func (c *Codec) EncodeEvent(topic string, env CallEnvelope, payload []byte, large bool) (*Message, error) {
	if topic == "" {
		return nil, ErrEmptyTopic
	}

	data := payload
	if !large {
		data = make([]byte, len(payload))
		copy(data, payload)
	}

	return &Message{
		parts: [][]byte{
			[]byte(topic),
			{c.marker},
			env.AppendEvent(make([]byte, 0, EventEnvelopeSize), c.order),
			data,
		},
		borrowed: large,
	}, nil
}

// Parts returns the frame sequence. The slices must not be modified.
func (m *Message) Parts() [][]byte {
	return m.parts
}

// Topic returns the topic part.
func (m *Message) Topic() string {
	return string(m.parts[PartTopic])
}

// Payload returns the payload part, or nil for heartbeats.
func (m *Message) Payload() []byte {
	if len(m.parts) <= PartPayload {
		return nil
	}
	return m.parts[PartPayload]
}

// Borrowed reports whether the payload references a caller buffer.
func (m *Message) Borrowed() bool {
	return m.borrowed
}

// Size returns the total byte count of all parts.
func (m *Message) Size() int {
	n := 0
	for _, p := range m.parts {
		n += len(p)
	}
	return n
}

// Duplicate returns a message that can be sent to a second destination.
// Owned parts are copied; a borrowed payload is shared, not copied.
func (m *Message) Duplicate() *Message {
	parts := make([][]byte, len(m.parts))
	for i, p := range m.parts {
		if i == PartPayload && m.borrowed {
			parts[i] = p
			continue
		}
		parts[i] = append([]byte(nil), p...)
	}
	return &Message{parts: parts, borrowed: m.borrowed}
}

// Decoded is a parsed message, used by tests and diagnostics tooling.
type Decoded struct {
	Topic    string
	Marker   byte
	Envelope CallEnvelope
	Payload  []byte
}

// Decode parses a heartbeat or data-event frame sequence.
func Decode(parts [][]byte) (*Decoded, error) {
	if len(parts) != HeartbeatParts && len(parts) != EventParts {
		return nil, fmt.Errorf("%w: %d", ErrPartCount, len(parts))
	}
	if len(parts[PartEndian]) != 1 {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadEndianMarker, len(parts[PartEndian]))
	}

	d := &Decoded{
		Topic:  string(parts[PartTopic]),
		Marker: parts[PartEndian][0],
	}
	env, err := DecodeEnvelope(parts[PartEnvelope], d.Marker)
	if err != nil {
		return nil, err
	}
	d.Envelope = env
	if len(parts) == EventParts {
		d.Payload = parts[PartPayload]
	}
	return d, nil
}
