package wire

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// ProtocolVersion is the envelope version written by this publisher.
const ProtocolVersion int32 = 1

// Envelope sizes in bytes.
const (
	HeartbeatEnvelopeSize = 8
	EventEnvelopeSize     = 12
)

// Endian marker values.
const (
	BigEndian    byte = 0
	LittleEndian byte = 1
)

var (
	hostEndianOnce sync.Once
	hostEndian     byte
)

// HostEndianness returns the endian marker for this process.
// It is computed once by writing the integer 1 in native order and
// inspecting the first byte.
func HostEndianness() byte {
	hostEndianOnce.Do(func() {
		hostEndian = EndianMarker(binary.NativeEndian)
	})
	return hostEndian
}

// EndianMarker returns the marker byte describing order.
func EndianMarker(order binary.ByteOrder) byte {
	var buf [4]byte
	order.PutUint32(buf[:], 1)
	if buf[0] == 0 {
		return BigEndian
	}
	return LittleEndian
}

// byteOrder returns the byte order described by a marker.
func byteOrder(marker byte) (binary.ByteOrder, error) {
	switch marker {
	case BigEndian:
		return binary.BigEndian, nil
	case LittleEndian:
		return binary.LittleEndian, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrBadEndianMarker, marker)
	}
}

// CallEnvelope is the fixed header preceding an event payload.
type CallEnvelope struct {
	Version     int32
	IsException bool
	Counter     uint32
}

// NewEnvelope returns an envelope with the current protocol version.
func NewEnvelope(counter uint32, isException bool) CallEnvelope {
	return CallEnvelope{
		Version:     ProtocolVersion,
		IsException: isException,
		Counter:     counter,
	}
}

// AppendEvent appends the data-event layout of e to buf using order.
func (e CallEnvelope) AppendEvent(buf []byte, order binary.ByteOrder) []byte {
	buf = e.appendHeader(buf, order)
	return appendUint32(buf, order, e.Counter)
}

// AppendHeartbeat appends the heartbeat layout of e (no counter) to buf.
func (e CallEnvelope) AppendHeartbeat(buf []byte, order binary.ByteOrder) []byte {
	return e.appendHeader(buf, order)
}

func (e CallEnvelope) appendHeader(buf []byte, order binary.ByteOrder) []byte {
	buf = appendUint32(buf, order, uint32(e.Version))
	var flag byte
	if e.IsException {
		flag = 1
	}
	return append(buf, flag, 0, 0, 0)
}

func appendUint32(buf []byte, order binary.ByteOrder, v uint32) []byte {
	var b [4]byte
	order.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

// DecodeEnvelope parses an envelope written with the order described by marker.
// Heartbeat envelopes decode with a zero counter.
func DecodeEnvelope(data []byte, marker byte) (CallEnvelope, error) {
	order, err := byteOrder(marker)
	if err != nil {
		return CallEnvelope{}, err
	}
	if len(data) < HeartbeatEnvelopeSize {
		return CallEnvelope{}, fmt.Errorf("%w: %d bytes", ErrShortEnvelope, len(data))
	}

	env := CallEnvelope{
		Version:     int32(order.Uint32(data[0:4])),
		IsException: data[4] != 0,
	}
	if len(data) >= EventEnvelopeSize {
		env.Counter = order.Uint32(data[8:12])
	}
	return env, nil
}
