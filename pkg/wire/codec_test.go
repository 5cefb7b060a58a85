package wire

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndianMarker(t *testing.T) {
	assert.Equal(t, BigEndian, EndianMarker(binary.BigEndian))
	assert.Equal(t, LittleEndian, EndianMarker(binary.LittleEndian))
	assert.Equal(t, EndianMarker(binary.NativeEndian), HostEndianness())
}

func TestEncodeHeartbeat(t *testing.T) {
	c := NewCodec(binary.LittleEndian)

	msg, err := c.EncodeHeartbeat("ctlbus://host:10000/dserver/srv/1.heartbeat")
	require.NoError(t, err)

	parts := msg.Parts()
	require.Len(t, parts, HeartbeatParts)
	assert.Equal(t, "ctlbus://host:10000/dserver/srv/1.heartbeat", string(parts[PartTopic]))
	assert.Equal(t, []byte{LittleEndian}, parts[PartEndian])
	assert.Len(t, parts[PartEnvelope], HeartbeatEnvelopeSize)
	assert.Nil(t, msg.Payload())

	d, err := Decode(parts)
	require.NoError(t, err)
	assert.Equal(t, ProtocolVersion, d.Envelope.Version)
	assert.False(t, d.Envelope.IsException)
}

func TestEncodeHeartbeatEmptyTopic(t *testing.T) {
	_, err := HostCodec().EncodeHeartbeat("")
	assert.ErrorIs(t, err, ErrEmptyTopic)
}

func TestEncodeEventLayout(t *testing.T) {
	for _, order := range []binary.ByteOrder{binary.BigEndian, binary.LittleEndian} {
		t.Run(fmt.Sprint(order), func(t *testing.T) {
			c := NewCodec(order)
			msg, err := c.EncodeEvent("dev/attr.change", NewEnvelope(0x01020304, false), []byte("value"), false)
			require.NoError(t, err)

			parts := msg.Parts()
			require.Len(t, parts, EventParts)
			assert.Equal(t, []byte{EndianMarker(order)}, parts[PartEndian])
			require.Len(t, parts[PartEnvelope], EventEnvelopeSize)
			assert.Equal(t, uint32(1), order.Uint32(parts[PartEnvelope][0:4]))
			assert.Equal(t, byte(0), parts[PartEnvelope][4])
			assert.Equal(t, uint32(0x01020304), order.Uint32(parts[PartEnvelope][8:12]))

			d, err := Decode(parts)
			require.NoError(t, err)
			assert.Equal(t, uint32(0x01020304), d.Envelope.Counter)
			assert.Equal(t, []byte("value"), d.Payload)
		})
	}
}

func TestEncodeEventSmallPayloadIsCopied(t *testing.T) {
	buf := []byte{1, 2, 3}
	msg, err := HostCodec().EncodeEvent("dev/attr.change", NewEnvelope(1, false), buf, false)
	require.NoError(t, err)

	buf[0] = 99
	assert.Equal(t, byte(1), msg.Payload()[0])
	assert.False(t, msg.Borrowed())
}

func TestEncodeEventLargePayloadIsBorrowed(t *testing.T) {
	buf := []byte{1, 2, 3}
	msg, err := HostCodec().EncodeEvent("dev/attr.change", NewEnvelope(1, false), buf, true)
	require.NoError(t, err)

	buf[0] = 99
	assert.Equal(t, byte(99), msg.Payload()[0])
	assert.True(t, msg.Borrowed())
}

func TestExceptionPayloadRoundTrip(t *testing.T) {
	errs := []DevError{
		{Reason: "API_AttrValueNotSet", Desc: "value not set", Origin: "Attribute::read", Severity: SeverityErr},
		{Reason: "API_CommunicationFailed", Desc: "timeout", Severity: SeverityPanic},
	}

	data, err := EncodeErrorList(errs)
	require.NoError(t, err)

	msg, err := HostCodec().EncodeEvent("dev/attr.change", NewEnvelope(7, true), data, false)
	require.NoError(t, err)

	d, err := Decode(msg.Parts())
	require.NoError(t, err)
	assert.True(t, d.Envelope.IsException)

	got, err := DecodeErrorList(d.Payload)
	require.NoError(t, err)
	assert.Equal(t, errs, got)
}

func TestDuplicate(t *testing.T) {
	payload := []byte("large-buffer")
	msg, err := HostCodec().EncodeEvent("dev/attr.change", NewEnvelope(3, false), payload, true)
	require.NoError(t, err)

	dup := msg.Duplicate()
	require.Len(t, dup.Parts(), EventParts)

	// Owned parts are independent copies.
	dup.Parts()[PartTopic][0] = 'X'
	assert.Equal(t, "dev/attr.change", msg.Topic())

	// The borrowed payload is shared.
	assert.Same(t, &payload[0], &dup.Payload()[0])
	assert.True(t, dup.Borrowed())
}

func TestDuplicateOwnedPayload(t *testing.T) {
	msg, err := HostCodec().EncodeEvent("dev/attr.change", NewEnvelope(3, false), []byte("abc"), false)
	require.NoError(t, err)

	dup := msg.Duplicate()
	dup.Payload()[0] = 'z'
	assert.Equal(t, []byte("abc"), msg.Payload())
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode([][]byte{[]byte("t")})
	assert.ErrorIs(t, err, ErrPartCount)

	_, err = Decode([][]byte{[]byte("t"), {2}, make([]byte, 8)})
	assert.ErrorIs(t, err, ErrBadEndianMarker)

	_, err = Decode([][]byte{[]byte("t"), {1}, make([]byte, 4)})
	assert.ErrorIs(t, err, ErrShortEnvelope)
}

func TestEnvelopeAppendKeepsPrefix(t *testing.T) {
	env := CallEnvelope{Version: 6, IsException: true, Counter: 0x0a0b0c0d}

	buf := env.AppendEvent([]byte{0xff}, binary.BigEndian)
	assert.Equal(t, []byte{0xff, 0, 0, 0, 6, 1, 0, 0, 0, 0x0a, 0x0b, 0x0c, 0x0d}, buf)

	buf = env.AppendHeartbeat(nil, binary.LittleEndian)
	assert.Equal(t, []byte{6, 0, 0, 0, 1, 0, 0, 0}, buf)
}
