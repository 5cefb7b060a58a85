package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// LengthPrefixSize is the size of the per-part length prefix in a datagram.
const LengthPrefixSize = 4

// Datagram framing errors.
var (
	// ErrFrameTruncated indicates a datagram ending inside a part.
	ErrFrameTruncated = errors.New("frame truncated")

	// ErrNoParts indicates a datagram without any part.
	ErrNoParts = errors.New("datagram has no parts")
)

// FramedSize returns the datagram size needed to carry parts.
func FramedSize(parts [][]byte) int {
	n := 0
	for _, p := range parts {
		n += LengthPrefixSize + len(p)
	}
	return n
}

// AppendFrames appends parts to buf as a sequence of length-prefixed frames
// (4-byte big-endian length, then the bytes). Multicast datagrams carry one
// whole message encoded this way.
func AppendFrames(buf []byte, parts [][]byte) []byte {
	for _, p := range parts {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(p)))
		buf = append(buf, p...)
	}
	return buf
}

// SplitFrames parses a datagram built by AppendFrames.
// The returned parts alias data.
func SplitFrames(data []byte) ([][]byte, error) {
	if len(data) == 0 {
		return nil, ErrNoParts
	}
	var parts [][]byte
	for len(data) > 0 {
		if len(data) < LengthPrefixSize {
			return nil, fmt.Errorf("%w: %d bytes left for length prefix", ErrFrameTruncated, len(data))
		}
		n := binary.BigEndian.Uint32(data)
		data = data[LengthPrefixSize:]
		if uint64(n) > uint64(len(data)) {
			return nil, fmt.Errorf("%w: part of %d bytes, %d available", ErrFrameTruncated, n, len(data))
		}
		parts = append(parts, data[:n:n])
		data = data[n:]
	}
	return parts, nil
}
