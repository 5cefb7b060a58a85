package payload

import "fmt"

// Default large-payload thresholds.
const (
	// DefaultArrayThreshold is the element count at which an array payload is large.
	DefaultArrayThreshold = 1024

	// DefaultEncodedThreshold is the byte count above which an encoded payload is large.
	DefaultEncodedThreshold = 4 * 1024
)

// Kind identifies what a payload buffer carries.
type Kind uint8

const (
	// KindNoData is an event without value (e.g. a quality-only change).
	KindNoData Kind = iota

	// KindScalar is a single marshalled value.
	KindScalar

	// KindArray is a marshalled numeric or string array.
	KindArray

	// KindEncoded is an already-encoded blob (format + bytes).
	KindEncoded

	// KindError is a marshalled error list sent instead of a value.
	KindError
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNoData:
		return "NO_DATA"
	case KindScalar:
		return "SCALAR"
	case KindArray:
		return "ARRAY"
	case KindEncoded:
		return "ENCODED"
	case KindError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Payload describes a marshalled event value.
type Payload struct {
	// Kind identifies the content.
	Kind Kind

	// Len is the element count for arrays and the byte count for encoded data.
	// It is ignored for the other kinds.
	Len int

	// Data is the marshalled value. For large payloads the buffer is borrowed
	// by the transport until the publish call returns.
	Data []byte
}

// Scalar returns a scalar payload.
func Scalar(data []byte) Payload {
	return Payload{Kind: KindScalar, Len: 1, Data: data}
}

// Array returns an array payload carrying n elements.
func Array(n int, data []byte) Payload {
	return Payload{Kind: KindArray, Len: n, Data: data}
}

// Encoded returns an encoded payload. Its length is the size of the encoded bytes.
func Encoded(data []byte) Payload {
	return Payload{Kind: KindEncoded, Len: len(data), Data: data}
}

// NoData returns an empty payload.
func NoData() Payload {
	return Payload{Kind: KindNoData}
}

// String returns a short description for logs.
func (p Payload) String() string {
	return fmt.Sprintf("%s(len=%d, bytes=%d)", p.Kind, p.Len, len(p.Data))
}

// Thresholds configures the large-payload decision.
type Thresholds struct {
	// Array is the element count at which an array is large (inclusive).
	Array int

	// Encoded is the byte count above which an encoded blob is large (exclusive).
	Encoded int
}

// DefaultThresholds returns the default thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Array:   DefaultArrayThreshold,
		Encoded: DefaultEncodedThreshold,
	}
}

// IsLarge reports whether p should take the zero-copy path.
// Zero thresholds fall back to the defaults.
func (t Thresholds) IsLarge(p Payload) bool {
	if t.Array <= 0 {
		t.Array = DefaultArrayThreshold
	}
	if t.Encoded <= 0 {
		t.Encoded = DefaultEncodedThreshold
	}

	switch p.Kind {
	case KindArray:
		return p.Len >= t.Array
	case KindEncoded:
		return p.Len > t.Encoded
	default:
		return false
	}
}
