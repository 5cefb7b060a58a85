package wire

import (
	"errors"
	"fmt"
)

// Codec errors.
var (
	// ErrEmptyTopic indicates a message was built without a topic.
	ErrEmptyTopic = errors.New("empty topic")

	// ErrShortEnvelope indicates an envelope shorter than its fixed layout.
	ErrShortEnvelope = errors.New("envelope too short")

	// ErrBadEndianMarker indicates an endian part that is not a single 0/1 byte.
	ErrBadEndianMarker = errors.New("invalid endian marker")

	// ErrPartCount indicates a frame sequence with an unexpected number of parts.
	ErrPartCount = errors.New("unexpected number of parts")
)

// Severity classifies a DevError.
type Severity uint8

const (
	// SeverityWarn is a warning.
	SeverityWarn Severity = iota
	// SeverityErr is an error.
	SeverityErr
	// SeverityPanic is a fatal error.
	SeverityPanic
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityWarn:
		return "WARN"
	case SeverityErr:
		return "ERR"
	case SeverityPanic:
		return "PANIC"
	default:
		return "UNKNOWN"
	}
}

// DevError is one entry of the error stack published with an exception event.
type DevError struct {
	Reason   string   `cbor:"1,keyasint"`
	Desc     string   `cbor:"2,keyasint"`
	Origin   string   `cbor:"3,keyasint,omitempty"`
	Severity Severity `cbor:"4,keyasint"`
}

// Error implements error.
func (e DevError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Desc)
}

// EncodeErrorList marshals an error stack as an exception payload.
func EncodeErrorList(errs []DevError) ([]byte, error) {
	data, err := Marshal(errs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode error list: %w", err)
	}
	return data, nil
}

// DecodeErrorList unmarshals an exception payload.
func DecodeErrorList(data []byte) ([]DevError, error) {
	var errs []DevError
	if err := Unmarshal(data, &errs); err != nil {
		return nil, fmt.Errorf("failed to decode error list: %w", err)
	}
	return errs, nil
}
