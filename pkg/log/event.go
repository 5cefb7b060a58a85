package log

import "time"

// Event is one captured publisher event.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// EngineID identifies the publishing engine instance (UUID).
	EngineID string `cbor:"2,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"3,keyasint"`

	// Category classifies the event.
	Category Category `cbor:"4,keyasint"`

	// Endpoint is the advertised endpoint of the socket involved, if any.
	Endpoint string `cbor:"5,keyasint,omitempty"`

	// Topic is the event name or heartbeat topic, if any.
	Topic string `cbor:"6,keyasint,omitempty"`

	// Type-specific payload (at most one is set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Heartbeat   *HeartbeatEvent   `cbor:"11,keyasint,omitempty"`
	Route       *RouteEvent       `cbor:"12,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"13,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// Layer indicates where an event was captured.
type Layer uint8

const (
	// LayerTransport is the socket layer (frames as written).
	LayerTransport Layer = 0
	// LayerWire is the frame codec.
	LayerWire Layer = 1
	// LayerEngine is the publishing engine.
	LayerEngine Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerEngine:
		return "ENGINE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies an event.
type Category uint8

const (
	// CategoryMessage is a data event or filler written to a socket.
	CategoryMessage Category = 0
	// CategoryHeartbeat is a heartbeat emission.
	CategoryHeartbeat Category = 1
	// CategoryRoute is a route declaration or change.
	CategoryRoute Category = 2
	// CategoryState is a state change.
	CategoryState Category = 3
	// CategoryError is an error.
	CategoryError Category = 4
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryHeartbeat:
		return "HEARTBEAT"
	case CategoryRoute:
		return "ROUTE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseCategory returns the category with the given name.
func ParseCategory(s string) (Category, bool) {
	for c := CategoryMessage; c <= CategoryError; c++ {
		if c.String() == s {
			return c, true
		}
	}
	return 0, false
}

// FrameEvent describes a multi-part message handed to a socket.
type FrameEvent struct {
	// Parts is the number of parts.
	Parts int `cbor:"1,keyasint"`

	// Size is the total size of all parts in bytes.
	Size int `cbor:"2,keyasint"`

	// Counter is the envelope counter for data events.
	Counter uint32 `cbor:"3,keyasint,omitempty"`

	// ZeroCopy is set when the payload was borrowed rather than copied.
	ZeroCopy bool `cbor:"4,keyasint,omitempty"`

	// Multicast is set for sends on a multicast socket.
	Multicast bool `cbor:"5,keyasint,omitempty"`

	// Data is the leading bytes of the payload (may be truncated).
	Data []byte `cbor:"6,keyasint,omitempty"`

	// Truncated indicates Data was truncated.
	Truncated bool `cbor:"7,keyasint,omitempty"`
}

// HeartbeatEvent describes one heartbeat emission.
type HeartbeatEvent struct {
	// Sends is the number of copies written (1, or 2 after a double-send request).
	Sends int `cbor:"1,keyasint"`

	// SinceLast is the time elapsed since the previous heartbeat.
	SinceLast time.Duration `cbor:"2,keyasint,omitempty"`
}

// RouteEvent describes a route declaration.
type RouteEvent struct {
	// Group is the multicast group endpoint, empty for local-only routes.
	Group string `cbor:"1,keyasint,omitempty"`

	// Local reports whether unicast delivery is enabled.
	Local bool `cbor:"2,keyasint,omitempty"`

	// Multicast reports whether a multicast socket serves the route.
	Multicast bool `cbor:"3,keyasint,omitempty"`

	// DoubleSend reports whether the next publish is sent twice.
	DoubleSend bool `cbor:"4,keyasint,omitempty"`
}

// StateChangeEvent captures lifecycle changes.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change, if known.
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what changed state.
type StateEntity uint8

const (
	// StateEntitySocket is a socket bind or close.
	StateEntitySocket StateEntity = 0
	// StateEntityEngine is the engine lifecycle.
	StateEntityEngine StateEntity = 1
	// StateEntityMonitor is the performance monitor.
	StateEntityMonitor StateEntity = 2
	// StateEntityClient is a subscriber client appearing.
	StateEntityClient StateEntity = 3
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntitySocket:
		return "SOCKET"
	case StateEntityEngine:
		return "ENGINE"
	case StateEntityMonitor:
		return "MONITOR"
	case StateEntityClient:
		return "CLIENT"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}
