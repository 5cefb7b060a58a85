package transport

import (
	"context"
	"errors"
	"net"
)

// Defaults.
const (
	DefaultHWM           = 1000
	DefaultMulticastHops = 5
	DefaultMulticastRate = 80 * 1024 // kbit/s
)

// Transport errors.
var (
	// ErrClosed indicates use of a closed socket.
	ErrClosed = errors.New("socket closed")

	// ErrMessageTooLarge indicates a message that does not fit the socket.
	ErrMessageTooLarge = errors.New("message too large")

	// ErrNotMulticast indicates a group address outside 224.0.0.0/4.
	ErrNotMulticast = errors.New("not a multicast address")
)

// Sender writes multi-part messages. Implementations are safe for
// concurrent use.
type Sender interface {
	// Send writes parts as one message. The parts may be reused once Send
	// returns.
	Send(parts [][]byte) error

	// Close releases the socket. Calling Close more than once is allowed.
	Close() error
}

// ZeroCopySender is a Sender that accepts borrowed payloads.
type ZeroCopySender interface {
	Sender

	// SendZeroCopy writes parts as one message. The last part is borrowed:
	// it stays untouched by the caller until release is called. release is
	// called exactly once, whatever the outcome.
	SendZeroCopy(parts [][]byte, release func()) error
}

// PubSocket is a bindable publish socket.
type PubSocket interface {
	ZeroCopySender

	// Listen binds the socket to endpoint, e.g. "tcp://0.0.0.0:0".
	Listen(endpoint string) error

	// Addr returns the bound address, or nil before Listen.
	Addr() net.Addr
}

// MulticastSocket sends to a multicast group.
type MulticastSocket interface {
	ZeroCopySender

	// Endpoint returns the advertised group endpoint, e.g. "udp://239.1.2.3:5000".
	Endpoint() string
}

// MulticastOptions configures a multicast socket.
type MulticastOptions struct {
	// Hops is the multicast TTL. Zero means DefaultMulticastHops.
	Hops int

	// RateKbps caps the send rate in kbit/s. Zero means DefaultMulticastRate;
	// negative disables the limit.
	RateKbps int

	// Interface names the outgoing interface. It overrides any interface
	// given in the group string.
	Interface string

	// Loopback delivers sent datagrams to local listeners too.
	Loopback bool
}

// Factory creates sockets.
type Factory interface {
	NewPub(ctx context.Context) (PubSocket, error)
	NewMulticast(ctx context.Context, group string, opts MulticastOptions) (MulticastSocket, error)
}
