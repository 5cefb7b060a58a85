package transport

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/go-zeromq/zmq4"
)

// ZMQFactory creates ZeroMQ PUB sockets and UDP multicast sockets.
type ZMQFactory struct {
	// HWM is the PUB send high-water mark. Zero means DefaultHWM.
	HWM int

	// Logger receives socket-level warnings. Nil discards them.
	Logger *slog.Logger
}

// NewPub creates a PUB socket. The socket is not bound.
func (f *ZMQFactory) NewPub(ctx context.Context) (PubSocket, error) {
	var opts []zmq4.Option
	if f.Logger != nil {
		opts = append(opts, zmq4.WithLogger(slog.NewLogLogger(f.Logger.Handler(), slog.LevelWarn)))
	}
	sock := zmq4.NewPub(ctx, opts...)

	hwm := f.HWM
	if hwm <= 0 {
		hwm = DefaultHWM
	}
	if err := sock.SetOption(zmq4.OptionHWM, hwm); err != nil {
		sock.Close()
		return nil, fmt.Errorf("failed to set high-water mark: %w", err)
	}
	return &zmqPub{sock: sock}, nil
}

// NewMulticast creates a UDP multicast socket for group.
func (f *ZMQFactory) NewMulticast(ctx context.Context, group string, opts MulticastOptions) (MulticastSocket, error) {
	return DialMulticast(ctx, group, opts)
}

type zmqPub struct {
	mu     sync.Mutex
	sock   zmq4.Socket
	closed bool
}

func (p *zmqPub) Listen(endpoint string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	return p.sock.Listen(endpoint)
}

func (p *zmqPub) Addr() net.Addr {
	return p.sock.Addr()
}

func (p *zmqPub) Send(parts [][]byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	msg := zmq4.NewMsgFrom(parts...)
	if len(parts) == 1 {
		return p.sock.Send(msg)
	}
	return p.sock.SendMulti(msg)
}

// SendZeroCopy copies the borrowed last part and releases it as soon as the
// copy is taken. go-zeromq queues messages and writes them from
// a background goroutine without reporting completion, so the ZeroMQ
// backend cannot lend the caller's memory to the wire.
func (p *zmqPub) SendZeroCopy(parts [][]byte, release func()) error {
	owned := make([][]byte, len(parts))
	copy(owned, parts)
	if n := len(owned); n > 0 {
		owned[n-1] = bytes.Clone(owned[n-1])
	}
	release()
	return p.Send(owned)
}

func (p *zmqPub) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.sock.Close()
}

var (
	_ Factory   = (*ZMQFactory)(nil)
	_ PubSocket = (*zmqPub)(nil)
)
