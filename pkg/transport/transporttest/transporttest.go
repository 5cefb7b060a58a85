// Package transporttest provides in-memory sockets for tests.
package transporttest

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ctlbus/ctlbus-go/pkg/transport"
)

// Sent is one recorded message.
type Sent struct {
	// Seq orders sends across all sockets of a Factory.
	Seq uint64

	// Parts holds a copy of every part.
	Parts [][]byte

	// ZeroCopy is set for SendZeroCopy calls.
	ZeroCopy bool

	// Borrowed is the borrowed last part as passed, not copied.
	Borrowed []byte
}

// Topic returns the first part as a string.
func (s Sent) Topic() string {
	if len(s.Parts) == 0 {
		return ""
	}
	return string(s.Parts[0])
}

// Socket is an in-memory PubSocket and MulticastSocket.
type Socket struct {
	seq *atomic.Uint64

	mu        sync.Mutex
	endpoint  string
	opts      transport.MulticastOptions
	listened  []string
	addr      *net.TCPAddr
	sent      []Sent
	hold      bool
	pending   []func()
	failNext  error
	listenErr error
	closes    int
	onSend    func(Sent)
}

var ephemeralPort atomic.Int32

// NewSocket returns a standalone socket.
func NewSocket() *Socket {
	return &Socket{seq: new(atomic.Uint64)}
}

// Listen records endpoint. Port 0 is replaced with a unique fake port.
func (s *Socket) Listen(endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listenErr != nil {
		return s.listenErr
	}

	hostport := endpoint
	if i := strings.Index(hostport, "://"); i >= 0 {
		hostport = hostport[i+3:]
	}
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return fmt.Errorf("bad endpoint %q: %w", endpoint, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("bad port in %q: %w", endpoint, err)
	}
	if port == 0 {
		port = 40000 + int(ephemeralPort.Add(1))
	}
	s.listened = append(s.listened, endpoint)
	s.addr = &net.TCPAddr{IP: net.ParseIP(host), Port: port}
	return nil
}

// Addr returns the bound address, or nil.
func (s *Socket) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addr == nil {
		return nil
	}
	return s.addr
}

// Endpoint returns the multicast endpoint the socket was created for.
func (s *Socket) Endpoint() string {
	return s.endpoint
}

// Options returns the multicast options the socket was created with.
func (s *Socket) Options() transport.MulticastOptions {
	return s.opts
}

// Send records a copy of parts.
func (s *Socket) Send(parts [][]byte) error {
	return s.record(parts, false, nil)
}

// SendZeroCopy records parts and either releases at once or, when holding
// releases, keeps release until ReleasePending.
func (s *Socket) SendZeroCopy(parts [][]byte, release func()) error {
	err := s.record(parts, true, release)
	if err != nil {
		release()
	}
	return err
}

func (s *Socket) record(parts [][]byte, zeroCopy bool, release func()) error {
	s.mu.Lock()
	if s.closes > 0 {
		s.mu.Unlock()
		return transport.ErrClosed
	}
	if err := s.failNext; err != nil {
		s.failNext = nil
		s.mu.Unlock()
		return err
	}

	sent := Sent{Seq: s.seq.Add(1), ZeroCopy: zeroCopy}
	for _, p := range parts {
		sent.Parts = append(sent.Parts, append([]byte(nil), p...))
	}
	if zeroCopy && len(parts) > 0 {
		sent.Borrowed = parts[len(parts)-1]
	}
	s.sent = append(s.sent, sent)

	callRelease := false
	if release != nil {
		if s.hold {
			s.pending = append(s.pending, release)
		} else {
			callRelease = true
		}
	}
	onSend := s.onSend
	s.mu.Unlock()

	if callRelease {
		release()
	}
	if onSend != nil {
		onSend(sent)
	}
	return nil
}

// HoldReleases makes SendZeroCopy keep release functions until
// ReleasePending is called.
func (s *Socket) HoldReleases(hold bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hold = hold
}

// ReleasePending calls every held release function and returns how many
// there were.
func (s *Socket) ReleasePending() int {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, release := range pending {
		release()
	}
	return len(pending)
}

// PendingReleases returns the number of held release functions.
func (s *Socket) PendingReleases() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// FailNext makes the next send return err.
func (s *Socket) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

// FailListen makes Listen return err.
func (s *Socket) FailListen(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listenErr = err
}

// OnSend registers a callback run after each recorded send.
func (s *Socket) OnSend(fn func(Sent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSend = fn
}

// Sends returns the recorded messages.
func (s *Socket) Sends() []Sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Sent(nil), s.sent...)
}

// SendCount returns the number of recorded messages.
func (s *Socket) SendCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// Listened returns the endpoints passed to Listen.
func (s *Socket) Listened() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.listened...)
}

// Close marks the socket closed.
func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

// CloseCount returns how many times Close was called.
func (s *Socket) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// Factory creates in-memory sockets.
type Factory struct {
	seq atomic.Uint64

	mu         sync.Mutex
	pubs       []*Socket
	multicasts []*Socket

	// PubErr and MulticastErr are returned by the constructors when set.
	PubErr       error
	MulticastErr error

	// Hold makes new sockets hold zero-copy releases.
	Hold bool
}

// NewFactory returns an empty factory.
func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) newSocket() *Socket {
	s := &Socket{seq: &f.seq, hold: f.Hold}
	return s
}

// NewPub creates a socket recorded in Pubs.
func (f *Factory) NewPub(ctx context.Context) (transport.PubSocket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PubErr != nil {
		return nil, f.PubErr
	}
	s := f.newSocket()
	f.pubs = append(f.pubs, s)
	return s, nil
}

// NewMulticast creates a socket recorded in Multicasts.
func (f *Factory) NewMulticast(ctx context.Context, group string, opts transport.MulticastOptions) (transport.MulticastSocket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.MulticastErr != nil {
		return nil, f.MulticastErr
	}
	g, err := transport.ParseGroup(group)
	if err != nil {
		return nil, err
	}
	s := f.newSocket()
	s.endpoint = g.Endpoint()
	s.opts = opts
	f.multicasts = append(f.multicasts, s)
	return s, nil
}

// Pubs returns the PUB sockets in creation order.
func (f *Factory) Pubs() []*Socket {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Socket(nil), f.pubs...)
}

// Multicasts returns the multicast sockets in creation order.
func (f *Factory) Multicasts() []*Socket {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Socket(nil), f.multicasts...)
}

// Multicast returns the multicast socket for endpoint, or nil.
func (f *Factory) Multicast(endpoint string) *Socket {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.multicasts {
		if s.endpoint == endpoint {
			return s
		}
	}
	return nil
}

var (
	_ transport.Factory         = (*Factory)(nil)
	_ transport.PubSocket       = (*Socket)(nil)
	_ transport.MulticastSocket = (*Socket)(nil)
)
