package transport

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"golang.org/x/net/ipv4"
	"golang.org/x/time/rate"

	"github.com/ctlbus/ctlbus-go/pkg/wire"
)

// MaxDatagramSize is the largest UDP payload over IPv4.
const MaxDatagramSize = 65507

// Group is a parsed multicast group specification.
type Group struct {
	// Interface is the outgoing interface name or address, if given.
	Interface string

	// Addr is the group address and port.
	Addr *net.UDPAddr
}

// Endpoint returns the advertised form of the group, without any interface.
func (g Group) Endpoint() string {
	return "udp://" + g.Addr.String()
}

// ParseGroup parses a multicast group in one of the forms
//
//	239.1.2.3:5000
//	udp://239.1.2.3:5000
//	udp://eth0;239.1.2.3:5000
//	epgm://192.168.1.10;239.1.2.3:5000
//
// The part before ';' selects the outgoing interface by name or address.
func ParseGroup(s string) (Group, error) {
	var g Group
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexByte(s, ';'); i >= 0 {
		g.Interface, s = s[:i], s[i+1:]
	}
	addr, err := net.ResolveUDPAddr("udp4", s)
	if err != nil {
		return Group{}, fmt.Errorf("invalid group %q: %w", s, err)
	}
	if !addr.IP.IsMulticast() {
		return Group{}, fmt.Errorf("%w: %s", ErrNotMulticast, addr.IP)
	}
	g.Addr = addr
	return g, nil
}

// RateLimit converts a rate in kbit/s to a byte limiter. Non-positive rates
// yield an unlimited limiter.
func RateLimit(kbps int) *rate.Limiter {
	if kbps <= 0 {
		return rate.NewLimiter(rate.Inf, MaxDatagramSize)
	}
	bytesPerSec := kbps * 1024 / 8
	burst := max(bytesPerSec, MaxDatagramSize)
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}

type multicastSocket struct {
	ctx      context.Context
	group    Group
	raw      net.PacketConn
	conn     *ipv4.PacketConn
	limiter  *rate.Limiter
	endpoint string

	mu     sync.Mutex
	buf    []byte
	closed bool
}

// DialMulticast opens a UDP socket sending to group. ctx bounds waits on the
// rate limiter for the lifetime of the socket.
func DialMulticast(ctx context.Context, group string, opts MulticastOptions) (MulticastSocket, error) {
	g, err := ParseGroup(group)
	if err != nil {
		return nil, err
	}
	if opts.Interface != "" {
		g.Interface = opts.Interface
	}
	hops := opts.Hops
	if hops <= 0 {
		hops = DefaultMulticastHops
	}
	kbps := opts.RateKbps
	if kbps == 0 {
		kbps = DefaultMulticastRate
	}

	raw, err := net.ListenPacket("udp4", "0.0.0.0:0")
	if err != nil {
		return nil, fmt.Errorf("failed to open multicast socket: %w", err)
	}
	conn := ipv4.NewPacketConn(raw)

	if err := conn.SetMulticastTTL(hops); err != nil {
		raw.Close()
		return nil, fmt.Errorf("failed to set multicast hops: %w", err)
	}
	if err := conn.SetMulticastLoopback(opts.Loopback); err != nil {
		raw.Close()
		return nil, fmt.Errorf("failed to set multicast loopback: %w", err)
	}
	if g.Interface != "" {
		ifi, err := lookupInterface(g.Interface)
		if err != nil {
			raw.Close()
			return nil, err
		}
		if err := conn.SetMulticastInterface(ifi); err != nil {
			raw.Close()
			return nil, fmt.Errorf("failed to set multicast interface %s: %w", ifi.Name, err)
		}
	}

	return &multicastSocket{
		ctx:      ctx,
		group:    g,
		raw:      raw,
		conn:     conn,
		limiter:  RateLimit(kbps),
		endpoint: g.Endpoint(),
	}, nil
}

// lookupInterface finds an interface by name or by one of its addresses.
func lookupInterface(spec string) (*net.Interface, error) {
	if ifi, err := net.InterfaceByName(spec); err == nil {
		return ifi, nil
	}
	ip := net.ParseIP(spec)
	if ip == nil {
		return nil, fmt.Errorf("unknown interface %q", spec)
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}
	for i := range ifaces {
		addrs, err := ifaces[i].Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if ipn, ok := a.(*net.IPNet); ok && ipn.IP.Equal(ip) {
				return &ifaces[i], nil
			}
		}
	}
	return nil, fmt.Errorf("no interface with address %s", ip)
}

func (m *multicastSocket) Endpoint() string {
	return m.endpoint
}

func (m *multicastSocket) Send(parts [][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	if n := wire.FramedSize(parts); n > MaxDatagramSize {
		return fmt.Errorf("%w: %d > %d bytes", ErrMessageTooLarge, n, MaxDatagramSize)
	}
	m.buf = wire.AppendFrames(m.buf[:0], parts)

	if err := m.limiter.WaitN(m.ctx, len(m.buf)); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if _, err := m.conn.WriteTo(m.buf, nil, m.group.Addr); err != nil {
		return fmt.Errorf("failed to send to %s: %w", m.endpoint, err)
	}
	return nil
}

// SendZeroCopy frames the borrowed payload straight into the datagram
// buffer; the payload is released once the datagram has been written.
func (m *multicastSocket) SendZeroCopy(parts [][]byte, release func()) error {
	defer release()
	return m.Send(parts)
}

func (m *multicastSocket) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.raw.Close()
}

var _ MulticastSocket = (*multicastSocket)(nil)
