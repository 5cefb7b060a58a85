// Package endpoint binds publisher sockets and works out the endpoints to
// advertise to subscribers.
//
// Sockets are bound to a port taken from an explicit value, an environment
// variable or the operating system (ephemeral). When no address is pinned
// the socket binds every interface and the endpoint advertises the first
// non-loopback IPv4 address, with the remaining ones as alternates.
package endpoint

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

// DefaultScheme is the transport scheme of bound endpoints.
const DefaultScheme = "tcp"

// Endpoint errors.
var (
	// ErrBindFailed indicates the socket could not be bound.
	ErrBindFailed = errors.New("bind failed")

	// ErrInvalidPort indicates a port outside 0-65535 or not a number.
	ErrInvalidPort = errors.New("invalid port")
)

// Endpoint is an advertised socket address. It is immutable once returned.
type Endpoint struct {
	Scheme  string
	Address string
	Port    int

	// Alternates are further full endpoint strings reaching the same socket.
	Alternates []string
}

// String returns "scheme://address:port".
func (e Endpoint) String() string {
	return qualify(e.Scheme, e.Address, e.Port)
}

// All returns the primary endpoint followed by the alternates.
func (e Endpoint) All() []string {
	return append([]string{e.String()}, e.Alternates...)
}

// IsZero reports whether e is unset.
func (e Endpoint) IsZero() bool {
	return e.Address == "" && e.Port == 0
}

func qualify(scheme, addr string, port int) string {
	return scheme + "://" + net.JoinHostPort(addr, strconv.Itoa(port))
}

// Bindable is a socket that can be bound and report its address.
type Bindable interface {
	Listen(endpoint string) error
	Addr() net.Addr
}

type hintKind uint8

const (
	hintEphemeral hintKind = iota
	hintExplicit
	hintEnv
)

// PortHint selects the port to bind.
type PortHint struct {
	kind hintKind
	port int
	env  string
}

// ExplicitPort binds port n. Zero is the same as EphemeralPort.
func ExplicitPort(n int) PortHint {
	return PortHint{kind: hintExplicit, port: n}
}

// PortFromEnv binds the port named by the environment variable name, or an
// ephemeral port when it is unset or empty.
func PortFromEnv(name string) PortHint {
	return PortHint{kind: hintEnv, env: name}
}

// EphemeralPort lets the operating system pick the port.
func EphemeralPort() PortHint {
	return PortHint{kind: hintEphemeral}
}

// String describes the hint.
func (h PortHint) String() string {
	switch h.kind {
	case hintExplicit:
		return strconv.Itoa(h.port)
	case hintEnv:
		return "$" + h.env
	default:
		return "ephemeral"
	}
}

func (h PortHint) resolve(lookup func(string) (string, bool)) (int, error) {
	switch h.kind {
	case hintExplicit:
		return checkPort(h.port)
	case hintEnv:
		v, ok := lookup(h.env)
		if !ok || strings.TrimSpace(v) == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("%w: %s=%q", ErrInvalidPort, h.env, v)
		}
		if _, err := checkPort(n); err != nil {
			return 0, fmt.Errorf("%w (from %s)", err, h.env)
		}
		return n, nil
	default:
		return 0, nil
	}
}

func checkPort(n int) (int, error) {
	if n < 0 || n > 65535 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidPort, n)
	}
	return n, nil
}

// Resolver binds sockets and builds their advertised endpoints.
// The zero value is not ready; use NewResolver.
type Resolver struct {
	// Scheme of bound endpoints. Defaults to "tcp".
	Scheme string

	// PublishAddress, when set, is advertised as an extra alternate of every
	// endpoint (e.g. a NAT or proxy address).
	PublishAddress string

	// LookupEnv reads environment variables for PortFromEnv.
	LookupEnv func(string) (string, bool)

	// InterfaceAddrs lists local addresses.
	InterfaceAddrs func() ([]net.Addr, error)

	// LookupHost resolves a hostname to addresses.
	LookupHost func(ctx context.Context, host string) ([]string, error)
}

// NewResolver returns a resolver using the process environment and the
// system resolver.
func NewResolver() *Resolver {
	return &Resolver{
		Scheme:         DefaultScheme,
		LookupEnv:      os.LookupEnv,
		InterfaceAddrs: net.InterfaceAddrs,
		LookupHost:     net.DefaultResolver.LookupHost,
	}
}

// Bind binds sock and returns its advertised endpoint.
//
// requested pins the address: empty or "localhost" binds all interfaces, an
// IP literal binds that address, a hostname is resolved for binding and
// advertised as given. Bind failures are wrapped in ErrBindFailed and not
// retried.
func (r *Resolver) Bind(ctx context.Context, sock Bindable, requested string, hint PortHint) (Endpoint, error) {
	port, err := hint.resolve(r.LookupEnv)
	if err != nil {
		return Endpoint{}, err
	}

	bindHost, advertise, err := r.bindAddress(ctx, requested)
	if err != nil {
		return Endpoint{}, err
	}

	target := qualify(r.Scheme, bindHost, port)
	if err := sock.Listen(target); err != nil {
		return Endpoint{}, fmt.Errorf("%w: %s: %w", ErrBindFailed, target, err)
	}

	if port == 0 {
		port = boundPort(sock.Addr())
		if port == 0 {
			return Endpoint{}, fmt.Errorf("%w: %s: no port assigned", ErrBindFailed, target)
		}
	}

	ep := Endpoint{Scheme: r.Scheme, Port: port}
	if advertise != "" {
		ep.Address = advertise
	} else {
		addrs, err := r.localIPv4()
		if err != nil {
			return Endpoint{}, err
		}
		ep.Address = addrs[0]
		for _, a := range addrs[1:] {
			ep.Alternates = append(ep.Alternates, qualify(r.Scheme, a, port))
		}
	}
	if r.PublishAddress != "" {
		ep.Alternates = append(ep.Alternates, qualify(r.Scheme, r.PublishAddress, port))
	}
	return ep, nil
}

// bindAddress returns the host to bind and the address to advertise;
// an empty advertise address means "enumerate interfaces".
func (r *Resolver) bindAddress(ctx context.Context, requested string) (bind, advertise string, err error) {
	if requested == "" || requested == "localhost" {
		return "0.0.0.0", "", nil
	}
	if net.ParseIP(requested) != nil {
		return requested, requested, nil
	}

	addrs, err := r.LookupHost(ctx, requested)
	if err != nil {
		return "", "", fmt.Errorf("%w: resolve %s: %w", ErrBindFailed, requested, err)
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && ip.To4() != nil {
			return a, requested, nil
		}
	}
	if len(addrs) == 0 {
		return "", "", fmt.Errorf("%w: %s resolves to no address", ErrBindFailed, requested)
	}
	return addrs[0], requested, nil
}

// localIPv4 lists local IPv4 addresses, dropping loopback addresses when
// any other address exists.
func (r *Resolver) localIPv4() ([]string, error) {
	addrs, err := r.InterfaceAddrs()
	if err != nil {
		return nil, fmt.Errorf("failed to list interface addresses: %w", err)
	}

	var all []string
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip4 := ip.To4(); ip4 != nil {
			all = append(all, ip4.String())
		}
	}
	if len(all) == 0 {
		return nil, errors.New("no IPv4 interface address")
	}
	if len(all) == 1 {
		return all, nil
	}

	out := all[:0:0]
	for _, a := range all {
		if !strings.HasPrefix(a, "127.") {
			out = append(out, a)
		}
	}
	if len(out) == 0 {
		return all, nil
	}
	return out, nil
}

func boundPort(addr net.Addr) int {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.Port
	case *net.UDPAddr:
		return a.Port
	case nil:
		return 0
	}
	_, p, err := net.SplitHostPort(addr.String())
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(p)
	return n
}
