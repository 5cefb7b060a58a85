// Package route maps event names to their delivery routes.
//
// An event is published on the shared unicast event socket unless a route
// declares it multicast. A multicast route has a dedicated multicast
// socket when remote subscribers exist, is served over the unicast socket
// when local subscribers exist, and uses both when it has both (a hybrid
// route). Whenever a route gains a new kind of subscriber its next publish
// is sent twice, so that the newcomer sees at least one message after
// joining.
package route

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ctlbus/ctlbus-go/pkg/transport"
)

// ErrRouteConflict indicates a declaration naming a different group than
// the existing route.
var ErrRouteConflict = errors.New("route conflict")

// sendState is the double-send flag of a route.
type sendState uint32

const (
	consumed sendState = iota
	fresh
)

// Route is the delivery route of one event.
type Route struct {
	name     string
	endpoint string

	// Guarded by the table mutex.
	socket transport.MulticastSocket
	local  bool

	doubleSend atomic.Uint32
}

// Name returns the event name.
func (r *Route) Name() string { return r.name }

// Endpoint returns the advertised multicast group endpoint.
func (r *Route) Endpoint() string { return r.endpoint }

func (r *Route) markFresh() {
	r.doubleSend.Store(uint32(fresh))
}

// consume clears the double-send flag and reports whether it was set.
func (r *Route) consume() bool {
	return r.doubleSend.CompareAndSwap(uint32(fresh), uint32(consumed))
}

// Delivery tells the publisher where to send one event.
type Delivery struct {
	// Multicast is the dedicated socket, nil for local-only routes.
	Multicast transport.MulticastSocket

	// Local is set when the event also goes out on the unicast socket.
	Local bool

	// DoubleSend is set when this publish must be sent twice.
	DoubleSend bool
}

// Info is a snapshot of a route for diagnostics.
type Info struct {
	Name       string
	Endpoint   string
	Multicast  bool
	Local      bool
	DoubleSend bool
}

// Table holds the routes of one engine.
type Table struct {
	ctx         context.Context
	factory     transport.Factory
	defaults    transport.MulticastOptions
	ensureLocal func(ctx context.Context) error

	mu     sync.Mutex
	routes map[string]*Route
	closed bool
}

// NewTable returns an empty table. Multicast sockets are created through
// factory with defaults and live until ctx is done or the table is closed.
// ensureLocal is called whenever a route gains local subscribers and must
// make sure the unicast event socket exists.
func NewTable(ctx context.Context, factory transport.Factory, defaults transport.MulticastOptions, ensureLocal func(ctx context.Context) error) *Table {
	return &Table{
		ctx:         ctx,
		factory:     factory,
		defaults:    defaults,
		ensureLocal: ensureLocal,
		routes:      make(map[string]*Route),
	}
}

func key(name string) string {
	return strings.ToLower(name)
}

// Declare registers interest in name over the multicast group. rateKbps
// overrides the default rate when positive. local reports whether the new
// subscriber runs on this host.
//
// A new local route gets no socket and sends its first publish twice. A new
// remote route gets a dedicated socket. Declaring a kind of subscriber the
// route did not have yet adds the missing side and requests a double send.
func (t *Table) Declare(ctx context.Context, name, group string, rateKbps int, local bool) (*Route, error) {
	g, err := transport.ParseGroup(group)
	if err != nil {
		return nil, fmt.Errorf("route %s: %w", name, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, transport.ErrClosed
	}

	k := key(name)
	r, exists := t.routes[k]
	if exists && r.endpoint != g.Endpoint() {
		return nil, fmt.Errorf("%w: %s already routed to %s, not %s", ErrRouteConflict, k, r.endpoint, g.Endpoint())
	}
	if !exists {
		r = &Route{name: k, endpoint: g.Endpoint()}
	}

	changed := false
	if local && !r.local {
		if t.ensureLocal != nil {
			if err := t.ensureLocal(ctx); err != nil {
				return nil, fmt.Errorf("route %s: %w", k, err)
			}
		}
		r.local = true
		changed = true
	}
	if !local && r.socket == nil {
		opts := t.defaults
		if rateKbps > 0 {
			opts.RateKbps = rateKbps
		}
		sock, err := t.factory.NewMulticast(t.ctx, group, opts)
		if err != nil {
			return nil, fmt.Errorf("route %s: %w", k, err)
		}
		r.socket = sock
		changed = true
	}

	// A brand-new remote route has nobody waiting for a post-join message.
	if changed && (exists || local) {
		r.markFresh()
	}
	t.routes[k] = r
	return r, nil
}

// IsMulticast reports whether name has a route.
func (t *Table) IsMulticast(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.routes[key(name)]
	return ok
}

// Endpoint returns the group endpoint of name, or "" without a route.
func (t *Table) Endpoint(name string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.routes[key(name)]; ok {
		return r.endpoint
	}
	return ""
}

// Delivery returns how to send name and consumes its double-send flag.
// ok is false when name has no route.
func (t *Table) Delivery(name string) (d Delivery, ok bool) {
	t.mu.Lock()
	r, ok := t.routes[key(name)]
	if ok {
		d.Multicast = r.socket
		d.Local = r.local
	}
	t.mu.Unlock()

	if !ok {
		return Delivery{}, false
	}
	d.DoubleSend = r.consume()
	return d, true
}

// Routes returns a snapshot of every route, sorted by name.
func (t *Table) Routes() []Info {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Info, 0, len(t.routes))
	for _, r := range t.routes {
		out = append(out, Info{
			Name:       r.name,
			Endpoint:   r.endpoint,
			Multicast:  r.socket != nil,
			Local:      r.local,
			DoubleSend: sendState(r.doubleSend.Load()) == fresh,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Close closes every multicast socket. Later declarations fail.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true

	var errs []error
	for _, r := range t.routes {
		if r.socket != nil {
			if err := r.socket.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
