// Package clients tracks the subscribers that recently talked to the
// publisher. It serves diagnostics only and never touches the publish path.
package clients

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// DefaultWindow is how long a client stays listed after it was last seen.
const DefaultWindow = 500 * time.Second

// Identity is the network-level calling identity of a subscriber.
type Identity struct {
	// Kind names the client library, e.g. "go" or "cpp".
	Kind string

	// Host is the client host address.
	Host string

	// PID is the client process ID.
	PID int
}

// String returns "kind:host:pid".
func (id Identity) String() string {
	return fmt.Sprintf("%s:%s:%d", id.Kind, id.Host, id.PID)
}

// Client is a tracked subscriber.
type Client struct {
	Identity Identity
	LastSeen time.Time
}

// Tracker records when each distinct client was last seen.
type Tracker struct {
	mu     sync.Mutex
	window time.Duration
	cache  *ttlcache.Cache[Identity, time.Time]
}

// NewTracker returns a tracker forgetting clients not seen for window.
// A non-positive window means DefaultWindow.
func NewTracker(window time.Duration) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Tracker{
		window: window,
		cache: ttlcache.New(
			ttlcache.WithTTL[Identity, time.Time](window),
			ttlcache.WithDisableTouchOnHit[Identity, time.Time](),
		),
	}
}

// Window returns the liveness window.
func (t *Tracker) Window() time.Duration {
	return t.window
}

// NoteClient records a sighting of id and reports whether it was unknown
// (never seen, or expired). Expired clients are pruned on every call.
func (t *Tracker) NoteClient(id Identity) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cache.DeleteExpired()
	isNew := t.cache.Get(id) == nil
	t.cache.Set(id, time.Now(), ttlcache.DefaultTTL)
	return isNew
}

// Clients returns the live clients, most recently seen first.
func (t *Tracker) Clients() []Client {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cache.DeleteExpired()
	items := t.cache.Items()
	out := make([]Client, 0, len(items))
	for id, item := range items {
		out = append(out, Client{Identity: id, LastSeen: item.Value()})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSeen.After(out[j].LastSeen)
	})
	return out
}

// Len returns the number of live clients.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache.DeleteExpired()
	return t.cache.Len()
}
