// Package counter keeps the per-event sequence counters carried in every
// data-event envelope. Subscribers use gaps in the sequence to detect lost
// events.
package counter

import (
	"maps"
	"strings"
	"sync"
)

// Registry maps lower-cased event names to counters. Counters start at 1
// when initialised, grow by exactly one per successful publish and are
// never removed.
type Registry struct {
	mu       sync.Mutex
	counters map[string]uint32
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{counters: make(map[string]uint32)}
}

func key(name string) string {
	return strings.ToLower(name)
}

// Init sets the counter of name to 1, creating it if needed.
func (r *Registry) Init(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[key(name)] = 1
}

// Get returns the counter of name. Unknown names read as 0.
func (r *Registry) Get(name string) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[key(name)]
}

// Increment adds one to the counter of name and returns the new value.
// An unknown name is created at 1.
func (r *Registry) Increment(name string) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(name)
	r.counters[k]++
	return r.counters[k]
}

// Len returns the number of counters.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.counters)
}

// Snapshot returns a copy of every counter.
func (r *Registry) Snapshot() map[string]uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.counters)
}
