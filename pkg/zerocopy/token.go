// Package zerocopy hands large payloads to sockets without copying them and
// blocks the publisher until every socket is done with the buffer.
package zerocopy

import (
	"sync"
	"time"
)

// Token is a one-shot completion signal for a borrowed buffer.
//
// Every hand-off of the buffer takes a hold; the token fires once it has
// been sealed and every hold has been released. A token is used for one
// publish and then discarded.
type Token struct {
	mu          sync.Mutex
	outstanding int
	sealed      bool
	done        chan struct{}
}

// NewToken returns an unsealed token with no holds.
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Hold registers a hand-off and returns its release function. Calling the
// release function more than once has no further effect. Hold panics if the
// token is already sealed.
func (t *Token) Hold() func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sealed {
		panic("zerocopy: Hold on sealed token")
	}
	t.outstanding++

	var once sync.Once
	return func() {
		once.Do(t.release)
	}
}

func (t *Token) release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.outstanding--
	t.fireLocked()
}

// Seal marks that no more holds will be taken.
func (t *Token) Seal() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sealed {
		return
	}
	t.sealed = true
	t.fireLocked()
}

func (t *Token) fireLocked() {
	if t.sealed && t.outstanding == 0 {
		select {
		case <-t.done:
		default:
			close(t.done)
		}
	}
}

// Done returns a channel closed when the token fires.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the token fires and returns how long it waited.
func (t *Token) Wait() time.Duration {
	start := time.Now()
	<-t.done
	return time.Since(start)
}

// Outstanding returns the number of unreleased holds.
func (t *Token) Outstanding() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outstanding
}
