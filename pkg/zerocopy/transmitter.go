package zerocopy

import (
	"sync/atomic"
	"time"

	"github.com/ctlbus/ctlbus-go/pkg/transport"
)

// Stats contains transmitter statistics.
type Stats struct {
	// Publishes is the number of completed large publishes.
	Publishes uint64

	// Handoffs is the number of socket sends of borrowed payloads.
	Handoffs uint64

	// Waited is the total time spent waiting for releases.
	Waited time.Duration
}

// Transmitter sends borrowed payloads. A publish takes a token from Begin,
// sends through Send once per destination and finishes with Finish.
type Transmitter struct {
	publishes atomic.Uint64
	handoffs  atomic.Uint64
	waited    atomic.Int64
}

// NewTransmitter returns a transmitter.
func NewTransmitter() *Transmitter {
	return &Transmitter{}
}

// Begin returns the token for one publish.
func (t *Transmitter) Begin() *Token {
	return NewToken()
}

// Send hands parts to sock; the last part is borrowed under tok.
func (t *Transmitter) Send(tok *Token, sock transport.ZeroCopySender, parts [][]byte) error {
	t.handoffs.Add(1)
	return sock.SendZeroCopy(parts, tok.Hold())
}

// Finish seals tok and blocks until every socket has released the payload.
// It has no timeout: a socket that never releases blocks the publisher.
func (t *Transmitter) Finish(tok *Token) time.Duration {
	tok.Seal()
	d := tok.Wait()
	t.publishes.Add(1)
	t.waited.Add(int64(d))
	return d
}

// Stats returns current statistics.
func (t *Transmitter) Stats() Stats {
	return Stats{
		Publishes: t.publishes.Load(),
		Handoffs:  t.handoffs.Load(),
		Waited:    time.Duration(t.waited.Load()),
	}
}
