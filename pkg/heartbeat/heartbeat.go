// Package heartbeat emits the periodic liveness signal of a publisher.
//
// Subscribers consider a publisher dead when no heartbeat arrived for a
// while. The publisher is checked every Period and sends when at least
// Threshold has elapsed since the last heartbeat; the threshold is lower
// than the period so that a check arriving slightly early still sends.
package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Heartbeat constants.
const (
	// DefaultPeriod is the interval between liveness checks.
	DefaultPeriod = 10 * time.Second

	// DefaultThreshold is the minimum time between two heartbeats.
	DefaultThreshold = 8 * time.Second
)

// ErrHeartbeatFailed indicates the heartbeat could not be written.
var ErrHeartbeatFailed = errors.New("heartbeat failed")

// Config configures heartbeat timing.
type Config struct {
	// Period is the interval between checks in the Start loop.
	Period time.Duration

	// Threshold is the minimum elapsed time for a check to send.
	Threshold time.Duration

	// Logger receives send failures from the Start loop. Nil discards them.
	Logger *slog.Logger
}

// DefaultConfig returns the default heartbeat configuration.
func DefaultConfig() Config {
	return Config{
		Period:    DefaultPeriod,
		Threshold: DefaultThreshold,
	}
}

// SendFunc writes one heartbeat. It is called once per copy.
type SendFunc func() error

// Stats contains heartbeat statistics.
type Stats struct {
	LastSent    time.Time
	Sent        uint64
	DoubleSends uint64
	Failures    uint64
}

// Publisher decides when a heartbeat is due and sends it.
type Publisher struct {
	config Config
	send   SendFunc
	logger *slog.Logger

	doubleSend atomic.Bool

	mu          sync.Mutex
	lastSent    time.Time
	sent        uint64
	doubleSends uint64
	failures    uint64
	onSent      func(copies int, sinceLast time.Duration)

	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

// New creates a publisher. The last heartbeat is taken to be now, so the
// first one goes out one threshold later.
func New(config Config, send SendFunc) *Publisher {
	if config.Period <= 0 {
		config.Period = DefaultPeriod
	}
	if config.Threshold <= 0 {
		config.Threshold = DefaultThreshold
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Publisher{
		config:   config,
		send:     send,
		logger:   logger,
		lastSent: time.Now(),
	}
}

// SetSentCallback registers fn to run after each successful tick.
func (p *Publisher) SetSentCallback(fn func(copies int, sinceLast time.Duration)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onSent = fn
}

// RequestDoubleSend makes the next due heartbeat go out twice.
func (p *Publisher) RequestDoubleSend() {
	p.doubleSend.Store(true)
}

// Due reports whether a heartbeat is due at now.
func (p *Publisher) Due(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return now.Sub(p.lastSent) >= p.config.Threshold
}

// Tick sends the heartbeat if it is due at now and returns the number of
// copies written. The last-sent time is updated before sending, so a failed
// heartbeat is not retried until the next threshold.
func (p *Publisher) Tick(now time.Time) (int, error) {
	p.mu.Lock()
	since := now.Sub(p.lastSent)
	if since < p.config.Threshold {
		p.mu.Unlock()
		return 0, nil
	}
	p.lastSent = now
	p.mu.Unlock()

	copies := 1
	if p.doubleSend.CompareAndSwap(true, false) {
		copies = 2
	}

	sent := 0
	var err error
	for ; sent < copies; sent++ {
		if err = p.send(); err != nil {
			err = fmt.Errorf("%w: %w", ErrHeartbeatFailed, err)
			break
		}
	}

	p.mu.Lock()
	p.sent += uint64(sent)
	if copies == 2 && err == nil {
		p.doubleSends++
	}
	if err != nil {
		p.failures++
	}
	onSent := p.onSent
	p.mu.Unlock()

	if err == nil && onSent != nil {
		onSent(sent, since)
	}
	return sent, err
}

// Start runs the check loop until ctx is done or Stop is called.
func (p *Publisher) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.done = make(chan struct{})
	stopCh, done := p.stopCh, p.done
	p.mu.Unlock()

	go p.loop(ctx, stopCh, done)
}

// Stop stops the loop and waits for it to exit.
func (p *Publisher) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	done := p.done
	p.mu.Unlock()

	<-done
}

// IsRunning reports whether the loop is active.
func (p *Publisher) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Stats returns current statistics.
func (p *Publisher) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		LastSent:    p.lastSent,
		Sent:        p.sent,
		DoubleSends: p.doubleSends,
		Failures:    p.failures,
	}
}

func (p *Publisher) loop(ctx context.Context, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.config.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.running = false
			p.mu.Unlock()
			return
		case <-stopCh:
			return
		case now := <-ticker.C:
			if _, err := p.Tick(now); err != nil {
				p.logger.Warn("heartbeat send failed", "error", err)
			}
		}
	}
}
