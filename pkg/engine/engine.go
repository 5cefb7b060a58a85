// Package engine publishes device events to subscribers.
//
// An Engine owns a heartbeat socket, bound when the engine is created, and
// an event socket, bound on first use. Events go out on the event socket
// unless a multicast route was declared for them. Every socket write,
// heartbeats included, is serialised by a single publish mutex; a large
// payload keeps that mutex until every socket has released it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ctlbus/ctlbus-go/pkg/clients"
	"github.com/ctlbus/ctlbus-go/pkg/counter"
	"github.com/ctlbus/ctlbus-go/pkg/endpoint"
	"github.com/ctlbus/ctlbus-go/pkg/heartbeat"
	"github.com/ctlbus/ctlbus-go/pkg/log"
	"github.com/ctlbus/ctlbus-go/pkg/metrics"
	"github.com/ctlbus/ctlbus-go/pkg/perfmon"
	"github.com/ctlbus/ctlbus-go/pkg/route"
	"github.com/ctlbus/ctlbus-go/pkg/transport"
	"github.com/ctlbus/ctlbus-go/pkg/wire"
	"github.com/ctlbus/ctlbus-go/pkg/zerocopy"
)

// Engine errors.
var (
	ErrPublishFailed = errors.New("publish failed")
	ErrShutdown      = errors.New("engine shut down")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Engine is one event publisher.
type Engine struct {
	config   Config
	logger   *slog.Logger
	plog     log.Logger
	id       string
	codec    *wire.Codec
	factory  transport.Factory
	resolver *endpoint.Resolver
	metrics  *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	// pubMu serialises every socket write.
	pubMu sync.Mutex

	sockMu        sync.Mutex
	hbSock        transport.PubSocket
	hbEndpoint    endpoint.Endpoint
	eventSock     transport.PubSocket
	eventEndpoint endpoint.Endpoint

	hbTopic  string
	hb       *heartbeat.Publisher
	routes   *route.Table
	counters *counter.Registry
	clients  *clients.Tracker
	perf     *perfmon.Monitor
	zc       *zerocopy.Transmitter

	// pendingDoubleSend is the number of non-multicast publishes still to
	// be sent twice.
	pendingDoubleSend atomic.Int32
}

// New creates an engine and binds its heartbeat socket.
// The engine's sockets live until Shutdown or until ctx is done.
func New(ctx context.Context, config Config) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	factory := config.Factory
	if factory == nil {
		factory = &transport.ZMQFactory{HWM: config.HWM, Logger: logger}
	}
	resolver := config.Resolver
	if resolver == nil {
		resolver = endpoint.NewResolver()
		resolver.PublishAddress = config.PublishAddress
	}
	m, err := metrics.New(config.Registerer)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	e := &Engine{
		config:   config,
		logger:   logger,
		plog:     log.OrNoop(config.ProtocolLogger),
		id:       uuid.NewString(),
		codec:    wire.HostCodec(),
		factory:  factory,
		resolver: resolver,
		metrics:  m,
		hbTopic:  wire.HeartbeatTopic(config.Prefix, config.ServerName, config.NoDB),
		counters: counter.NewRegistry(),
		clients:  clients.NewTracker(config.ClientWindow),
		perf:     perfmon.New(),
		zc:       zerocopy.NewTransmitter(),
	}
	e.ctx, e.cancel = context.WithCancel(ctx)

	sock, ep, err := e.bind(e.ctx, config.HeartbeatAddress, config.HeartbeatPort)
	if err != nil {
		e.cancel()
		return nil, fmt.Errorf("heartbeat socket: %w", err)
	}
	e.hbSock, e.hbEndpoint = sock, ep

	e.routes = route.NewTable(e.ctx, factory, config.Multicast, func(ctx context.Context) error {
		_, err := e.EnsureEventSocket(ctx)
		return err
	})

	hbConfig := config.Heartbeat
	hbConfig.Logger = logger
	e.hb = heartbeat.New(hbConfig, e.sendHeartbeat)
	e.hb.SetSentCallback(func(copies int, sinceLast time.Duration) {
		e.plog.Log(log.Event{
			Timestamp: time.Now(),
			EngineID:  e.id,
			Layer:     log.LayerEngine,
			Category:  log.CategoryHeartbeat,
			Endpoint:  e.hbEndpoint.String(),
			Topic:     e.hbTopic,
			Heartbeat: &log.HeartbeatEvent{Sends: copies, SinceLast: sinceLast},
		})
	})

	e.logger.Info("engine started",
		"id", e.id,
		"heartbeat", ep.String(),
		"topic", e.hbTopic)
	e.logState(log.StateEntityEngine, "", "RUNNING", "")
	return e, nil
}

// bind creates a publish socket and binds it.
func (e *Engine) bind(ctx context.Context, address string, hint endpoint.PortHint) (transport.PubSocket, endpoint.Endpoint, error) {
	sock, err := e.factory.NewPub(ctx)
	if err != nil {
		return nil, endpoint.Endpoint{}, err
	}
	ep, err := e.resolver.Bind(ctx, sock, address, hint)
	if err != nil {
		sock.Close()
		return nil, endpoint.Endpoint{}, err
	}
	e.logState(log.StateEntitySocket, "", "BOUND", ep.String())
	return sock, ep, nil
}

// ID returns the engine instance ID.
func (e *Engine) ID() string {
	return e.id
}

// ServerName returns the configured server name.
func (e *Engine) ServerName() string {
	return e.config.ServerName
}

// HeartbeatTopic returns the topic of the heartbeat messages.
func (e *Engine) HeartbeatTopic() string {
	return e.hbTopic
}

// HeartbeatEndpoint returns the advertised heartbeat endpoint.
func (e *Engine) HeartbeatEndpoint() endpoint.Endpoint {
	e.sockMu.Lock()
	defer e.sockMu.Unlock()
	return e.hbEndpoint
}

// EventEndpoint returns the advertised event endpoint. ok is false while
// the event socket does not exist yet.
func (e *Engine) EventEndpoint() (ep endpoint.Endpoint, ok bool) {
	e.sockMu.Lock()
	defer e.sockMu.Unlock()
	return e.eventEndpoint, e.eventSock != nil
}

// EnsureEventSocket creates and binds the event socket unless it exists,
// and returns its endpoint.
func (e *Engine) EnsureEventSocket(ctx context.Context) (endpoint.Endpoint, error) {
	_, ep, err := e.eventSocket(ctx)
	return ep, err
}

func (e *Engine) eventSocket(ctx context.Context) (transport.PubSocket, endpoint.Endpoint, error) {
	e.sockMu.Lock()
	defer e.sockMu.Unlock()
	if e.closed.Load() {
		return nil, endpoint.Endpoint{}, ErrShutdown
	}
	if e.eventSock != nil {
		return e.eventSock, e.eventEndpoint, nil
	}

	sock, ep, err := e.bind(e.ctx, e.config.EventAddress, e.config.EventPort)
	if err != nil {
		return nil, endpoint.Endpoint{}, fmt.Errorf("event socket: %w", err)
	}
	e.eventSock, e.eventEndpoint = sock, ep
	e.logger.Info("event socket bound", "endpoint", ep.String())
	return sock, ep, nil
}

// currentEventSocket returns the event socket, or nil before it exists.
func (e *Engine) currentEventSocket() transport.PubSocket {
	e.sockMu.Lock()
	defer e.sockMu.Unlock()
	return e.eventSock
}

// StartHeartbeat runs the heartbeat loop until Shutdown.
func (e *Engine) StartHeartbeat() {
	e.hb.Start(e.ctx)
}

// PushHeartbeat sends the heartbeat if it is due and returns the number of
// copies written.
func (e *Engine) PushHeartbeat() (int, error) {
	if e.closed.Load() {
		return 0, ErrShutdown
	}
	return e.hb.Tick(time.Now())
}

// HeartbeatStats returns heartbeat statistics.
func (e *Engine) HeartbeatStats() heartbeat.Stats {
	return e.hb.Stats()
}

// RequestDoubleSend makes the next heartbeat and the next non-multicast
// publish go out twice. It is used when a subscriber re-subscribes.
func (e *Engine) RequestDoubleSend() {
	e.pendingDoubleSend.Add(1)
	e.hb.RequestDoubleSend()
}

// takeDoubleSend consumes one pending double send.
func (e *Engine) takeDoubleSend() bool {
	for {
		n := e.pendingDoubleSend.Load()
		if n <= 0 {
			return false
		}
		if e.pendingDoubleSend.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

// sendHeartbeat writes one heartbeat copy followed by a filler on the
// event socket.
func (e *Engine) sendHeartbeat() error {
	e.pubMu.Lock()
	defer e.pubMu.Unlock()
	if e.closed.Load() {
		return ErrShutdown
	}

	msg, err := e.codec.EncodeHeartbeat(e.hbTopic)
	if err != nil {
		return err
	}
	if err := e.hbSock.Send(msg.Parts()); err != nil {
		e.metrics.SendFailed(metrics.TransportUnicast)
		e.metrics.Heartbeat(0, err)
		e.logError("heartbeat", err)
		return err
	}
	e.metrics.Sent(metrics.TransportUnicast, msg.Size())
	e.metrics.Heartbeat(1, nil)

	if ev := e.currentEventSocket(); ev != nil {
		if err := ev.Send([][]byte{[]byte(wire.FillerTopic)}); err != nil {
			e.logger.Debug("filler send failed", "error", err)
		}
	}
	return nil
}

// Shutdown stops the heartbeat loop, waits for an in-flight publish and
// closes every socket. Calling it more than once is allowed.
func (e *Engine) Shutdown() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.hb.Stop()

	e.pubMu.Lock()
	defer e.pubMu.Unlock()

	var errs []error
	if err := e.routes.Close(); err != nil {
		errs = append(errs, err)
	}

	e.sockMu.Lock()
	for _, s := range []transport.PubSocket{e.eventSock, e.hbSock} {
		if s == nil {
			continue
		}
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.eventSock, e.hbSock = nil, nil
	e.sockMu.Unlock()

	e.cancel()
	e.logger.Info("engine stopped", "id", e.id)
	e.logState(log.StateEntityEngine, "RUNNING", "STOPPED", "")
	return errors.Join(errs...)
}

func (e *Engine) logState(entity log.StateEntity, oldState, newState, reason string) {
	e.plog.Log(log.Event{
		Timestamp: time.Now(),
		EngineID:  e.id,
		Layer:     log.LayerEngine,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   entity,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func (e *Engine) logError(op string, err error) {
	e.plog.Log(log.Event{
		Timestamp: time.Now(),
		EngineID:  e.id,
		Layer:     log.LayerEngine,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerTransport,
			Message: err.Error(),
			Context: op,
		},
	})
}
