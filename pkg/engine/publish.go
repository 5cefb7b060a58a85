package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/ctlbus/ctlbus-go/pkg/log"
	"github.com/ctlbus/ctlbus-go/pkg/metrics"
	"github.com/ctlbus/ctlbus-go/pkg/payload"
	"github.com/ctlbus/ctlbus-go/pkg/transport"
	"github.com/ctlbus/ctlbus-go/pkg/wire"
	"github.com/ctlbus/ctlbus-go/pkg/zerocopy"
)

// Event is one event to publish.
type Event struct {
	// Device is the device name (domain/family/member).
	Device string

	// Object is the attribute or pipe name.
	Object string

	// Type is the event type, e.g. wire.EventChange.
	Type string

	// Payload is the marshalled value.
	Payload payload.Payload

	// Errors, when set, is sent instead of Payload as an exception event.
	Errors []wire.DevError

	// ForVersion returns the payload for a subscriber protocol version.
	// PublishVersions uses Payload for every version when it is nil.
	ForVersion func(version int) payload.Payload

	// SkipCounter leaves the event counter unchanged.
	SkipCounter bool
}

func (e *Engine) name(ev Event) wire.Name {
	return wire.Name{
		Prefix: e.config.Prefix,
		Device: ev.Device,
		Object: ev.Object,
		NoDB:   e.config.NoDB,
	}
}

// Topic returns the topic ev is published on.
func (e *Engine) Topic(ev Event) string {
	return e.name(ev).Topic(ev.Type)
}

// Publish sends ev to its subscribers.
//
// The envelope carries the current counter of the event; the counter is
// incremented once every send has succeeded. A large payload is borrowed
// and Publish returns only once every socket has released it, so the
// buffer may be reused afterwards.
func (e *Engine) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timing := e.perf.Begin()
	defer timing.Done()
	start := time.Now()
	defer func() { e.metrics.PublishDuration(time.Since(start)) }()

	e.pubMu.Lock()
	defer e.pubMu.Unlock()
	if e.closed.Load() {
		return ErrShutdown
	}

	topic := e.Topic(ev)
	key := wire.CounterKey(topic)
	ctr := e.counters.Get(key)
	if err := e.publishLocked(ctx, topic, ev, ev.Payload, ctr); err != nil {
		return err
	}
	if !ev.SkipCounter {
		e.counters.Increment(key)
	}
	return nil
}

// PublishVersions sends ev once per subscriber protocol version. Version 5
// and later subscribers receive the prefixed event type. Every send carries
// the same counter, which is incremented once after the first successful
// send.
func (e *Engine) PublishVersions(ctx context.Context, ev Event, versions []int) error {
	if len(versions) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	timing := e.perf.Begin()
	defer timing.Done()
	start := time.Now()
	defer func() { e.metrics.PublishDuration(time.Since(start)) }()

	e.pubMu.Lock()
	defer e.pubMu.Unlock()
	if e.closed.Load() {
		return ErrShutdown
	}

	name := e.name(ev)
	key := wire.CounterKey(name.Topic(ev.Type))
	ctr := e.counters.Get(key)
	inc := !ev.SkipCounter

	for _, v := range versions {
		eventType := ev.Type
		if v >= 5 {
			eventType = wire.AddVersionPrefix(eventType)
		}
		data := ev.Payload
		if ev.ForVersion != nil {
			data = ev.ForVersion(v)
		}

		if err := e.publishLocked(ctx, name.Topic(eventType), ev, data, ctr); err != nil {
			return err
		}
		if inc {
			e.counters.Increment(key)
			inc = false
		}
	}
	return nil
}

// target is one socket a publish is written to.
type target struct {
	sock      transport.ZeroCopySender
	multicast bool
	endpoint  string
}

// targets resolves where topic goes and how many times.
//
// Both double-send sources are consumed here, before anything is sent, so a
// publish that fails still uses up the extra copy.
func (e *Engine) targets(ctx context.Context, topic string) ([]target, int, error) {
	d, routed := e.routes.Delivery(topic)

	var out []target
	if d.Multicast != nil {
		out = append(out, target{sock: d.Multicast, multicast: true, endpoint: d.Multicast.Endpoint()})
	}
	if !routed || d.Local {
		sock, ep, err := e.eventSocket(ctx)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, target{sock: sock, endpoint: ep.String()})
	}

	copies := 1
	if d.DoubleSend {
		copies = 2
	}
	if !routed && e.takeDoubleSend() {
		copies = 2
	}
	return out, copies, nil
}

// publishLocked encodes and sends one event. The caller holds pubMu.
func (e *Engine) publishLocked(ctx context.Context, topic string, ev Event, data payload.Payload, ctr uint32) error {
	env := wire.NewEnvelope(ctr, len(ev.Errors) > 0)
	raw := data.Data
	large := false
	if env.IsException {
		b, err := wire.EncodeErrorList(ev.Errors)
		if err != nil {
			return fmt.Errorf("%w: event %s: %w", ErrPublishFailed, topic, err)
		}
		raw = b
	} else {
		large = e.config.Thresholds.IsLarge(data)
	}

	msg, err := e.codec.EncodeEvent(topic, env, raw, large)
	if err != nil {
		return fmt.Errorf("%w: event %s: %w", ErrPublishFailed, topic, err)
	}

	targets, copies, err := e.targets(ctx, topic)
	if err != nil {
		return fmt.Errorf("%w: event %s: %w", ErrPublishFailed, topic, err)
	}

	var tok *zerocopy.Token
	if large {
		tok = e.zc.Begin()
	}
	err = e.sendAll(tok, msg, targets, copies, ctr)
	if tok != nil {
		e.metrics.ZeroCopyWait(e.zc.Finish(tok))
	}
	if err != nil {
		e.logError("publish "+topic, err)
		e.logger.Warn("can't push event", "event", topic, "error", err)
		return fmt.Errorf("%w: can't push event %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}

// sendAll writes msg to every target, copies times. Hybrid routes get the
// multicast socket first. It stops at the first failure.
func (e *Engine) sendAll(tok *zerocopy.Token, msg *wire.Message, targets []target, copies int, ctr uint32) error {
	first := true
	for range copies {
		for _, t := range targets {
			m := msg
			if !first {
				m = msg.Duplicate()
			}
			first = false

			var err error
			if tok != nil {
				err = e.zc.Send(tok, t.sock, m.Parts())
			} else {
				err = t.sock.Send(m.Parts())
			}

			label := metrics.TransportUnicast
			if t.multicast {
				label = metrics.TransportMulticast
			}
			if err != nil {
				e.metrics.SendFailed(label)
				return err
			}
			e.metrics.Sent(label, m.Size())

			frame := log.Frame(m.Parts())
			frame.Counter = ctr
			frame.ZeroCopy = tok != nil
			frame.Multicast = t.multicast
			e.plog.Log(log.Event{
				Timestamp: time.Now(),
				EngineID:  e.id,
				Layer:     log.LayerTransport,
				Category:  log.CategoryMessage,
				Endpoint:  t.endpoint,
				Topic:     m.Topic(),
				Frame:     frame,
			})
		}
	}
	return nil
}
