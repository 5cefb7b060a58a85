package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ctlbus/ctlbus-go/pkg/clients"
	"github.com/ctlbus/ctlbus-go/pkg/log"
	"github.com/ctlbus/ctlbus-go/pkg/route"
	"github.com/ctlbus/ctlbus-go/pkg/wire"
)

// DeclareRoute registers a subscriber of the event topic over a multicast
// group and returns the group endpoint. local reports whether the
// subscriber runs on this host; rateKbps overrides the default rate when
// positive.
func (e *Engine) DeclareRoute(ctx context.Context, topic, group string, rateKbps int, local bool) (string, error) {
	if e.closed.Load() {
		return "", ErrShutdown
	}
	r, err := e.routes.Declare(ctx, topic, group, rateKbps, local)
	if err != nil {
		e.logError("declare route "+topic, err)
		return "", err
	}

	for _, info := range e.routes.Routes() {
		if info.Name != r.Name() {
			continue
		}
		e.plog.Log(log.Event{
			Timestamp: time.Now(),
			EngineID:  e.id,
			Layer:     log.LayerEngine,
			Category:  log.CategoryRoute,
			Topic:     info.Name,
			Route: &log.RouteEvent{
				Group:      info.Endpoint,
				Local:      info.Local,
				Multicast:  info.Multicast,
				DoubleSend: info.DoubleSend,
			},
		})
		e.logger.Debug("route declared",
			"event", info.Name,
			"group", info.Endpoint,
			"local", info.Local,
			"multicast", info.Multicast)
	}
	e.metrics.SetRoutes(len(e.routes.Routes()))
	return r.Endpoint(), nil
}

// IsEventMulticast reports whether topic has a multicast route.
func (e *Engine) IsEventMulticast(topic string) bool {
	return e.routes.IsMulticast(topic)
}

// MulticastEndpoint returns the group endpoint of topic, or "" without a
// route.
func (e *Engine) MulticastEndpoint(topic string) string {
	return e.routes.Endpoint(topic)
}

// Routes returns a snapshot of the declared routes.
func (e *Engine) Routes() []route.Info {
	return e.routes.Routes()
}

// InitCounter resets the counter of topic to 1. It is called when a
// subscription starts so that subscribers can detect missed events.
func (e *Engine) InitCounter(topic string) {
	e.counters.Init(wire.CounterKey(topic))
}

// Counter returns the current counter of topic.
func (e *Engine) Counter(topic string) uint32 {
	return e.counters.Get(wire.CounterKey(topic))
}

// NoteClient records a subscriber request and reports whether the client
// was not known yet.
func (e *Engine) NoteClient(id clients.Identity) bool {
	isNew := e.clients.NoteClient(id)
	if isNew {
		e.logger.Debug("new client", "client", id.String())
		e.logState(log.StateEntityClient, "", "SEEN", id.String())
	}
	e.metrics.SetClients(e.clients.Len())
	return isNew
}

// Clients returns the subscribers seen within the liveness window.
func (e *Engine) Clients() []clients.Client {
	return e.clients.Clients()
}

// EnablePerfMonitoring turns publish timing on or off. Turning it on
// discards earlier samples.
func (e *Engine) EnablePerfMonitoring(on bool) {
	was := e.perf.Enabled()
	e.perf.Enable(on)
	if was != on {
		e.logState(log.StateEntityMonitor, onOff(was), onOff(on), "")
	}
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

type diagnostics struct {
	EventCounters map[string]uint32 `json:"event_counters"`
	Perf          json.RawMessage   `json:"perf"`
}

// QueryDiagnostics returns the event counters and the performance samples
// recorded since the previous query as a JSON object:
//
//	{"event_counters":{"<event>":<n>,...},"perf":[...]|null}
func (e *Engine) QueryDiagnostics() (string, error) {
	perf, err := e.perf.Snapshot()
	if err != nil {
		return "", fmt.Errorf("failed to encode performance samples: %w", err)
	}
	out, err := json.Marshal(diagnostics{
		EventCounters: e.counters.Snapshot(),
		Perf:          perf,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode diagnostics: %w", err)
	}
	return string(out), nil
}
