package ctlbus_test

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctlbus/ctlbus-go/pkg/endpoint"
	"github.com/ctlbus/ctlbus-go/pkg/engine"
	"github.com/ctlbus/ctlbus-go/pkg/heartbeat"
	"github.com/ctlbus/ctlbus-go/pkg/log"
	"github.com/ctlbus/ctlbus-go/pkg/payload"
	"github.com/ctlbus/ctlbus-go/pkg/wire"
)

const prefix = "ctlbus://host:10000/"

func startEngine(t *testing.T, ctx context.Context, mutate func(*engine.Config)) *engine.Engine {
	t.Helper()

	cfg := engine.DefaultConfig()
	cfg.ServerName = "Integration/1"
	cfg.Prefix = prefix
	cfg.HeartbeatAddress = "127.0.0.1"
	cfg.HeartbeatPort = endpoint.EphemeralPort()
	cfg.EventAddress = "127.0.0.1"
	cfg.EventPort = endpoint.EphemeralPort()
	if mutate != nil {
		mutate(&cfg)
	}

	e, err := engine.New(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Shutdown() })
	return e
}

func subscribe(t *testing.T, ctx context.Context, ep endpoint.Endpoint, topic string) <-chan zmq4.Msg {
	t.Helper()

	sub := zmq4.NewSub(ctx)
	t.Cleanup(func() { sub.Close() })
	require.NoError(t, sub.Dial(ep.String()))
	require.NoError(t, sub.SetOption(zmq4.OptionSubscribe, topic))

	msgs := make(chan zmq4.Msg, 64)
	go func() {
		for {
			msg, err := sub.Recv()
			if err != nil {
				return
			}
			select {
			case msgs <- msg:
			default:
			}
		}
	}()
	return msgs
}

func TestE2E_Heartbeat(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	e := startEngine(t, ctx, func(c *engine.Config) {
		c.Heartbeat = heartbeat.Config{Period: 20 * time.Millisecond, Threshold: 10 * time.Millisecond}
	})
	msgs := subscribe(t, ctx, e.HeartbeatEndpoint(), e.HeartbeatTopic())
	e.StartHeartbeat()

	select {
	case msg := <-msgs:
		d, err := wire.Decode(msg.Frames)
		require.NoError(t, err)
		assert.Equal(t, prefix+"dserver/integration/1.heartbeat", d.Topic)
		assert.Equal(t, wire.HostEndianness(), d.Marker)
		assert.Equal(t, wire.ProtocolVersion, d.Envelope.Version)
	case <-ctx.Done():
		t.Fatal("no heartbeat received")
	}
}

func TestE2E_PublishEvents(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	e := startEngine(t, ctx, nil)
	ev := engine.Event{
		Device:  "sys/tg/1",
		Object:  "Temperature",
		Type:    wire.EventChange,
		Payload: payload.Scalar([]byte("21.5")),
	}
	topic := e.Topic(ev)

	ep, err := e.EnsureEventSocket(ctx)
	require.NoError(t, err)
	msgs := subscribe(t, ctx, ep, topic)

	// Subscriptions propagate asynchronously; publish until one lands.
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	var first *wire.Decoded
	for first == nil {
		select {
		case msg := <-msgs:
			first, err = wire.Decode(msg.Frames)
			require.NoError(t, err)
		case <-ticker.C:
			require.NoError(t, e.Publish(ctx, ev))
		case <-ctx.Done():
			t.Fatal("no event received")
		}
	}
	assert.Equal(t, topic, first.Topic)
	assert.Equal(t, "21.5", string(first.Payload))
	assert.Less(t, first.Envelope.Counter, e.Counter(topic))

	// Once subscribed, every publish arrives with the next counter.
	for len(msgs) > 0 {
		<-msgs
	}
	want := e.Counter(topic)
	wave := make([]byte, 16*1024)
	require.NoError(t, e.Publish(ctx, engine.Event{
		Device:  ev.Device,
		Object:  ev.Object,
		Type:    ev.Type,
		Payload: payload.Array(2048, wave),
	}))
	select {
	case msg := <-msgs:
		d, err := wire.Decode(msg.Frames)
		require.NoError(t, err)
		assert.Equal(t, want, d.Envelope.Counter)
		assert.Len(t, d.Payload, len(wave))
	case <-ctx.Done():
		t.Fatal("large event not received")
	}
}

func TestE2E_ProtocolCapture(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	path := filepath.Join(t.TempDir(), "capture.clog")
	capture, err := log.NewFileLogger(path)
	require.NoError(t, err)

	e := startEngine(t, ctx, func(c *engine.Config) { c.ProtocolLogger = capture })
	_, err = e.PushHeartbeat()
	require.NoError(t, err)
	require.NoError(t, e.Publish(ctx, engine.Event{
		Device:  "sys/tg/1",
		Object:  "state",
		Type:    wire.EventChange,
		Payload: payload.NoData(),
	}))
	require.NoError(t, e.Shutdown())
	require.NoError(t, capture.Close())

	reader, err := log.NewReader(path)
	require.NoError(t, err)
	defer reader.Close()

	var frames, heartbeats, states int
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, e.ID(), event.EngineID)
		switch {
		case event.Frame != nil && strings.HasSuffix(event.Topic, "state.change"):
			frames++
		case event.Heartbeat != nil:
			heartbeats++
		case event.StateChange != nil:
			states++
		}
	}
	assert.Equal(t, 1, frames)
	assert.Equal(t, 1, heartbeats)
	assert.GreaterOrEqual(t, states, 3, "bind, run and shutdown transitions")
}
