package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type recordingLogger struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingLogger) Log(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func TestOrNoop(t *testing.T) {
	if _, ok := OrNoop(nil).(NoopLogger); !ok {
		t.Error("OrNoop(nil) is not NoopLogger")
	}
	rec := &recordingLogger{}
	if OrNoop(rec) != rec {
		t.Error("OrNoop changed a non-nil logger")
	}
}

func TestMultiLoggerFansOut(t *testing.T) {
	a, b := &recordingLogger{}, &recordingLogger{}
	m := NewMultiLogger(a, nil, b)

	m.Log(Event{EngineID: "x"})
	m.Log(Event{EngineID: "y"})

	for i, r := range []*recordingLogger{a, b} {
		if len(r.events) != 2 {
			t.Errorf("logger %d got %d events, want 2", i, len(r.events))
		}
	}
}

func TestSlogAdapter(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		check map[string]any
	}{
		{
			name: "frame",
			event: Event{
				EngineID: "e1", Layer: LayerTransport, Category: CategoryMessage,
				Topic: "dev/attr.change",
				Frame: &FrameEvent{Parts: 4, Size: 256, Counter: 3, Multicast: true},
			},
			check: map[string]any{
				"layer": "TRANSPORT", "topic": "dev/attr.change",
				"size": float64(256), "counter": float64(3), "multicast": true,
			},
		},
		{
			name: "heartbeat",
			event: Event{
				Layer: LayerEngine, Category: CategoryHeartbeat,
				Heartbeat: &HeartbeatEvent{Sends: 2},
			},
			check: map[string]any{"category": "HEARTBEAT", "sends": float64(2)},
		},
		{
			name: "route",
			event: Event{
				Layer: LayerEngine, Category: CategoryRoute,
				Route: &RouteEvent{Group: "udp://239.0.0.1:5000", Local: true, DoubleSend: true},
			},
			check: map[string]any{"group": "udp://239.0.0.1:5000", "local": true, "double_send": true},
		},
		{
			name: "state",
			event: Event{
				Layer: LayerEngine, Category: CategoryState,
				StateChange: &StateChangeEvent{Entity: StateEntitySocket, NewState: "BOUND", Reason: "event"},
			},
			check: map[string]any{"entity": "SOCKET", "new_state": "BOUND", "reason": "event"},
		},
		{
			name: "error",
			event: Event{
				Layer: LayerEngine, Category: CategoryError,
				Error: &ErrorEventData{Layer: LayerTransport, Message: "boom", Context: "publish"},
			},
			check: map[string]any{"error_layer": "TRANSPORT", "error_msg": "boom"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

			tt.event.Timestamp = time.Now()
			NewSlogAdapter(logger).Log(tt.event)

			var entry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("failed to parse log output: %v", err)
			}
			for k, want := range tt.check {
				if entry[k] != want {
					t.Errorf("%s = %v, want %v", k, entry[k], want)
				}
			}
		})
	}
}

func TestSlogAdapterRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	NewSlogAdapter(logger).Log(Event{Category: CategoryMessage})
	if buf.Len() != 0 {
		t.Errorf("expected no output at info level, got %q", buf.String())
	}
}
