package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes captured events to an slog.Logger at Debug level.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter returns an adapter writing to logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("engine_id", event.EngineID),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}
	if event.Endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", event.Endpoint))
	}
	if event.Topic != "" {
		attrs = append(attrs, slog.String("topic", event.Topic))
	}

	switch {
	case event.Frame != nil:
		attrs = append(attrs,
			slog.Int("parts", event.Frame.Parts),
			slog.Int("size", event.Frame.Size),
		)
		if event.Frame.Counter != 0 {
			attrs = append(attrs, slog.Uint64("counter", uint64(event.Frame.Counter)))
		}
		if event.Frame.ZeroCopy {
			attrs = append(attrs, slog.Bool("zero_copy", true))
		}
		if event.Frame.Multicast {
			attrs = append(attrs, slog.Bool("multicast", true))
		}
	case event.Heartbeat != nil:
		attrs = append(attrs,
			slog.Int("sends", event.Heartbeat.Sends),
			slog.Duration("since_last", event.Heartbeat.SinceLast),
		)
	case event.Route != nil:
		attrs = append(attrs,
			slog.String("group", event.Route.Group),
			slog.Bool("local", event.Route.Local),
			slog.Bool("multicast", event.Route.Multicast),
			slog.Bool("double_send", event.Route.DoubleSend),
		)
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "capture", attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
