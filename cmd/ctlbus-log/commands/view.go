// Package commands implements the ctlbus-log CLI commands.
package commands

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/ctlbus/ctlbus-go/pkg/log"
)

// ViewFilter specifies criteria for filtering events in the view command.
type ViewFilter struct {
	Layer       *log.Layer
	Category    *log.Category
	TopicPrefix string
}

// RunView reads the capture file and writes every matching event to w.
func RunView(path string, filter ViewFilter, w io.Writer) error {
	reader, err := log.NewFilteredReader(path, log.Filter{
		Layer:       filter.Layer,
		Category:    filter.Category,
		TopicPrefix: filter.TopicPrefix,
	})
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(w, event)
	}
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// timestamp [engine:id] LAYER Type
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	fmt.Fprintf(w, "%s [engine:%s] %s %s\n", ts, shortenID(event.EngineID), event.Layer.String(), typeLabel(event))

	if event.Topic != "" {
		fmt.Fprintf(w, "  Topic: %s\n", event.Topic)
	}
	if event.Endpoint != "" {
		fmt.Fprintf(w, "  Endpoint: %s\n", event.Endpoint)
	}

	switch {
	case event.Frame != nil:
		formatFrameDetails(w, event.Frame)
	case event.Heartbeat != nil:
		fmt.Fprintf(w, "  Sends: %d\n", event.Heartbeat.Sends)
		if event.Heartbeat.SinceLast > 0 {
			fmt.Fprintf(w, "  Since last: %s\n", event.Heartbeat.SinceLast)
		}
	case event.Route != nil:
		formatRouteDetails(w, event.Route)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Error != nil:
		fmt.Fprintf(w, "  Error: %s\n", event.Error.Message)
		if event.Error.Context != "" {
			fmt.Fprintf(w, "  Context: %s\n", event.Error.Context)
		}
	}

	fmt.Fprintln(w)
}

func typeLabel(event log.Event) string {
	switch {
	case event.Frame != nil:
		return "Frame"
	case event.Heartbeat != nil:
		return "Heartbeat"
	case event.Route != nil:
		return "Route"
	case event.StateChange != nil:
		return "State"
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

// shortenID returns the first 8 characters of an engine ID.
func shortenID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatFrameDetails(w io.Writer, frame *log.FrameEvent) {
	fmt.Fprintf(w, "  Parts: %d  Size: %d bytes\n", frame.Parts, frame.Size)
	if frame.Counter != 0 {
		fmt.Fprintf(w, "  Counter: %d\n", frame.Counter)
	}
	if frame.ZeroCopy || frame.Multicast {
		fmt.Fprintf(w, "  Flags:%s%s\n", mark(frame.ZeroCopy, " zero-copy"), mark(frame.Multicast, " multicast"))
	}
	if len(frame.Data) > 0 {
		fmt.Fprintf(w, "  Data: %s", hex.EncodeToString(frame.Data))
		if frame.Truncated {
			fmt.Fprintf(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

func formatRouteDetails(w io.Writer, route *log.RouteEvent) {
	if route.Group != "" {
		fmt.Fprintf(w, "  Group: %s\n", route.Group)
	}
	fmt.Fprintf(w, "  Local: %t  Multicast: %t  DoubleSend: %t\n", route.Local, route.Multicast, route.DoubleSend)
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	old := sc.OldState
	if old == "" {
		old = "-"
	}
	fmt.Fprintf(w, "  %s: %s -> %s\n", sc.Entity.String(), old, sc.NewState)
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func mark(set bool, s string) string {
	if set {
		return s
	}
	return ""
}
