package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/ctlbus/ctlbus-go/pkg/log"
)

// Stats holds aggregate statistics about a capture file.
type Stats struct {
	TotalEvents      int
	EventsByLayer    map[log.Layer]int
	EventsByCategory map[log.Category]int
	Topics           map[string]*TopicStats
	Heartbeats       int
	DoubleSends      int
	Errors           int
	TimeRange        struct {
		Start time.Time
		End   time.Time
	}
}

// TopicStats holds statistics for a single event topic.
type TopicStats struct {
	Frames      int
	Bytes       int
	ZeroCopy    int
	Multicast   int
	LastCounter uint32
}

// RunStats analyzes the capture file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByLayer:    make(map[log.Layer]int),
		EventsByCategory: make(map[log.Category]int),
		Topics:           make(map[string]*TopicStats),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}

	printStats(w, stats)
	return nil
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	switch {
	case event.Frame != nil && event.Category == log.CategoryMessage:
		ts, ok := s.Topics[event.Topic]
		if !ok {
			ts = &TopicStats{}
			s.Topics[event.Topic] = ts
		}
		ts.Frames++
		ts.Bytes += event.Frame.Size
		if event.Frame.ZeroCopy {
			ts.ZeroCopy++
		}
		if event.Frame.Multicast {
			ts.Multicast++
		}
		if event.Frame.Counter > ts.LastCounter {
			ts.LastCounter = event.Frame.Counter
		}
	case event.Heartbeat != nil:
		s.Heartbeats++
		if event.Heartbeat.Sends > 1 {
			s.DoubleSends++
		}
	case event.Error != nil:
		s.Errors++
	}
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Event Capture Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerWire, log.LayerEngine} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for c := log.CategoryMessage; c <= log.CategoryError; c++ {
		if count := stats.EventsByCategory[c]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", c.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	if stats.Heartbeats > 0 {
		fmt.Fprintf(w, "Heartbeats: %d (%d doubled)\n", stats.Heartbeats, stats.DoubleSends)
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Topics: %d\n", len(stats.Topics))
	if len(stats.Topics) > 0 {
		names := make([]string, 0, len(stats.Topics))
		for name := range stats.Topics {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Fprintln(w)
		for _, name := range names {
			ts := stats.Topics[name]
			fmt.Fprintf(w, "  %s\n", name)
			fmt.Fprintf(w, "           %d frames, %d bytes, last counter %d\n", ts.Frames, ts.Bytes, ts.LastCounter)
			if ts.ZeroCopy > 0 || ts.Multicast > 0 {
				fmt.Fprintf(w, "           zero-copy %d, multicast %d\n", ts.ZeroCopy, ts.Multicast)
			}
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
