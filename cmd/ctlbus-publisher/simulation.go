package main

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/ctlbus/ctlbus-go/pkg/engine"
	"github.com/ctlbus/ctlbus-go/pkg/payload"
	"github.com/ctlbus/ctlbus-go/pkg/wire"
)

const (
	simInterval  = 2 * time.Second
	simDevice    = "sim/generator/1"
	simWaveform  = 2048 // samples, above the default array threshold
	simWaveEvery = 5    // ticks between waveform events
)

// simulation publishes a temperature reading on every tick and a large
// waveform array every few ticks, exercising both the copied and the
// zero-copy path.
type simulation struct {
	pub    publisher
	logger *slog.Logger
	wave   []byte
}

type publisher interface {
	Publish(ctx context.Context, ev engine.Event) error
}

func newSimulation(pub publisher, logger *slog.Logger) *simulation {
	return &simulation{
		pub:    pub,
		logger: logger,
		wave:   make([]byte, simWaveform*8),
	}
}

// Run publishes until ctx is done.
func (s *simulation) Run(ctx context.Context) error {
	s.logger.Info("simulation started", "device", simDevice)

	ticker := time.NewTicker(simInterval)
	defer ticker.Stop()

	for tick := 0; ; tick++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if err := s.step(ctx, tick); err != nil {
			if errors.Is(err, engine.ErrShutdown) || ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("simulated publish failed", "error", err)
		}
	}
}

func (s *simulation) step(ctx context.Context, tick int) error {
	temp := 20 + 5*math.Sin(float64(tick)/10)
	err := s.pub.Publish(ctx, engine.Event{
		Device:  simDevice,
		Object:  "temperature",
		Type:    wire.EventChange,
		Payload: payload.Scalar(binary.LittleEndian.AppendUint64(nil, math.Float64bits(temp))),
	})
	if err != nil || tick%simWaveEvery != 0 {
		return err
	}

	// The buffer is reused; Publish returns only after the sockets released it.
	for i := range simWaveform {
		v := math.Sin(2 * math.Pi * float64(i+tick) / 64)
		binary.LittleEndian.PutUint64(s.wave[i*8:], math.Float64bits(v))
	}
	return s.pub.Publish(ctx, engine.Event{
		Device:  simDevice,
		Object:  "waveform",
		Type:    wire.EventPeriodic,
		Payload: payload.Array(simWaveform, s.wave),
	})
}
