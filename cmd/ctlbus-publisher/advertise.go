package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/ctlbus/ctlbus-go/pkg/discovery"
	"github.com/ctlbus/ctlbus-go/pkg/engine"
	"github.com/ctlbus/ctlbus-go/pkg/wire"
)

// endpointPoll is how often the advertiser checks for the event socket.
const endpointPoll = time.Second

func publisherInfo(eng *engine.Engine, instance string) *discovery.PublisherInfo {
	hb := eng.HeartbeatEndpoint()
	info := &discovery.PublisherInfo{
		Instance:          instance,
		ServerName:        eng.ServerName(),
		HeartbeatEndpoint: hb.String(),
		HeartbeatTopic:    eng.HeartbeatTopic(),
		ProtocolVersion:   int(wire.ProtocolVersion),
		EngineID:          eng.ID(),
		Port:              hb.Port,
	}
	if ev, ok := eng.EventEndpoint(); ok {
		info.EventEndpoint = ev.String()
	}
	return info
}

// advertise announces eng over mDNS until ctx is done. The event endpoint
// is added to the TXT records once the event socket exists.
func advertise(ctx context.Context, adv discovery.Advertiser, eng *engine.Engine, instance string, logger *slog.Logger) error {
	info := publisherInfo(eng, instance)
	if err := adv.Advertise(ctx, info); err != nil {
		// Discovery is optional; the publisher keeps running without it.
		logger.Warn("mDNS advertisement failed", "error", err)
		return nil
	}
	defer adv.Stop()
	logger.Info("advertising publisher", "instance", discovery.InstanceName(info))

	ticker := time.NewTicker(endpointPoll)
	defer ticker.Stop()

	for info.EventEndpoint == "" {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if ev, ok := eng.EventEndpoint(); ok {
				info.EventEndpoint = ev.String()
				if err := adv.Update(info); err != nil {
					logger.Warn("mDNS update failed", "error", err)
				}
			}
		}
	}

	<-ctx.Done()
	return nil
}
