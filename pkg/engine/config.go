package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ctlbus/ctlbus-go/pkg/clients"
	"github.com/ctlbus/ctlbus-go/pkg/endpoint"
	"github.com/ctlbus/ctlbus-go/pkg/heartbeat"
	"github.com/ctlbus/ctlbus-go/pkg/log"
	"github.com/ctlbus/ctlbus-go/pkg/payload"
	"github.com/ctlbus/ctlbus-go/pkg/transport"
)

// Default environment variables holding fixed ports.
const (
	HeartbeatPortEnv = "CTLBUS_HEARTBEAT_PORT"
	EventPortEnv     = "CTLBUS_EVENT_PORT"
)

// Config configures an Engine.
type Config struct {
	// ServerName names the server process; it forms the heartbeat topic.
	ServerName string

	// Prefix is the fully-qualified host prefix of every topic,
	// e.g. "ctlbus://host:10000/".
	Prefix string

	// NoDB marks a server running without a configuration database.
	NoDB bool

	// HeartbeatAddress pins the heartbeat socket address. Empty binds all
	// interfaces.
	HeartbeatAddress string

	// HeartbeatPort selects the heartbeat port.
	HeartbeatPort endpoint.PortHint

	// EventAddress pins the event socket address. Empty binds all interfaces.
	EventAddress string

	// EventPort selects the event port.
	EventPort endpoint.PortHint

	// PublishAddress is advertised as an extra alternate of both endpoints.
	PublishAddress string

	// Heartbeat configures heartbeat timing.
	Heartbeat heartbeat.Config

	// HWM is the publisher high-water mark used by the default factory.
	HWM int

	// Multicast holds the defaults of new multicast sockets.
	Multicast transport.MulticastOptions

	// Thresholds decides which payloads take the zero-copy path.
	Thresholds payload.Thresholds

	// ClientWindow is how long a subscriber stays listed after it was last
	// seen.
	ClientWindow time.Duration

	// Factory creates sockets. If nil, a ZeroMQ factory is used.
	Factory transport.Factory

	// Resolver binds sockets. If nil, endpoint.NewResolver is used with
	// PublishAddress.
	Resolver *endpoint.Resolver

	// Registerer receives the engine metrics. If nil, metrics are disabled.
	Registerer prometheus.Registerer

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger receives captured frames and state changes.
	// If nil, nothing is captured.
	ProtocolLogger log.Logger
}

// DefaultConfig returns a configuration with the default timing, limits and
// port environment variables.
func DefaultConfig() Config {
	return Config{
		HeartbeatPort: endpoint.PortFromEnv(HeartbeatPortEnv),
		EventPort:     endpoint.PortFromEnv(EventPortEnv),
		Heartbeat:     heartbeat.DefaultConfig(),
		HWM:           transport.DefaultHWM,
		Multicast: transport.MulticastOptions{
			Hops:     transport.DefaultMulticastHops,
			RateKbps: transport.DefaultMulticastRate,
		},
		Thresholds:   payload.DefaultThresholds(),
		ClientWindow: clients.DefaultWindow,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.ServerName == "" {
		return fmt.Errorf("%w: server name is required", ErrInvalidConfig)
	}
	if c.HWM < 0 {
		return fmt.Errorf("%w: negative HWM %d", ErrInvalidConfig, c.HWM)
	}
	if c.Multicast.Hops < 0 || c.Multicast.Hops > 255 {
		return fmt.Errorf("%w: multicast hops %d out of range", ErrInvalidConfig, c.Multicast.Hops)
	}
	if c.Heartbeat.Threshold > 0 && c.Heartbeat.Period > 0 && c.Heartbeat.Threshold > c.Heartbeat.Period {
		return fmt.Errorf("%w: heartbeat threshold %s exceeds period %s",
			ErrInvalidConfig, c.Heartbeat.Threshold, c.Heartbeat.Period)
	}
	return nil
}
