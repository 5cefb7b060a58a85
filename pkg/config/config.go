// Package config loads publisher configuration.
//
// Values come from, in increasing precedence: the defaults, a YAML file and
// CTLBUS_-prefixed environment variables. LoadDotEnv can seed the
// environment from a .env file first.
//
//	server_name: powersupply/ps1
//	heartbeat:
//	  port: 5555
//	  period: 10s
//	multicast:
//	  hops: 5
//	  rate_kbps: 81920
//
// Nested keys map to environment variables by joining the section and the
// key, e.g. CTLBUS_HEARTBEAT_PORT or CTLBUS_MULTICAST_RATE_KBPS.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ctlbus/ctlbus-go/pkg/clients"
	"github.com/ctlbus/ctlbus-go/pkg/endpoint"
	"github.com/ctlbus/ctlbus-go/pkg/engine"
	"github.com/ctlbus/ctlbus-go/pkg/heartbeat"
	"github.com/ctlbus/ctlbus-go/pkg/payload"
	"github.com/ctlbus/ctlbus-go/pkg/transport"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "CTLBUS_"

// ErrInvalidConfig indicates a configuration that cannot be used.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the publisher configuration.
type Config struct {
	// ServerName names the server process, e.g. "powersupply/ps1".
	ServerName string `yaml:"server_name" env:"SERVER_NAME"`

	// Prefix is prepended to every topic, e.g. "ctlbus://host:10000/".
	Prefix string `yaml:"prefix" env:"PREFIX"`

	// NoDB marks a server running without a configuration database.
	NoDB bool `yaml:"no_db" env:"NO_DB"`

	// PublishAddress is advertised as an extra alternate endpoint.
	PublishAddress string `yaml:"publish_address" env:"PUBLISH_ADDRESS"`

	// HWM is the publisher high-water mark.
	HWM int `yaml:"hwm" env:"HWM"`

	// ClientWindow is how long a subscriber stays listed after it was
	// last seen.
	ClientWindow time.Duration `yaml:"client_window" env:"CLIENT_WINDOW"`

	Heartbeat HeartbeatConfig `yaml:"heartbeat" envPrefix:"HEARTBEAT_"`
	Event     SocketConfig    `yaml:"event" envPrefix:"EVENT_"`
	Multicast MulticastConfig `yaml:"multicast" envPrefix:"MULTICAST_"`
	Payload   PayloadConfig   `yaml:"payload" envPrefix:"PAYLOAD_"`
	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
	Metrics   MetricsConfig   `yaml:"metrics" envPrefix:"METRICS_"`
	Discovery DiscoveryConfig `yaml:"discovery" envPrefix:"DISCOVERY_"`
}

// SocketConfig pins the address and port of a publish socket.
type SocketConfig struct {
	// Address to bind. Empty binds all interfaces.
	Address string `yaml:"address" env:"ADDRESS"`

	// Port to bind. Zero picks an ephemeral port.
	Port int `yaml:"port" env:"PORT"`
}

// HeartbeatConfig configures the heartbeat socket and timing.
type HeartbeatConfig struct {
	SocketConfig `yaml:",inline"`

	// Period is the interval between liveness checks.
	Period time.Duration `yaml:"period" env:"PERIOD"`

	// Threshold is the minimum time between two heartbeats.
	Threshold time.Duration `yaml:"threshold" env:"THRESHOLD"`
}

// MulticastConfig holds the defaults of multicast routes.
type MulticastConfig struct {
	Hops      int    `yaml:"hops" env:"HOPS"`
	RateKbps  int    `yaml:"rate_kbps" env:"RATE_KBPS"`
	Interface string `yaml:"interface" env:"INTERFACE"`
	Loopback  bool   `yaml:"loopback" env:"LOOPBACK"`
}

// PayloadConfig configures the large-payload thresholds.
type PayloadConfig struct {
	// ArrayThreshold is the element count at which an array is sent
	// without copying.
	ArrayThreshold int `yaml:"array_threshold" env:"ARRAY_THRESHOLD"`

	// EncodedThreshold is the byte count above which an encoded blob is
	// sent without copying.
	EncodedThreshold int `yaml:"encoded_threshold" env:"ENCODED_THRESHOLD"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`

	// Format is "text" or "json".
	Format string `yaml:"format" env:"FORMAT"`

	// ProtocolLog is the path of the CBOR protocol capture. Empty disables it.
	ProtocolLog string `yaml:"protocol_log" env:"PROTOCOL"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the HTTP address serving /metrics. Empty disables it.
	Listen string `yaml:"listen" env:"LISTEN"`
}

// DiscoveryConfig configures mDNS advertisement.
type DiscoveryConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`

	// Instance is the advertised instance name. Defaults to the server name.
	Instance string `yaml:"instance" env:"INSTANCE"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		HWM:          transport.DefaultHWM,
		ClientWindow: clients.DefaultWindow,
		Heartbeat: HeartbeatConfig{
			Period:    heartbeat.DefaultPeriod,
			Threshold: heartbeat.DefaultThreshold,
		},
		Multicast: MulticastConfig{
			Hops:     transport.DefaultMulticastHops,
			RateKbps: transport.DefaultMulticastRate,
		},
		Payload: PayloadConfig{
			ArrayThreshold:   payload.DefaultArrayThreshold,
			EncodedThreshold: payload.DefaultEncodedThreshold,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path (if not empty) over the defaults, applies the process
// environment and validates the result.
func Load(path string) (Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Read is Load without validation, for callers that apply further
// overrides before calling Validate.
func Read(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to open config: %w", err)
		}
		defer f.Close()
		if err := Decode(f, &cfg); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := ApplyEnv(&cfg, nil); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode reads YAML from r into cfg. Keys not present keep their current
// value; unknown keys are an error.
func Decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Parse decodes YAML data over the defaults.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := Decode(bytes.NewReader(data), &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overlays CTLBUS_ variables on cfg. A nil environ reads the
// process environment.
func ApplyEnv(cfg *Config, environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// LoadDotEnv loads variables from the given .env files, or from ".env" when
// none is given, without overriding variables already set. A missing
// default file is not an error.
func LoadDotEnv(paths ...string) error {
	err := godotenv.Load(paths...)
	if err != nil && len(paths) == 0 && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []error
	if c.ServerName == "" {
		errs = append(errs, errors.New("server_name is required"))
	}
	if err := checkPort("heartbeat.port", c.Heartbeat.Port); err != nil {
		errs = append(errs, err)
	}
	if err := checkPort("event.port", c.Event.Port); err != nil {
		errs = append(errs, err)
	}
	if c.Heartbeat.Port != 0 && c.Heartbeat.Port == c.Event.Port {
		errs = append(errs, fmt.Errorf("heartbeat and event share port %d", c.Event.Port))
	}
	if c.Heartbeat.Period <= 0 || c.Heartbeat.Threshold <= 0 {
		errs = append(errs, errors.New("heartbeat period and threshold must be positive"))
	} else if c.Heartbeat.Threshold > c.Heartbeat.Period {
		errs = append(errs, fmt.Errorf("heartbeat threshold %s exceeds period %s", c.Heartbeat.Threshold, c.Heartbeat.Period))
	}
	if c.HWM < 0 {
		errs = append(errs, fmt.Errorf("hwm %d is negative", c.HWM))
	}
	if c.Multicast.Hops < 0 || c.Multicast.Hops > 255 {
		errs = append(errs, fmt.Errorf("multicast.hops %d out of range", c.Multicast.Hops))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format %q is not text or json", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func checkPort(name string, port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("%s %d out of range", name, port)
	}
	return nil
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

func portHint(port int) endpoint.PortHint {
	if port > 0 {
		return endpoint.ExplicitPort(port)
	}
	return endpoint.EphemeralPort()
}

// EngineConfig converts c to an engine configuration. Logger, factory and
// metrics registerer are left for the caller to set.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		ServerName:       c.ServerName,
		Prefix:           c.Prefix,
		NoDB:             c.NoDB,
		HeartbeatAddress: c.Heartbeat.Address,
		HeartbeatPort:    portHint(c.Heartbeat.Port),
		EventAddress:     c.Event.Address,
		EventPort:        portHint(c.Event.Port),
		PublishAddress:   c.PublishAddress,
		Heartbeat: heartbeat.Config{
			Period:    c.Heartbeat.Period,
			Threshold: c.Heartbeat.Threshold,
		},
		HWM: c.HWM,
		Multicast: transport.MulticastOptions{
			Hops:      c.Multicast.Hops,
			RateKbps:  c.Multicast.RateKbps,
			Interface: c.Multicast.Interface,
			Loopback:  c.Multicast.Loopback,
		},
		Thresholds: payload.Thresholds{
			Array:   c.Payload.ArrayThreshold,
			Encoded: c.Payload.EncodedThreshold,
		},
		ClientWindow: c.ClientWindow,
	}
}
