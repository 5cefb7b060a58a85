package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctlbus/ctlbus-go/pkg/endpoint"
	"github.com/ctlbus/ctlbus-go/pkg/payload"
	"github.com/ctlbus/ctlbus-go/pkg/transport"
)

const sample = `
server_name: PowerSupply/ps1
prefix: ctlbus://host:10000/
hwm: 500
heartbeat:
  port: 5555
  period: 20s
  threshold: 15s
event:
  address: 10.0.0.1
  port: 5556
multicast:
  hops: 2
  rate_kbps: 1000
  interface: eth0
payload:
  array_threshold: 2048
log:
  level: debug
  format: json
`

func TestDefaultIsValidWithServerName(t *testing.T) {
	cfg := Default()
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg.ServerName = "srv/1"
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 10*time.Second, cfg.Heartbeat.Period)
	assert.Equal(t, 8*time.Second, cfg.Heartbeat.Threshold)
	assert.Equal(t, 500*time.Second, cfg.ClientWindow)
	assert.Equal(t, transport.DefaultMulticastRate, cfg.Multicast.RateKbps)
	assert.Equal(t, payload.DefaultEncodedThreshold, cfg.Payload.EncodedThreshold)
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "PowerSupply/ps1", cfg.ServerName)
	assert.Equal(t, 500, cfg.HWM)
	assert.Equal(t, 5555, cfg.Heartbeat.Port)
	assert.Equal(t, 20*time.Second, cfg.Heartbeat.Period)
	assert.Equal(t, "10.0.0.1", cfg.Event.Address)
	assert.Equal(t, 2, cfg.Multicast.Hops)
	assert.Equal(t, "eth0", cfg.Multicast.Interface)
	assert.Equal(t, 2048, cfg.Payload.ArrayThreshold)

	// Keys absent from the file keep their defaults.
	assert.Equal(t, payload.DefaultEncodedThreshold, cfg.Payload.EncodedThreshold)
	assert.Equal(t, 500*time.Second, cfg.ClientWindow)
}

func TestParseUnknownKey(t *testing.T) {
	_, err := Parse([]byte("server_name: x\nbogus: 1\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestApplyEnv(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	err = ApplyEnv(&cfg, map[string]string{
		"CTLBUS_SERVER_NAME":        "Override/1",
		"CTLBUS_HEARTBEAT_PORT":     "6000",
		"CTLBUS_EVENT_PORT":         "6001",
		"CTLBUS_MULTICAST_LOOPBACK": "true",
		"CTLBUS_CLIENT_WINDOW":      "1m",
		"CTLBUS_METRICS_LISTEN":     ":9100",
		"OTHER_PORT":                "1",
	})
	require.NoError(t, err)

	assert.Equal(t, "Override/1", cfg.ServerName)
	assert.Equal(t, 6000, cfg.Heartbeat.Port)
	assert.Equal(t, 6001, cfg.Event.Port)
	assert.True(t, cfg.Multicast.Loopback)
	assert.Equal(t, time.Minute, cfg.ClientWindow)
	assert.Equal(t, ":9100", cfg.Metrics.Listen)

	// Untouched by the environment.
	assert.Equal(t, 20*time.Second, cfg.Heartbeat.Period)
	assert.Equal(t, "10.0.0.1", cfg.Event.Address)
}

func TestApplyEnvInvalidPort(t *testing.T) {
	cfg := Default()
	err := ApplyEnv(&cfg, map[string]string{"CTLBUS_EVENT_PORT": "not-a-port"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Event.Port = 70000 }},
		{"shared port", func(c *Config) { c.Heartbeat.Port, c.Event.Port = 5000, 5000 }},
		{"threshold above period", func(c *Config) { c.Heartbeat.Threshold = time.Minute }},
		{"zero period", func(c *Config) { c.Heartbeat.Period = 0 }},
		{"negative hwm", func(c *Config) { c.HWM = -1 }},
		{"hops", func(c *Config) { c.Multicast.Hops = 300 }},
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.ServerName = "srv"
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestSlogLevel(t *testing.T) {
	level, err := LogConfig{Level: "warn"}.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctlbus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
	t.Setenv("CTLBUS_HEARTBEAT_THRESHOLD", "9s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9*time.Second, cfg.Heartbeat.Threshold)
	assert.Equal(t, 5555, cfg.Heartbeat.Port)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadSkipsValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctlbus.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hwm: 10\n"), 0o600))
	t.Setenv("CTLBUS_SERVER_NAME", "")

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.HWM)

	cfg.ServerName = "from/flag"
	assert.NoError(t, cfg.Validate())
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("CTLBUS_TEST_DOTENV=from-file\n"), 0o600))
	t.Setenv("CTLBUS_TEST_DOTENV", "")
	os.Unsetenv("CTLBUS_TEST_DOTENV")

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("CTLBUS_TEST_DOTENV"))

	assert.Error(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestEngineConfig(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	cfg.Event.Port = 0

	ec := cfg.EngineConfig()
	assert.Equal(t, "PowerSupply/ps1", ec.ServerName)
	assert.Equal(t, endpoint.ExplicitPort(5555), ec.HeartbeatPort)
	assert.Equal(t, endpoint.EphemeralPort(), ec.EventPort)
	assert.Equal(t, "10.0.0.1", ec.EventAddress)
	assert.Equal(t, 15*time.Second, ec.Heartbeat.Threshold)
	assert.Equal(t, transport.MulticastOptions{Hops: 2, RateKbps: 1000, Interface: "eth0"}, ec.Multicast)
	assert.Equal(t, payload.Thresholds{Array: 2048, Encoded: payload.DefaultEncodedThreshold}, ec.Thresholds)
	assert.NoError(t, ec.Validate())
}
