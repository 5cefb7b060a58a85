// Command ctlbus-publisher runs an event publishing engine.
//
// It binds the heartbeat socket, emits heartbeats, optionally publishes
// simulated events and exposes Prometheus metrics and mDNS discovery.
//
// Usage:
//
//	ctlbus-publisher [flags]
//
// Flags:
//
//	-config string        Configuration file path (YAML)
//	-env-file string      Dotenv file loaded before the environment is read
//	-server-name string   Server name, overrides the configuration
//	-log-level string     Log level: debug, info, warn, error
//	-log-format string    Log format: text, json
//	-protocol-log string  Write a CBOR capture of every frame to this file
//	-metrics string       Address serving /metrics, e.g. :9100
//	-simulate             Publish synthetic change events
//	-interactive          Start the command console
//
// Every setting can also be given as CTLBUS_* environment variable, e.g.
// CTLBUS_HEARTBEAT_PORT or CTLBUS_LOG_LEVEL.
//
// Examples:
//
//	# Start with a config file and a console
//	ctlbus-publisher -config /etc/ctlbus/publisher.yaml -interactive
//
//	# Publish simulated events and capture them
//	ctlbus-publisher -server-name sim/1 -simulate -protocol-log sim.clog
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/ctlbus/ctlbus-go/cmd/ctlbus-publisher/console"
	"github.com/ctlbus/ctlbus-go/pkg/config"
	"github.com/ctlbus/ctlbus-go/pkg/discovery"
	"github.com/ctlbus/ctlbus-go/pkg/engine"
	"github.com/ctlbus/ctlbus-go/pkg/log"
)

// Options holds the command-line flags.
type Options struct {
	ConfigFile  string
	EnvFile     string
	ServerName  string
	LogLevel    string
	LogFormat   string
	ProtocolLog string
	Metrics     string
	Simulate    bool
	Interactive bool
}

var opts Options

func init() {
	flag.StringVar(&opts.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&opts.EnvFile, "env-file", "", "Dotenv file loaded before the environment is read (default .env if present)")
	flag.StringVar(&opts.ServerName, "server-name", "", "Server name, overrides the configuration")
	flag.StringVar(&opts.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&opts.LogFormat, "log-format", "", "Log format: text, json")
	flag.StringVar(&opts.ProtocolLog, "protocol-log", "", "Write a CBOR capture of every frame to this file")
	flag.StringVar(&opts.Metrics, "metrics", "", "Address serving /metrics, e.g. :9100")
	flag.BoolVar(&opts.Simulate, "simulate", false, "Publish synthetic change events")
	flag.BoolVar(&opts.Interactive, "interactive", false, "Start the command console")
}

func main() {
	flag.Parse()

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(2)
	}

	if err := run(cfg, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig merges defaults, the config file, the environment and the
// flags, in that order.
func loadConfig(o Options) (config.Config, error) {
	if o.EnvFile != "" {
		if err := config.LoadDotEnv(o.EnvFile); err != nil {
			return config.Config{}, err
		}
	} else if err := config.LoadDotEnv(); err != nil {
		return config.Config{}, err
	}

	cfg, err := config.Read(o.ConfigFile)
	if err != nil {
		return config.Config{}, err
	}

	if o.ServerName != "" {
		cfg.ServerName = o.ServerName
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		cfg.Log.Format = o.LogFormat
	}
	if o.ProtocolLog != "" {
		cfg.Log.ProtocolLog = o.ProtocolLog
	}
	if o.Metrics != "" {
		cfg.Metrics.Listen = o.Metrics
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	hopts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts)), nil
	}
	return slog.New(slog.NewTextHandler(w, hopts)), nil
}

// switchWriter is an io.Writer whose target can be replaced while in use.
type switchWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// Set replaces the target.
func (s *switchWriter) Set(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = w
}

func run(cfg config.Config, o Options) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logOut := &switchWriter{w: os.Stderr}
	logger, err := newLogger(cfg.Log, logOut)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	protocol := []log.Logger{log.NewSlogAdapter(logger)}
	if cfg.Log.ProtocolLog != "" {
		capture, err := log.NewFileLogger(cfg.Log.ProtocolLog)
		if err != nil {
			return fmt.Errorf("failed to open protocol log: %w", err)
		}
		defer capture.Close()
		protocol = append(protocol, capture)
		logger.Info("capturing protocol events", "path", cfg.Log.ProtocolLog)
	}

	ecfg := cfg.EngineConfig()
	ecfg.Logger = logger
	ecfg.Registerer = registry
	ecfg.ProtocolLogger = log.NewMultiLogger(protocol...)

	eng, err := engine.New(ctx, ecfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := eng.Shutdown(); err != nil {
			logger.Warn("shutdown", "error", err)
		}
	}()
	eng.StartHeartbeat()

	logger.Info("publisher running",
		"server", cfg.ServerName,
		"engine_id", eng.ID(),
		"heartbeat", eng.HeartbeatEndpoint().String(),
		"topic", eng.HeartbeatTopic())

	var con *console.Console
	if o.Interactive {
		if con, err = console.New(eng); err != nil {
			return err
		}
		// Route log output through readline so it does not garble the prompt.
		logOut.Set(con.Stdout())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if cfg.Metrics.Listen != "" {
		srv := newHTTPServer(cfg.Metrics.Listen, registry, eng, logger)
		g.Go(func() error { return srv.Run(gctx) })
	}

	if cfg.Discovery.Enabled {
		adv := discovery.NewMDNSAdvertiser(discovery.AdvertiserConfig{
			Interface: cfg.Multicast.Interface,
			TTL:       discovery.DefaultTTL,
		})
		g.Go(func() error { return advertise(gctx, adv, eng, cfg.Discovery.Instance, logger) })
	}

	if o.Simulate {
		sim := newSimulation(eng, logger)
		g.Go(func() error { return sim.Run(gctx) })
	}

	if con != nil {
		g.Go(func() error {
			con.Run(gctx)
			stop()
			return nil
		})
	}

	err = g.Wait()
	logger.Info("shutting down")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
