// Package log records a machine-readable trace of what the publisher puts
// on the bus.
//
// Protocol capture is separate from operational logging (slog). Every frame
// handed to a socket, every heartbeat, route declaration and socket state
// change can be captured as an Event and written to one or more Loggers:
//
//	// Console during development
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// Binary capture for offline analysis
//	fl, _ := log.NewFileLogger("/var/log/ctlbus/publisher.clog")
//	cfg.ProtocolLogger = log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// # File Format
//
// Capture files are a plain stream of CBOR-encoded events with integer keys
// (.clog). The ctlbus-log tool views and summarises them.
package log
