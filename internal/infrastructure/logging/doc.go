// Package logging provides structured logging for the pub/sub client.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Console output for terminals (coloured, one line per entry)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text, console
//	  output: "stderr"   # stderr, stdout, discard
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	s, err := session.Connect(ctx, t, addr, &session.ConnectOptions{
//	    Logger: logger.Component("session"),
//	})
//
// # Security
//
// Never log broker passwords or message payloads that may carry secrets.
package logging
