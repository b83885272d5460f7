// Package logging provides structured logging for the deployment core.
//
// This package wraps Go's standard log/slog package to provide consistent,
// structured logging across the service.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Configuration
//
// Logging is configured via the LoggingConfig in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("starting service", "client_id", cfg.MQTT.Broker.ClientID)
//	logger.Error("failed to connect", "error", err)
//
// Error entries logged here may contain private diagnostic detail; the
// request dispatcher censors errors before they leave the process, local
// logs do not.
package logging
