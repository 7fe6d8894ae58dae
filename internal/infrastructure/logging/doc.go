// Package logging provides structured logging for Gray Logic IR Learn.
//
// It wraps log/slog with JSON output for production, text output for
// development, and default service/version fields on every entry.
//
// Logging is configured via the logging section of the config file:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, or a file path
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("capture accepted", "device_id", id, "command", name)
//
// Never log learned codes in full; they can be replayed.
package logging
