// Package logging provides structured logging for the pin core service.
//
// It wraps log/slog so every component logs with the same handler, level
// filtering and default fields (service, version).
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// Usage:
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Component("scheduler").Info("module worker started", "module_id", id)
//
// Never log secrets, tokens, passwords or module claim secrets.
package logging
