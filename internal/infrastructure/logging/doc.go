// Package logging is the slog wrapper used across Glove Core.
//
// Every line carries service and version attributes, and components
// derive scoped loggers with With("component", ...). Format, level and
// destination come from the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("api server started", "port", cfg.API.Port)
//
// Passwords, JWT secrets and broker credentials never go into log
// attributes. The admin seed logs its generated password exactly once,
// on first boot, which is the one deliberate exception.
package logging
