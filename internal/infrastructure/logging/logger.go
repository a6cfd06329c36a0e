package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/glovelink/glove-core/internal/infrastructure/config"
)

// serviceName tags every log line so glovecore output can be filtered
// out of a shared log stream.
const serviceName = "glovecore"

// Logger wraps slog.Logger so components can derive scoped loggers
// without importing slog everywhere. Safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds a logger from the logging section of config.yaml.
//
// Parameters:
//   - cfg: Logging configuration (level, format, output)
//   - version: Application version, attached to every line
//
// Returns:
//   - *Logger: Configured logger ready for use
func New(cfg config.LoggingConfig, version string) *Logger {
	var output io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		output = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler)}
}

// parseLevel maps a config string onto a slog.Level. Unrecognised
// values fall back to info rather than failing startup.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a child logger carrying extra default attributes.
//
// Example:
//
//	ingestLog := logger.With("component", "telemetry")
//	ingestLog.Info("event stored") // includes component=telemetry
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default returns a JSON stdout logger at info level for the window
// between process start and config load.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}
