package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/thomas-kunnumpurath/openfin-solace-sample/internal/infrastructure/config"
)

// serviceName is attached to every entry as the "service" attribute.
const serviceName = "pubsubd"

// Logger is a *slog.Logger carrying pubsubd's service and version fields.
//
// It satisfies the narrow Logger interfaces of the pubsub, mqtt, trust and
// api packages, so one value can be handed to every component. Safe for
// concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds a Logger from the logging section of the configuration.
// Unknown formats fall back to JSON and unknown outputs to stdout.
func New(cfg config.LoggingConfig, version string) *Logger {
	return newWithWriter(outputFor(cfg.Output), cfg, version)
}

// Default is the logger used before the configuration has been read:
// JSON on stdout at info level.
func Default() *Logger {
	return New(config.LoggingConfig{}, "dev")
}

func newWithWriter(w io.Writer, cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	}

	return &Logger{Logger: slog.New(h).With(
		slog.String("service", serviceName),
		slog.String("version", version),
	)}
}

func outputFor(name string) io.Writer {
	if strings.EqualFold(name, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// parseLevel maps a configured level name to slog.Level, case-insensitively.
// Anything unrecognised is info.
func parseLevel(name string) slog.Level {
	if lvl, ok := levels[strings.ToLower(name)]; ok {
		return lvl
	}
	return slog.LevelInfo
}

// With returns a child Logger carrying the extra attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component returns a child logger tagged with component=name.
//
//	logger.Component("mqtt").Info("connected") // component=mqtt
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}
