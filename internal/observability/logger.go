package observability

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel     = "MATRIXCTL_LOG_LEVEL"
	EnvLogTimestamp = "MATRIXCTL_LOG_TIMESTAMP"
	EnvLogNoColor   = "MATRIXCTL_LOG_NOCOLOR"
)

// LogConfig controls the console logger.
type LogConfig struct {
	Level     zerolog.Level
	Timestamp bool
	NoColor   bool
}

// DefaultLogConfig is info level with timestamps and color.
func DefaultLogConfig() LogConfig {
	return LogConfig{Level: zerolog.InfoLevel, Timestamp: true}
}

// InitLogger builds the process logger on stdout, applies the environment
// overrides and installs it as the global zerolog logger.
func InitLogger(app string) zerolog.Logger {
	cfg := DefaultLogConfig()
	applyEnvOverrides(&cfg)
	logger := NewLogger(app, os.Stdout, cfg)
	log.Logger = logger
	return logger
}

// NewLogger builds a console logger writing to w.
func NewLogger(app string, w io.Writer, cfg LogConfig) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
		NoColor:    cfg.NoColor,
	}
	ctx := zerolog.New(output).Level(cfg.Level).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	return ctx.Str("app", app).Logger()
}

func applyEnvOverrides(cfg *LogConfig) {
	if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		cfg.Timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

// KVLogger adapts a zerolog.Logger to the key/value Logger interfaces of the
// bootloader and telemetry packages.
type KVLogger struct {
	logger zerolog.Logger
}

// NewKVLogger wraps logger, tagging every entry with component.
func NewKVLogger(logger zerolog.Logger, component string) *KVLogger {
	return &KVLogger{logger: logger.With().Str("component", component).Logger()}
}

func (l *KVLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *KVLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info().Fields(keysAndValues).Msg(msg)
}

func (l *KVLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}
