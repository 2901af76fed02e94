package observability

import (
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// LogConfig selects level and format of the process logger.
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
}

// Logger is a zerolog-backed key-value logger. It satisfies the Logger
// interfaces declared by the kernel, bus and gRPC packages.
type Logger struct {
	zlog zerolog.Logger
}

// NewLogger builds a logger writing to w.
func NewLogger(cfg LogConfig, w io.Writer) *Logger {
	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, NoColor: true}
	}
	zlog := zerolog.New(w).With().Timestamp().Logger().Level(parseLevel(cfg.Level))
	return &Logger{zlog: zlog}
}

// NopLogger discards everything.
func NopLogger() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Component returns a child logger tagged with component.
func (l *Logger) Component(name string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", name).Logger()}
}

// Zerolog exposes the underlying logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}

func (l *Logger) Debug(msg string, keysAndValues ...any) {
	write(l.zlog.Debug(), msg, keysAndValues)
}

func (l *Logger) Info(msg string, keysAndValues ...any) {
	write(l.zlog.Info(), msg, keysAndValues)
}

func (l *Logger) Warn(msg string, keysAndValues ...any) {
	write(l.zlog.Warn(), msg, keysAndValues)
}

func (l *Logger) Error(msg string, keysAndValues ...any) {
	write(l.zlog.Error(), msg, keysAndValues)
}

// write attaches key-value pairs; a dangling key gets a nil value.
func write(ev *zerolog.Event, msg string, kv []any) {
	if ev == nil {
		return
	}
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = "!badkey"
		}
		var val any
		if i+1 < len(kv) {
			val = kv[i+1]
		}
		if err, isErr := val.(error); isErr {
			ev = ev.AnErr(key, err)
			continue
		}
		ev = ev.Interface(key, val)
	}
	ev.Msg(msg)
}
