package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type Logger struct {
	zl zerolog.Logger
}

type Config struct {
	Level      string    // debug, info, warn, error
	Format     string    // json or console
	Output     string    // stdout, stderr, or file path
	TimeFormat string    // time format for log messages
	Writer     io.Writer // overrides Output when set
}

func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	output := cfg.Writer
	if output == nil {
		if output, err = openOutput(cfg.Output); err != nil {
			return nil, err
		}
	}

	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339Nano
	}
	zerolog.TimeFieldFormat = timeFormat

	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: timeFormat}
	}

	zl := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		CallerWithSkipFrameCount(3).
		Logger()
	return &Logger{zl: zl}, nil
}

func openOutput(out string) (io.Writer, error) {
	switch out {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	f, err := os.OpenFile(out, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("could not open log file: %w", err)
	}
	return f, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

func (l *Logger) Debug(msg string, fields ...Field) { emit(l.zl.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { emit(l.zl.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { emit(l.zl.Warn(), msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { emit(l.zl.Error(), msg, fields) }

func emit(ev *zerolog.Event, msg string, fields []Field) {
	if ev == nil {
		return
	}
	for _, f := range fields {
		f.event(ev)
	}
	ev.Msg(msg)
}

// With returns a child logger that always carries the given fields.
func (l *Logger) With(fields ...Field) *Logger {
	ctx := l.zl.With()
	for _, f := range fields {
		ctx = f.context(ctx)
	}
	return &Logger{zl: ctx.Logger()}
}

// Component tags every entry of the child logger with component=name.
func (l *Logger) Component(name string) *Logger {
	return l.With(String("component", name))
}

// Field is a typed key/value attached to a log entry.
type Field struct {
	event   func(*zerolog.Event)
	context func(zerolog.Context) zerolog.Context
}

func String(key, value string) Field {
	return Field{
		event:   func(e *zerolog.Event) { e.Str(key, value) },
		context: func(c zerolog.Context) zerolog.Context { return c.Str(key, value) },
	}
}

func Strings(key string, value []string) Field {
	return Field{
		event:   func(e *zerolog.Event) { e.Strs(key, value) },
		context: func(c zerolog.Context) zerolog.Context { return c.Strs(key, value) },
	}
}

func Int(key string, value int) Field {
	return Field{
		event:   func(e *zerolog.Event) { e.Int(key, value) },
		context: func(c zerolog.Context) zerolog.Context { return c.Int(key, value) },
	}
}

func Int64(key string, value int64) Field {
	return Field{
		event:   func(e *zerolog.Event) { e.Int64(key, value) },
		context: func(c zerolog.Context) zerolog.Context { return c.Int64(key, value) },
	}
}

func Float64(key string, value float64) Field {
	return Field{
		event:   func(e *zerolog.Event) { e.Float64(key, value) },
		context: func(c zerolog.Context) zerolog.Context { return c.Float64(key, value) },
	}
}

func Bool(key string, value bool) Field {
	return Field{
		event:   func(e *zerolog.Event) { e.Bool(key, value) },
		context: func(c zerolog.Context) zerolog.Context { return c.Bool(key, value) },
	}
}

// Duration logs milliseconds as an integer.
func Duration(key string, value time.Duration) Field {
	return Int64(key, value.Milliseconds())
}

// Error logs under "error". A nil error adds nothing.
func Error(err error) Field {
	return Field{
		event: func(e *zerolog.Event) {
			if err != nil {
				e.Err(err)
			}
		},
		context: func(c zerolog.Context) zerolog.Context {
			if err != nil {
				return c.Err(err)
			}
			return c
		},
	}
}

func Any(key string, value interface{}) Field {
	return Field{
		event:   func(e *zerolog.Event) { e.Interface(key, value) },
		context: func(c zerolog.Context) zerolog.Context { return c.Interface(key, value) },
	}
}
