package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a zerolog logger with an optional error collector. The level is
// per instance; nothing here touches zerolog globals except the time format.
type Logger struct {
	zl        zerolog.Logger
	collector *LogCollector
}

type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json or console
	Output     string // stdout, stderr, or file path
	TimeFormat string
}

func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	out, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}

	tf := cfg.TimeFormat
	if tf == "" {
		tf = time.RFC3339Nano
	}
	zerolog.TimeFieldFormat = tf

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: tf}
	}

	zl := zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		CallerWithSkipFrameCount(3).
		Logger()
	return &Logger{zl: zl}, nil
}

func openOutput(dest string) (io.Writer, error) {
	switch dest {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	f, err := os.OpenFile(dest, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.write(l.zl.Debug(), msg, fields) }

func (l *Logger) Info(msg string, fields ...Field) { l.write(l.zl.Info(), msg, fields) }

func (l *Logger) Warn(msg string, fields ...Field) { l.write(l.zl.Warn(), msg, fields) }

// Error logs and, with a collector attached, aggregates the entry.
func (l *Logger) Error(msg string, fields ...Field) {
	l.write(l.zl.Error(), msg, fields)
	l.collect("error", msg, fields)
}

func (l *Logger) write(e *zerolog.Event, msg string, fields []Field) {
	if e == nil {
		return
	}
	for _, f := range fields {
		f.AddTo(e)
	}
	e.Msg(msg)
}

func (l *Logger) collect(level, msg string, fields []Field) {
	if l.collector == nil {
		return
	}
	caller := "unknown"
	// collect <- Error <- caller
	if _, file, line, ok := runtime.Caller(2); ok {
		caller = filepath.Base(filepath.Dir(file)) + "/" + filepath.Base(file) + ":" + strconv.Itoa(line)
	}
	kv := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		k, v := f.GetKeyValue()
		kv[k] = v
	}
	l.collector.AddLog(level, msg, kv, caller)
}

// AddCollector attaches an error collector, replacing any previous one.
func (l *Logger) AddCollector(config *CollectionConfig) {
	if l.collector != nil {
		l.collector.Close()
	}
	l.collector = NewLogCollector(config)
}

// RemoveCollector flushes and detaches the collector.
func (l *Logger) RemoveCollector() {
	if l.collector != nil {
		l.collector.Close()
		l.collector = nil
	}
}

// RecentErrors returns aggregated error logs seen by the collector, newest
// first. It is empty when no collector is attached.
func (l *Logger) RecentErrors(limit int) []AggregatedLogEntry {
	if l.collector == nil {
		return nil
	}
	return l.collector.Recent(limit)
}

// Field is one structured key/value pair.
type Field interface {
	AddTo(event *zerolog.Event)
	GetKeyValue() (string, interface{})
}

type field struct {
	key string
	val interface{}
	add func(e *zerolog.Event)
}

func (f field) AddTo(e *zerolog.Event)             { f.add(e) }
func (f field) GetKeyValue() (string, interface{}) { return f.key, f.val }

func String(key, v string) Field {
	return field{key, v, func(e *zerolog.Event) { e.Str(key, v) }}
}

func Int(key string, v int) Field {
	return field{key, v, func(e *zerolog.Event) { e.Int(key, v) }}
}

func Int64(key string, v int64) Field {
	return field{key, v, func(e *zerolog.Event) { e.Int64(key, v) }}
}

func Float64(key string, v float64) Field {
	return field{key, v, func(e *zerolog.Event) { e.Float64(key, v) }}
}

func Bool(key string, v bool) Field {
	return field{key, v, func(e *zerolog.Event) { e.Bool(key, v) }}
}

// Duration is logged in whole milliseconds.
func Duration(key string, v time.Duration) Field {
	ms := v.Milliseconds()
	return field{key, ms, func(e *zerolog.Event) { e.Int64(key, ms) }}
}

func Strings(key string, v []string) Field {
	joined := strings.Join(v, ", ")
	return field{key, joined, func(e *zerolog.Event) { e.Strs(key, v) }}
}

func Any(key string, v interface{}) Field {
	return field{key, v, func(e *zerolog.Event) { e.Interface(key, v) }}
}

// Error is keyed "error"; a nil error logs nothing.
func Error(err error) Field {
	if err == nil {
		return field{"error", nil, func(*zerolog.Event) {}}
	}
	return field{"error", err.Error(), func(e *zerolog.Event) { e.Err(err) }}
}
