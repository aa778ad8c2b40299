package logger

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Level is the logging level.
type Level int

const (
	TraceLevel Level = iota
	DebugLevel
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case TraceLevel:
		return "trace"
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	default:
		return "info"
	}
}

// ParseLevel parses a level name; unknown names map to InfoLevel.
func ParseLevel(level string) Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return TraceLevel
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error", "err":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func (l Level) toZerolog() zerolog.Level {
	switch l {
	case TraceLevel:
		return zerolog.TraceLevel
	case DebugLevel:
		return zerolog.DebugLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Format is the output encoding.
type Format int

const (
	ConsoleFormat Format = iota
	JSONFormat
)

// ParseFormat parses a format name; anything but "json" is console.
func ParseFormat(format string) Format {
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return JSONFormat
	}
	return ConsoleFormat
}

// Field is a typed structured-logging field.
type Field interface {
	apply(e *zerolog.Event) *zerolog.Event
	context(c zerolog.Context) zerolog.Context
}

type (
	stringField struct {
		key, value string
	}
	stringsField struct {
		key   string
		value []string
	}
	intField struct {
		key   string
		value int64
	}
	floatField struct {
		key   string
		value float64
	}
	boolField struct {
		key   string
		value bool
	}
	durationField struct {
		key   string
		value time.Duration
	}
	timeField struct {
		key   string
		value time.Time
	}
	errField struct {
		value error
	}
	anyField struct {
		key   string
		value any
	}
)

func String(key, value string) Field             { return stringField{key, value} }
func Strings(key string, value []string) Field   { return stringsField{key, value} }
func Int(key string, value int) Field            { return intField{key, int64(value)} }
func Int64(key string, value int64) Field        { return intField{key, value} }
func Float64(key string, value float64) Field    { return floatField{key, value} }
func Bool(key string, value bool) Field          { return boolField{key, value} }
func Duration(key string, v time.Duration) Field { return durationField{key, v} }
func Time(key string, value time.Time) Field     { return timeField{key, value} }
func Err(value error) Field                      { return errField{value} }
func Any(key string, value any) Field            { return anyField{key, value} }

func (f stringField) apply(e *zerolog.Event) *zerolog.Event      { return e.Str(f.key, f.value) }
func (f stringField) context(c zerolog.Context) zerolog.Context  { return c.Str(f.key, f.value) }
func (f stringsField) apply(e *zerolog.Event) *zerolog.Event     { return e.Strs(f.key, f.value) }
func (f stringsField) context(c zerolog.Context) zerolog.Context { return c.Strs(f.key, f.value) }
func (f intField) apply(e *zerolog.Event) *zerolog.Event         { return e.Int64(f.key, f.value) }
func (f intField) context(c zerolog.Context) zerolog.Context     { return c.Int64(f.key, f.value) }
func (f floatField) apply(e *zerolog.Event) *zerolog.Event       { return e.Float64(f.key, f.value) }
func (f floatField) context(c zerolog.Context) zerolog.Context   { return c.Float64(f.key, f.value) }
func (f boolField) apply(e *zerolog.Event) *zerolog.Event        { return e.Bool(f.key, f.value) }
func (f boolField) context(c zerolog.Context) zerolog.Context    { return c.Bool(f.key, f.value) }
func (f durationField) apply(e *zerolog.Event) *zerolog.Event    { return e.Dur(f.key, f.value) }
func (f durationField) context(c zerolog.Context) zerolog.Context {
	return c.Dur(f.key, f.value)
}
func (f timeField) apply(e *zerolog.Event) *zerolog.Event     { return e.Time(f.key, f.value) }
func (f timeField) context(c zerolog.Context) zerolog.Context { return c.Time(f.key, f.value) }
func (f errField) apply(e *zerolog.Event) *zerolog.Event      { return e.Err(f.value) }
func (f errField) context(c zerolog.Context) zerolog.Context  { return c.AnErr("error", f.value) }
func (f anyField) apply(e *zerolog.Event) *zerolog.Event      { return e.Interface(f.key, f.value) }
func (f anyField) context(c zerolog.Context) zerolog.Context  { return c.Interface(f.key, f.value) }

// Logger is the logging interface used across the gateway.
type Logger interface {
	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// WithSubsystem returns a child logger tagged with module=<parent>.<name>.
	WithSubsystem(name string) Logger

	// With returns a child logger carrying the given fields on every entry.
	With(fields ...Field) Logger

	Enabled(level Level) bool

	// Close releases file outputs, if any.
	Close() error
}
