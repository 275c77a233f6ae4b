// Package logger writes one JSON object per line for the tuition hub
// application layer. Request handlers get a logger carrying the request id
// through the context; command handlers derive component loggers with With.
package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Level is the severity of an entry.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError

	// levelOff silences a logger entirely.
	levelOff
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l Level) String() string {
	if l < LevelDebug || l >= levelOff {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel maps LOG_LEVEL values to a Level. Unknown input means info.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// Field is one key of the entry's "fields" object.
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field      { return Field{Key: key, Value: value} }
func Int(key string, value int) Field     { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field   { return Field{Key: key, Value: value} }
func Any(key string, value any) Field     { return Field{Key: key, Value: value} }

// Err records err under "error". A nil error is recorded as null.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error"}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Duration records d in its String form ("1.5s").
func Duration(key string, d time.Duration) Field {
	return Field{Key: key, Value: d.String()}
}

// LogEntry is the JSON shape of one line.
type LogEntry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Caller    string         `json:"caller,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// sink is shared by a logger and everything derived from it, so lines
// from different request loggers never interleave.
type sink struct {
	mu         sync.Mutex
	w          io.Writer
	addCaller  bool
	callerSkip int
}

// Logger is safe for concurrent use. Derived loggers are cheap.
type Logger struct {
	out    *sink
	level  Level
	fields []Field
}

// Options configures New.
type Options struct {
	Output     io.Writer
	Level      Level
	AddCaller  bool
	CallerSkip int
}

// New creates a logger. A nil Output means stdout.
func New(opts Options) *Logger {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	return &Logger{
		out: &sink{
			w:          opts.Output,
			addCaller:  opts.AddCaller,
			callerSkip: opts.CallerSkip,
		},
		level: opts.Level,
	}
}

// Default logs info and above to stdout with caller information.
func Default() *Logger {
	return New(Options{Level: LevelInfo, AddCaller: true})
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return New(Options{Output: io.Discard, Level: levelOff})
}

// With returns a logger that adds fields to every entry.
func (l *Logger) With(fields ...Field) *Logger {
	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &Logger{out: l.out, level: l.level, fields: merged}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.write(LevelDebug, msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.write(LevelInfo, msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.write(LevelWarn, msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.write(LevelError, msg, fields) }

func (l *Logger) write(level Level, msg string, fields []Field) {
	if level < l.level {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level.String(),
		Message:   msg,
	}
	if l.out.addCaller {
		// write <- Info/Warn/... <- caller
		if _, file, line, ok := runtime.Caller(2 + l.out.callerSkip); ok {
			entry.Caller = fmt.Sprintf("%s:%d", filepath.Base(file), line)
		}
	}
	if n := len(l.fields) + len(fields); n > 0 {
		entry.Fields = make(map[string]any, n)
		for _, f := range l.fields {
			entry.Fields[f.Key] = f.Value
		}
		// Call-site fields win over inherited ones.
		for _, f := range fields {
			entry.Fields[f.Key] = f.Value
		}
	}

	line, err := encode(entry)
	if err != nil {
		// A field value json cannot encode: fall back to its %v form.
		for k, v := range entry.Fields {
			entry.Fields[k] = fmt.Sprint(v)
		}
		if line, err = encode(entry); err != nil {
			return
		}
	}

	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	_, _ = l.out.w.Write(line)
}

func encode(e LogEntry) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTEXT
// ══════════════════════════════════════════════════════════════════════════════

type ctxKey struct{}

// WithContext attaches l to ctx.
func WithContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

var fallback = sync.OnceValue(Default)

// FromContext returns the logger attached to ctx, or a shared default.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return l
	}
	return fallback()
}

// RequestIDKey is the field carrying the HTTP request id.
const RequestIDKey = "request_id"

func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.With(String(RequestIDKey, requestID))
}

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER FIELDS
// ══════════════════════════════════════════════════════════════════════════════

func StudentNo(no string) Field     { return String("student_no", no) }
func Term(term string) Field        { return String("term", term) }
func Amount(v fmt.Stringer) Field   { return String("amount", v.String()) }
func Reference(ref string) Field    { return String("reference", ref) }
func Endpoint(path string) Field    { return String("endpoint", path) }
func Component(name string) Field   { return String("component", name) }
func Operation(name string) Field   { return String("operation", name) }
func Latency(d time.Duration) Field { return Duration("latency", d) }
