// Package logger provides structured logging on top of logrus.
// It sets up a JSON (or text) formatter with service-level context, optional
// file rotation through lumberjack, and trace ID propagation through
// context.Context.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Fields is an alias of logrus.Fields so callers do not import logrus directly.
type Fields = logrus.Fields

// Entry is the logging handle passed around by components.
type Entry = logrus.Entry

type ctxKey string

const traceIDKey ctxKey = "trace_id"

var (
	mu   sync.RWMutex
	root = newLogger()
	base = root.WithField("service", "crypto-scout-collector")
)

// Options configures the process-wide logger.
type Options struct {
	Service string
	Level   string // trace, debug, info, warn, error
	Format  string // json or text
	Output  string // stdout, stderr or a file path
	MaxAge  int    // days to keep rotated files; 0 disables rotation
}

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(jsonFormatter())
	return l
}

func callerPrettyfier(f *runtime.Frame) (string, string) {
	return "", fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
}

func jsonFormatter() logrus.Formatter {
	return &logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "ts",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "msg",
		},
		CallerPrettyfier: callerPrettyfier,
	}
}

// Init configures the process-wide logger and returns the root entry with the
// service name attached. LOG_LEVEL in the environment wins over opts.Level.
func Init(opts Options) (*Entry, error) {
	level := opts.Level
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		level = env
	}
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("logger: invalid level %q", level)
	}

	l := logrus.New()
	l.SetLevel(lvl)
	l.SetReportCaller(lvl >= logrus.DebugLevel)

	switch opts.Format {
	case "", "json":
		l.SetFormatter(jsonFormatter())
	case "text":
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:    true,
			TimestampFormat:  time.RFC3339,
			CallerPrettyfier: callerPrettyfier,
		})
	default:
		return nil, fmt.Errorf("logger: invalid format %q", opts.Format)
	}

	out, err := openOutput(opts.Output, opts.MaxAge)
	if err != nil {
		return nil, err
	}
	l.SetOutput(out)

	service := opts.Service
	if service == "" {
		service = "crypto-scout-collector"
	}

	mu.Lock()
	root = l
	base = l.WithField("service", service)
	mu.Unlock()
	return base, nil
}

func openOutput(output string, maxAge int) (io.Writer, error) {
	switch output {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return nil, fmt.Errorf("logger: create log dir: %w", err)
	}
	if maxAge > 0 {
		return &lumberjack.Logger{
			Filename: output,
			MaxAge:   maxAge,
			MaxSize:  100,
			Compress: true,
		}, nil
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logger: open %s: %w", output, err)
	}
	return f, nil
}

// L returns the root entry.
func L() *Entry {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// SetOutput redirects the root logger. Used by tests to capture output.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	root.SetOutput(w)
}

// WithComponent returns an entry tagged with the given component name.
func WithComponent(name string) *Entry {
	return L().WithField("component", name)
}

// WithTraceID stores a trace ID in the context for downstream propagation.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID extracts the trace ID from context. Returns "" if not set.
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// GenerateTraceID creates a trace ID of the form "{prefix}-{uuid}".
func GenerateTraceID(prefix string) string {
	id := uuid.NewString()
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}

// FromContext decorates e with the trace ID carried by ctx, if any.
func FromContext(ctx context.Context, e *Entry) *Entry {
	tid := TraceID(ctx)
	if tid == "" {
		return e
	}
	return e.WithField("trace_id", tid)
}
