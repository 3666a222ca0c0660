// Package logger provides a small structured-logging wrapper around
// charmbracelet/log shared by every gradeforge component.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	cblog "github.com/charmbracelet/log"
)

// Options configures a Logger at construction time.
type Options struct {
	Level         string
	HumanReadable bool
	Writer        io.Writer
	Component     string
}

// Logger wraps a charmbracelet/log logger with a fixed, sorted set of
// structured fields and correlation-id awareness.
type Logger struct {
	base   *cblog.Logger
	fields []interface{}
}

// New builds a Logger from Options. An empty Level defaults to info.
func New(opts Options) (*Logger, error) {
	writer := opts.Writer
	if writer == nil {
		writer = os.Stdout
	}

	level := cblog.InfoLevel
	if opts.Level != "" {
		parsed, err := cblog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}

	formatter := cblog.JSONFormatter
	if opts.HumanReadable {
		formatter = cblog.TextFormatter
	}

	base := cblog.NewWithOptions(writer, cblog.Options{
		Level:           level,
		ReportTimestamp: true,
		Formatter:       formatter,
	})

	var fields []interface{}
	if opts.Component != "" {
		fields = []interface{}{"component", opts.Component}
	}

	return &Logger{base: base, fields: fields}, nil
}

// WithFields returns a derived Logger that always emits the supplied fields,
// keys sorted for deterministic output.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	if l == nil || len(fields) == 0 {
		return l
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	next := make([]interface{}, len(l.fields), len(l.fields)+len(fields)*2)
	copy(next, l.fields)
	for _, k := range keys {
		next = append(next, k, fields[k])
	}

	return &Logger{base: l.base, fields: next}
}

// WithContext derives a Logger that tags every entry with the context's
// correlation id, when present.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if id := CorrelationID(ctx); id != "" {
		return l.WithFields(map[string]any{"correlation_id": id})
	}
	return l
}

// Debug emits a debug-level entry.
func (l *Logger) Debug(msg string) { l.log(l.base.Debug, msg) }

// Info emits an info-level entry.
func (l *Logger) Info(msg string) { l.log(l.base.Info, msg) }

// Warn emits a warning-level entry.
func (l *Logger) Warn(msg string) { l.log(l.base.Warn, msg) }

// Error emits an error-level entry, attaching err as a field when non-nil.
func (l *Logger) Error(err error, msg string) {
	if l == nil || l.base == nil {
		return
	}
	fields := l.fields
	if err != nil {
		fields = append(append([]interface{}{}, l.fields...), "error", err.Error())
	}
	l.base.Error(msg, fields...)
}

func (l *Logger) log(fn func(interface{}, ...interface{}), msg string) {
	if l == nil || l.base == nil || fn == nil {
		return
	}
	fn(msg, l.fields...)
}
