// Package logger provides a context-aware structured logger built on log/slog.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Level represents a logging level.
type Level slog.Level

// Supported log levels.
const (
	LevelDebug = Level(slog.LevelDebug)
	LevelInfo  = Level(slog.LevelInfo)
	LevelWarn  = Level(slog.LevelWarn)
	LevelError = Level(slog.LevelError)
)

// ParseLevel converts a config string into a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Format selects the slog handler.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
	FormatTint Format = "tint"
)

// TraceIDFn extracts a trace id from the context, if any.
type TraceIDFn func(ctx context.Context) string

// LoggerInterface is the logging contract used across the codebase.
type LoggerInterface interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)
	Debugc(ctx context.Context, caller int, msg string, args ...any)
	Infoc(ctx context.Context, caller int, msg string, args ...any)
	Warnc(ctx context.Context, caller int, msg string, args ...any)
	Errorc(ctx context.Context, caller int, msg string, args ...any)
}

// Logger writes structured records through a slog handler.
type Logger struct {
	handler   slog.Handler
	traceIDFn TraceIDFn
}

var _ LoggerInterface = (*Logger)(nil)

// New constructs a JSON logger that writes to w.
func New(w io.Writer, minLevel Level, serviceName string, traceIDFn TraceIDFn) *Logger {
	return NewWithFormat(w, FormatJSON, minLevel, serviceName, traceIDFn)
}

// NewWithFormat constructs a logger with an explicit output format.
func NewWithFormat(w io.Writer, format Format, minLevel Level, serviceName string, traceIDFn TraceIDFn) *Logger {
	var handler slog.Handler
	switch format {
	case FormatText:
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{AddSource: true, Level: slog.Level(minLevel), ReplaceAttr: replaceSource})
	case FormatTint:
		handler = tint.NewHandler(w, &tint.Options{AddSource: true, Level: slog.Level(minLevel), TimeFormat: time.Kitchen})
	default:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{AddSource: true, Level: slog.Level(minLevel), ReplaceAttr: replaceSource})
	}

	attrs := []slog.Attr{{Key: "service", Value: slog.StringValue(serviceName)}}
	handler = handler.WithAttrs(attrs)

	return &Logger{
		handler:   handler,
		traceIDFn: traceIDFn,
	}
}

// Debug logs at LevelDebug.
func (log *Logger) Debug(ctx context.Context, msg string, args ...any) {
	log.write(ctx, LevelDebug, 3, msg, args...)
}

// Debugc logs at LevelDebug with an explicit caller depth.
func (log *Logger) Debugc(ctx context.Context, caller int, msg string, args ...any) {
	log.write(ctx, LevelDebug, caller, msg, args...)
}

// Info logs at LevelInfo.
func (log *Logger) Info(ctx context.Context, msg string, args ...any) {
	log.write(ctx, LevelInfo, 3, msg, args...)
}

// Infoc logs at LevelInfo with an explicit caller depth.
func (log *Logger) Infoc(ctx context.Context, caller int, msg string, args ...any) {
	log.write(ctx, LevelInfo, caller, msg, args...)
}

// Warn logs at LevelWarn.
func (log *Logger) Warn(ctx context.Context, msg string, args ...any) {
	log.write(ctx, LevelWarn, 3, msg, args...)
}

// Warnc logs at LevelWarn with an explicit caller depth.
func (log *Logger) Warnc(ctx context.Context, caller int, msg string, args ...any) {
	log.write(ctx, LevelWarn, caller, msg, args...)
}

// Error logs at LevelError.
func (log *Logger) Error(ctx context.Context, msg string, args ...any) {
	log.write(ctx, LevelError, 3, msg, args...)
}

// Errorc logs at LevelError with an explicit caller depth.
func (log *Logger) Errorc(ctx context.Context, caller int, msg string, args ...any) {
	log.write(ctx, LevelError, caller, msg, args...)
}

func (log *Logger) write(ctx context.Context, level Level, caller int, msg string, args ...any) {
	slogLevel := slog.Level(level)

	if !log.handler.Enabled(ctx, slogLevel) {
		return
	}

	var pcs [1]uintptr
	runtime.Callers(caller, pcs[:])

	r := slog.NewRecord(time.Now(), slogLevel, msg, pcs[0])

	if log.traceIDFn != nil {
		if id := log.traceIDFn(ctx); id != "" {
			args = append(args, "trace_id", id)
		}
	}
	r.Add(args...)

	log.handler.Handle(ctx, r)
}

// replaceSource trims the source path to dir/file:line.
func replaceSource(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.SourceKey {
		if source, ok := a.Value.Any().(*slog.Source); ok {
			v := fmt.Sprintf("%s:%d", filepath.Base(source.File), source.Line)
			return slog.Attr{Key: "file", Value: slog.StringValue(v)}
		}
	}
	return a
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return New(io.Discard, LevelError+1, "", nil)
}
