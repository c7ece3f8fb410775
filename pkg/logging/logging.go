// Package logging wraps log/slog with the structured-field and
// HTTP-middleware conventions the pack's Accumulate lite-client logging
// package establishes, trimmed to what the ledger server needs: a JSON
// handler by default, component/instance scoping, and a request
// logging middleware.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// Logger wraps slog.Logger with the field-chaining helpers ingest/report/
// verify call sites use.
type Logger struct {
	*slog.Logger
}

// Config controls output format and destination.
type Config struct {
	Level  slog.Level
	Format string // "json" or "text"
	Output string // "stdout", "stderr", or a file path
}

// DefaultConfig is JSON-to-stdout at info level.
func DefaultConfig() *Config {
	return &Config{Level: slog.LevelInfo, Format: "json", Output: "stdout"}
}

// New creates a Logger from cfg. A nil cfg uses DefaultConfig.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var output io.Writer
	switch cfg.Output {
	case "stdout", "":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("logging: open %s: %w", cfg.Output, err)
		}
		output = f
	}

	opts := &slog.HandlerOptions{Level: cfg.Level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}

	return &Logger{Logger: slog.New(handler)}, nil
}

// ParseLevel maps a config string to a slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging: unknown level %q", level)
	}
}

// WithComponent scopes the logger to a named subsystem (e.g. "ingest",
// "verify", "notarize").
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.Logger.With("component", component)}
}

// WithInstance scopes the logger to a trading instance.
func (l *Logger) WithInstance(instanceID string) *Logger {
	return &Logger{Logger: l.Logger.With("instanceId", instanceID)}
}

// WithError attaches an error field.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return &Logger{Logger: l.Logger.With("error", err.Error())}
}

// RequestLogger is an http.Handler middleware that logs method, path,
// status, and duration for every request.
type RequestLogger struct {
	logger *Logger
}

// NewRequestLogger builds a RequestLogger over logger.
func NewRequestLogger(logger *Logger) *RequestLogger {
	return &RequestLogger{logger: logger}
}

// Wrap returns next instrumented with request logging.
func (rl *RequestLogger) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		duration := time.Since(start)

		level := slog.LevelInfo
		if sw.status >= 500 {
			level = slog.LevelError
		} else if sw.status >= 400 {
			level = slog.LevelWarn
		}
		rl.logger.Logger.Log(r.Context(), level, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"durationMs", duration.Milliseconds(),
			"remoteAddr", r.RemoteAddr,
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
