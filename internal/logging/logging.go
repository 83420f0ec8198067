// Package logging configures the global zerolog logger and carries
// request-scoped loggers on contexts.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

type requestIDKey struct{}

// Config controls logger initialization.
type Config struct {
	Format    string    // "json", "console", or "auto"
	Level     string    // see ParseLevel
	Component string    // optional component field
	Output    io.Writer // defaults to stderr
}

var isTerminal = func(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Init replaces the global logger. Invalid levels or formats fall back to
// info and json with a note on stderr, so a bad LOG_LEVEL never silences
// the service.
func Init(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v; using info\n", err)
	}
	format, err := ParseFormat(cfg.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v; using json\n", err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(level)

	builder := zerolog.New(writerFor(format, out)).With().Timestamp()
	if component := strings.TrimSpace(cfg.Component); component != "" {
		builder = builder.Str("component", component)
	}
	log.Logger = builder.Logger()
	return log.Logger
}

// ParseLevel maps a level name to a zerolog level. Blank means info.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return zerolog.InfoLevel, nil
	case "trace":
		return zerolog.TraceLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	case "disabled":
		return zerolog.Disabled, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("invalid log level %q", level)
	}
}

// ParseFormat normalizes a format name. Blank means auto.
func ParseFormat(format string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case "":
		return "auto", nil
	case "auto", "json", "console":
		return f, nil
	default:
		return "json", fmt.Errorf("invalid log format %q", format)
	}
}

func writerFor(format string, out io.Writer) io.Writer {
	if format == "console" || (format == "auto" && isTerminal(out)) {
		return zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return out
}

// WithRequestID stores requestID (or a generated one) on ctx together with a
// logger that tags every event with it.
func WithRequestID(ctx context.Context, requestID string) (context.Context, string) {
	if ctx == nil {
		ctx = context.Background()
	}
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	logger := log.With().Str("request_id", requestID).Logger()
	ctx = context.WithValue(ctx, requestIDKey{}, requestID)
	return logger.WithContext(ctx), requestID
}

// RequestID returns the request ID stored on ctx, if any.
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// FromContext returns the request logger on ctx, or the global logger.
func FromContext(ctx context.Context) zerolog.Logger {
	if ctx != nil {
		if logger := zerolog.Ctx(ctx); logger.GetLevel() != zerolog.Disabled {
			return *logger
		}
	}
	return log.Logger
}
