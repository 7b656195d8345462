// Package logging builds the zerolog loggers used across the CLI and wires
// them through context so every component logs with the same run id.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// Config controls logger construction.
type Config struct {
	// Level is a zerolog level name (trace, debug, info, warn, error).
	// Unparsable values fall back to info.
	Level string

	// Format selects "console" (human-readable, the default) or "json".
	Format string

	// File, when set, duplicates log output to the given file in addition
	// to stderr.
	File string

	// Caller adds caller annotations to each event.
	Caller bool
}

// New constructs a logger from cfg. The returned closer releases the log
// file handle when file output is enabled and is always safe to call.
func New(cfg Config) (zerolog.Logger, io.Closer, error) {
	lvl, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		lvl = zerolog.InfoLevel
	}

	var writers []io.Writer
	if cfg.Format == "json" {
		writers = append(writers, os.Stderr)
	} else {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		})
	}

	var closer io.Closer = io.NopCloser(nil)
	if cfg.File != "" {
		f, fileErr := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if fileErr != nil {
			return zerolog.Nop(), closer, fmt.Errorf("opening log file: %w", fileErr)
		}
		writers = append(writers, f)
		closer = f
	}

	logCtx := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(lvl).
		With().
		Timestamp()
	if cfg.Caller {
		logCtx = logCtx.Caller()
	}
	return logCtx.Logger(), closer, nil
}

// ComponentLogger tags a logger with the component emitting its events.
func ComponentLogger(log zerolog.Logger, component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// WithContext stores the logger in ctx for retrieval via FromContext.
func WithContext(ctx context.Context, log zerolog.Logger) context.Context {
	return log.WithContext(ctx)
}

// FromContext returns the logger stored in ctx, or a disabled logger when
// none was attached.
func FromContext(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}

// runIDKey is the context key for the run id.
type runIDKey struct{}

// NewRunID generates a lexicographically sortable run id.
func NewRunID() string {
	return ulid.Make().String()
}

// ContextWithRunID stores a run id in ctx.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunIDFromContext returns the run id stored in ctx, or an empty string.
func RunIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey{}).(string); ok {
		return id
	}
	return ""
}
