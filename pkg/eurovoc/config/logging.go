package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the process logger from settings. When a log file is
// configured, records go to both stderr and the file; the returned closer
// releases the file and is never nil.
func NewLogger(s LogSettings) (*slog.Logger, io.Closer, error) {
	return newLogger(s, os.Stderr)
}

func newLogger(s LogSettings, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	var (
		out    = stderr
		closer io.Closer = nopCloser{}
	)
	if s.File != "" {
		f, err := os.OpenFile(s.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(stderr, f)
		closer = f
	}

	opts := &slog.HandlerOptions{Level: parseLevel(s.Level)}

	var handler slog.Handler
	if strings.EqualFold(s.Format, "json") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler), closer, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Log logs the resolved settings
func Log(s *Settings, logger *slog.Logger) {
	ctx := context.Background()
	logger.InfoContext(ctx, "Config: sparql_endpoint", "value", s.SparqlEndpoint)
	logger.InfoContext(ctx, "Config: output", "dir", s.Output.Dir, "prefix", s.Output.Prefix)
	logger.InfoContext(ctx, "Config: range", "days", s.Days, "window_days", s.WindowDays, "start", s.Start)
	if s.Lang != "" {
		logger.InfoContext(ctx, "Config: lang", "value", s.Lang)
	}
	logger.InfoContext(ctx, "Config: workers", "value", s.Workers)
	if len(s.Keywords) > 0 {
		logger.InfoContext(ctx, "Config: keywords", "value", s.Keywords, "only_matches", s.OnlyMatches)
	}
	if s.UniqueOn != "" {
		logger.InfoContext(ctx, "Config: unique_on", "value", s.UniqueOn)
	}
	logger.DebugContext(ctx, "Config: retry",
		"max_attempts", s.Retry.MaxAttempts,
		"initial_interval", s.Retry.InitialInterval,
		"http_timeout", s.HTTPTimeout)
}
