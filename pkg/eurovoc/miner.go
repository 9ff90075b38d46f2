// Package eurovoc mines legislative document metadata and text by date
// window and writes one normalized artifact per window.
package eurovoc

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cognicore/eurovoc/pkg/eurovoc/ingest"
	"github.com/cognicore/eurovoc/pkg/eurovoc/internalerr"
	"github.com/cognicore/eurovoc/pkg/eurovoc/metrics"
	"github.com/cognicore/eurovoc/pkg/eurovoc/normalize"
	"github.com/cognicore/eurovoc/pkg/eurovoc/output"
)

// Runner produces the enriched records of one window.
type Runner interface {
	Run(ctx context.Context, w ingest.Window) ([]ingest.EnrichedRecord, error)
}

// Options configures a Miner
type Options struct {
	Runner    Runner
	OutputDir string
	Prefix    string
	Normalize normalize.Options
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// Miner is the entry point for mining date windows
type Miner struct {
	runner    Runner
	outputDir string
	prefix    string
	normalize normalize.Options
	logger    *slog.Logger
	metrics   *metrics.Metrics

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// New creates a Miner with the given dependencies
func New(opts Options) *Miner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Miner{
		runner:    opts.Runner,
		outputDir: opts.OutputDir,
		prefix:    opts.Prefix,
		normalize: opts.Normalize,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		entropy:   ulid.Monotonic(rand.Reader, 0),
	}
}

// WindowResult describes one mined window.
type WindowResult struct {
	Window ingest.Window
	Path   string // empty when the window failed
	Rows   int
	Err    error
}

// MineWindow runs one window and writes its artifact. A window without
// documents still produces a header-only artifact.
func (m *Miner) MineWindow(ctx context.Context, w ingest.Window) WindowResult {
	return m.mineWindow(ctx, m.logger.With("run_id", m.runID()), w)
}

func (m *Miner) mineWindow(ctx context.Context, logger *slog.Logger, w ingest.Window) WindowResult {
	started := time.Now()
	res := WindowResult{Window: w}

	opts := m.normalize
	opts.Logger = logger

	records, err := m.runner.Run(ctx, w)
	if err != nil {
		res.Err = fmt.Errorf("window %s: %w", w, err)
		m.metrics.Window(metrics.WindowFailed, time.Since(started))
		logger.Error("window failed", "window", w.String(), "error", err)
		return res
	}

	table := normalize.Normalize(records, opts)
	path := output.Filename(m.outputDir, m.prefix, w)
	if err := output.WriteCSV(path, table); err != nil {
		res.Err = fmt.Errorf("window %s: %w", w, err)
		m.metrics.Window(metrics.WindowFailed, time.Since(started))
		logger.Error("window failed", "window", w.String(), "error", err)
		return res
	}

	res.Path = path
	res.Rows = len(table.Rows)
	status := metrics.WindowOK
	if res.Rows == 0 {
		status = metrics.WindowEmpty
	}
	m.metrics.Window(status, time.Since(started))
	logger.Info("saved window", "window", w.String(), "path", path, "rows", res.Rows,
		"elapsed", time.Since(started).Round(time.Millisecond))
	return res
}

// MineDays mines days consecutive days ending at start, in windows of
// windowDays days, most recent first. Windows run one at a time. A failed
// window is recorded and skipped; only an unavailable taxonomy stops the
// run, since no later window could succeed.
func (m *Miner) MineDays(ctx context.Context, start time.Time, days, windowDays int, lang string) ([]WindowResult, error) {
	logger := m.logger.With("run_id", m.runID())
	windows := Windows(start, days, windowDays, lang)
	logger.Info("starting run", "windows", len(windows), "start", start.Format(ingest.DateLayout), "lang", lang)

	results := make([]WindowResult, 0, len(windows))
	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := m.mineWindow(ctx, logger, w)
		results = append(results, res)
		if errors.Is(res.Err, internalerr.ErrTaxonomyUnavailable) {
			return results, res.Err
		}
	}
	return results, nil
}

// Windows splits days consecutive days ending at start into windows of
// windowDays days, most recent first. The oldest window is shortened so no
// day before the requested range is covered.
func Windows(start time.Time, days, windowDays int, lang string) []ingest.Window {
	if days < 1 {
		return nil
	}
	if windowDays < 1 {
		windowDays = 1
	}
	last := ingest.NewWindow(start, 1, lang).Start

	var out []ingest.Window
	for covered := 0; covered < days; covered += windowDays {
		n := min(windowDays, days-covered)
		from := last.AddDate(0, 0, -(covered + n - 1))
		out = append(out, ingest.NewWindow(from, n, lang))
	}
	return out
}

func (m *Miner) runID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ulid.MustNew(ulid.Now(), m.entropy).String()
}
