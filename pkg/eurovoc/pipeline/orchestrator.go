// Package pipeline coordinates one date window: metadata query, record
// assembly, then a bounded fan-out of body fetches.
package pipeline

import (
	"context"
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cognicore/eurovoc/pkg/eurovoc/ingest"
)

// QueryEngine returns the raw catalog rows for a window.
type QueryEngine interface {
	QueryWindow(ctx context.Context, w ingest.Window) ([]ingest.RawRow, error)
}

// Assembler turns raw rows into candidates.
type Assembler interface {
	Assemble(ctx context.Context, rows []ingest.RawRow) ([]ingest.CandidateRecord, error)
}

// BodyFetcher enriches one candidate, reporting false when it has no body.
type BodyFetcher interface {
	FetchBody(ctx context.Context, rec ingest.CandidateRecord) (ingest.EnrichedRecord, bool)
}

// Progress is called once per finished document. Calls are serialized and
// current increases by one each time.
type Progress func(current, total int, label string)

// Options configures an Orchestrator.
type Options struct {
	Workers  int // defaults to runtime.NumCPU()
	Progress Progress
	Logger   *slog.Logger
}

// Orchestrator runs windows through the pipeline.
type Orchestrator struct {
	query     QueryEngine
	assembler Assembler
	fetcher   BodyFetcher
	workers   int
	progress  Progress
	logger    *slog.Logger
}

// New creates an orchestrator.
func New(query QueryEngine, assembler Assembler, fetcher BodyFetcher, opts Options) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Progress == nil {
		opts.Progress = LogProgress(opts.Logger)
	}
	return &Orchestrator{
		query:     query,
		assembler: assembler,
		fetcher:   fetcher,
		workers:   opts.Workers,
		progress:  opts.Progress,
		logger:    opts.Logger,
	}
}

// Run returns the enriched records of a window in candidate order. Query
// and assembly errors abort the window. Per-document failures only drop
// that document.
func (o *Orchestrator) Run(ctx context.Context, w ingest.Window) ([]ingest.EnrichedRecord, error) {
	rows, err := o.query.QueryWindow(ctx, w)
	if err != nil {
		return nil, err
	}

	candidates, err := o.assembler.Assemble(ctx, rows)
	if err != nil {
		return nil, err
	}
	o.logger.Info("assembled candidates", "window", w.String(), "rows", len(rows), "candidates", len(candidates))
	if len(candidates) == 0 {
		return []ingest.EnrichedRecord{}, nil
	}

	return o.fetchAll(ctx, w.String(), candidates), nil
}

func (o *Orchestrator) fetchAll(ctx context.Context, label string, candidates []ingest.CandidateRecord) []ingest.EnrichedRecord {
	type slot struct {
		rec ingest.EnrichedRecord
		ok  bool
	}
	results := make([]slot, len(candidates))

	var (
		mu   sync.Mutex
		done int
	)
	total := len(candidates)

	var g errgroup.Group
	g.SetLimit(o.workers)
	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			rec, ok := o.fetcher.FetchBody(ctx, c)
			results[i] = slot{rec: rec, ok: ok}

			mu.Lock()
			done++
			o.progress(done, total, label)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	out := make([]ingest.EnrichedRecord, 0, len(results))
	for _, r := range results {
		if r.ok {
			out = append(out, r.rec)
		}
	}
	return out
}

// LogProgress reports progress at debug level, and at info level when a
// window completes.
func LogProgress(logger *slog.Logger) Progress {
	return func(current, total int, label string) {
		if current == total {
			logger.Info("bodies fetched", "window", label, "total", total)
			return
		}
		logger.Debug("fetching bodies", "window", label, "current", current, "total", total)
	}
}
