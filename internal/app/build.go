package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cognicore/eurovoc/pkg/eurovoc"
	"github.com/cognicore/eurovoc/pkg/eurovoc/body"
	"github.com/cognicore/eurovoc/pkg/eurovoc/config"
	"github.com/cognicore/eurovoc/pkg/eurovoc/httpx"
	"github.com/cognicore/eurovoc/pkg/eurovoc/ingest"
	"github.com/cognicore/eurovoc/pkg/eurovoc/internalerr"
	"github.com/cognicore/eurovoc/pkg/eurovoc/metrics"
	"github.com/cognicore/eurovoc/pkg/eurovoc/normalize"
	"github.com/cognicore/eurovoc/pkg/eurovoc/pipeline"
	"github.com/cognicore/eurovoc/pkg/eurovoc/sparql"
	"github.com/cognicore/eurovoc/pkg/eurovoc/store/sqlite"
	"github.com/cognicore/eurovoc/pkg/eurovoc/taxonomy"
)

// CacheFile is the database holding cached bodies and the taxonomy snapshot.
const CacheFile = "eurovoc.db"

// BuildMiner wires the pipeline from settings. The returned cleanup closes
// the cache database.
func BuildMiner(ctx context.Context, s *config.Settings, logger *slog.Logger, m *metrics.Metrics) (Miner, func(), error) {
	if err := os.MkdirAll(s.CacheDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create cache directory: %w", err)
	}
	st, err := sqlite.OpenSQLite(ctx, filepath.Join(s.CacheDir, CacheFile))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}
	cleanup := func() {
		if err := st.Close(); err != nil {
			logger.Error("Failed to close cache", "error", err)
		}
	}

	client := httpx.New(httpx.Options{
		Timeout:   s.HTTPTimeout,
		Retry:     s.RetryPolicy(),
		UserAgent: s.UserAgent,
		Logger:    logger,
		Metrics:   m,
	})

	resolver := taxonomy.NewResolver(client, taxonomy.Options{
		URL:    s.TaxonomyURL,
		TTL:    s.TaxonomyTTL,
		Cache:  st,
		Logger: logger,
	})
	orchestrator := pipeline.New(
		sparql.NewEngine(client, s.SparqlEndpoint, logger),
		ingest.NewAssembler(resolver, logger),
		body.NewFetcher(client, st, body.Options{Logger: logger, Metrics: m}),
		pipeline.Options{Workers: s.Workers, Logger: logger},
	)

	miner := eurovoc.New(eurovoc.Options{
		Runner:    orchestrator,
		OutputDir: s.Output.Dir,
		Prefix:    s.Output.Prefix,
		Normalize: normalize.Options{
			Keywords:    s.Keywords,
			UniqueOn:    s.UniqueOn,
			OnlyMatches: s.OnlyMatches,
		},
		Logger:  logger,
		Metrics: m,
	})
	return miner, cleanup, nil
}
