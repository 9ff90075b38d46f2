// Package app wires settings, logging, metrics and the miner into the
// command line entry points.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/cognicore/eurovoc/pkg/eurovoc"
	"github.com/cognicore/eurovoc/pkg/eurovoc/audit"
	"github.com/cognicore/eurovoc/pkg/eurovoc/config"
	"github.com/cognicore/eurovoc/pkg/eurovoc/metrics"
)

// Miner mines a range of days.
type Miner interface {
	MineDays(ctx context.Context, start time.Time, days, windowDays int, lang string) ([]eurovoc.WindowResult, error)
}

// RunParams contains dependencies for the run function
type RunParams struct {
	LoadSettings func(*pflag.FlagSet) (*config.Settings, error)
	NewLogger    func(config.LogSettings) (*slog.Logger, io.Closer, error)
	BuildMiner   func(context.Context, *config.Settings, *slog.Logger, *metrics.Metrics) (Miner, func(), error)
	ServeMetrics func(addr string, reg *prometheus.Registry, logger *slog.Logger) (func(), error)
	Now          func() time.Time
}

// DefaultRunParams returns production dependencies
func DefaultRunParams() RunParams {
	return RunParams{
		LoadSettings: config.LoadSettings,
		NewLogger:    config.NewLogger,
		BuildMiner:   BuildMiner,
		ServeMetrics: ServeMetrics,
		Now:          time.Now,
	}
}

// RunWithDeps mines the configured range. args may carry the output prefix.
// Failed windows are logged and counted; the run itself fails only when
// setup fails or a window reports the taxonomy unavailable.
func RunWithDeps(ctx context.Context, params RunParams, flags *pflag.FlagSet, args []string) error {
	settings, err := params.LoadSettings(flags)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	if len(args) > 0 && args[0] != "" {
		settings.Output.Prefix = args[0]
	}
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, closer, err := params.NewLogger(settings.Log)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)
	config.Log(settings, logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	if settings.MetricsAddr != "" && params.ServeMetrics != nil {
		shutdown, err := params.ServeMetrics(settings.MetricsAddr, reg, logger)
		if err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer shutdown()
	}

	miner, cleanup, err := params.BuildMiner(ctx, settings, logger, m)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	start, err := settings.StartDate(params.Now())
	if err != nil {
		return err
	}
	results, err := miner.MineDays(ctx, start, settings.Days, settings.WindowDays, settings.Lang)

	failed, rows := 0, 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
		rows += r.Rows
	}
	logger.Info("run finished", "windows", len(results), "failed", failed, "rows", rows)

	if err != nil {
		return fmt.Errorf("run aborted: %w", err)
	}
	return nil
}

// ServeMetrics exposes reg on addr until the returned shutdown is called.
func ServeMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) (func(), error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "addr", addr, "error", err)
		}
	}()
	logger.Info("Serving metrics", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

// RunAudit reports missing days among the artifacts in the configured
// output directory.
func RunAudit(w io.Writer, loadSettings func(*pflag.FlagSet) (*config.Settings, error), flags *pflag.FlagSet, args []string, limit int) error {
	settings, err := loadSettings(flags)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	if len(args) > 0 && args[0] != "" {
		settings.Output.Prefix = args[0]
	}

	report, err := audit.Scan(settings.Output.Dir, settings.Output.Prefix)
	if err != nil {
		return err
	}
	return report.Render(w, limit)
}
