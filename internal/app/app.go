// Package app assembles the verification pipeline from configuration and
// runs it to completion.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tmartin-sci/imgcheck/internal/catalog"
	"github.com/tmartin-sci/imgcheck/internal/compare"
	"github.com/tmartin-sci/imgcheck/internal/config"
	"github.com/tmartin-sci/imgcheck/internal/dedup"
	"github.com/tmartin-sci/imgcheck/internal/fetch"
	"github.com/tmartin-sci/imgcheck/internal/ledger"
	"github.com/tmartin-sci/imgcheck/internal/processor"
	"github.com/tmartin-sci/imgcheck/internal/queue"
	"github.com/tmartin-sci/imgcheck/internal/report"
	"github.com/tmartin-sci/imgcheck/internal/stats"
	"github.com/tmartin-sci/imgcheck/internal/verify"
	"github.com/tmartin-sci/imgcheck/internal/walker"
	"github.com/tmartin-sci/imgcheck/internal/worker"
)

// App holds the assembled pipeline stages.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	ledger  *ledger.Ledger
	stats   *stats.Registry
	metrics *stats.Server
	images  *queue.Queue[verify.ImageDescriptor]
	results *queue.Queue[*verify.ComparisonResult]
	driver  *catalog.Driver
	pool    *worker.Pool
	writer  *report.Writer
}

// New wires every stage from configuration. The dedup index is loaded
// here, before any processing starts, from the previous run's report
// ledger.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	index, err := dedup.Load(filepath.Join(cfg.Logs.Dir, ledger.FileName(ledger.LevelReport)), logger)
	if err != nil {
		return nil, fmt.Errorf("load dedup index: %w", err)
	}

	led, err := ledger.Open(cfg.Logs.Dir, logger)
	if err != nil {
		return nil, fmt.Errorf("open ledgers: %w", err)
	}

	fetcher, err := fetch.New(fetch.Config{
		TextCacheDir:  cfg.Cache.TextDir,
		ImageCacheDir: cfg.Cache.ImageDir,
		UserAgent:     cfg.HTTP.UserAgent,
		Timeout:       cfg.HTTPTimeout(),
	}, logger)
	if err != nil {
		_ = led.Close()
		return nil, fmt.Errorf("init fetcher: %w", err)
	}

	registry := stats.New()
	images := queue.New[verify.ImageDescriptor](cfg.QueueDepth)
	results := queue.New[*verify.ComparisonResult](cfg.QueueDepth)

	rewriter := verify.Rewriter{
		LegacyPrefix:    cfg.Rewrite.LegacyPrefix,
		CanonicalPrefix: cfg.Rewrite.CanonicalPrefix,
		StorageOrigin:   cfg.Rewrite.StorageOrigin,
	}
	comparer := compare.New(compare.Config{
		Tool:        cfg.Compare.Tool,
		Metric:      cfg.Compare.Metric,
		SoftTimeout: cfg.SoftTimeout(),
		HardTimeout: cfg.HardTimeout(),
	}, logger)

	proc := processor.New(index, fetcher, comparer, rewriter, led, registry, logger)
	pool := worker.New(cfg.Workers, images, results, proc, registry, logger)
	w := walker.New(images.Enqueue, registry, logger)
	driver := catalog.New(catalog.Config{
		IndexURL:           cfg.Catalog.IndexURL,
		ArticleURLTemplate: cfg.Catalog.ArticleURLTemplate,
		MaxArticles:        cfg.Catalog.MaxArticles,
	}, fetcher, w, images, led, registry, logger)
	writer := report.New(results, led, registry, cfg.KeepCache, logger)

	var metrics *stats.Server
	if cfg.Metrics.Addr != "" {
		metrics = stats.NewServer(cfg.Metrics.Addr, logger)
	}

	return &App{
		cfg:     cfg,
		logger:  logger,
		ledger:  led,
		stats:   registry,
		metrics: metrics,
		images:  images,
		results: results,
		driver:  driver,
		pool:    pool,
		writer:  writer,
	}, nil
}

// Run executes one verification run for the given target: discovery feeds
// the image queue and closes it; the pool drains it; the result queue is
// closed once every worker has joined; the report writer drains that and
// terminates the run.
func (a *App) Run(ctx context.Context, target Target) error {
	a.logger.Info("pipeline starting",
		zap.Int("workers", a.pool.Size()),
		zap.Int("queue_depth", a.cfg.QueueDepth),
	)

	if a.metrics != nil {
		if err := a.metrics.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.metrics.Shutdown(sctx); err != nil {
				a.logger.Warn("metrics shutdown failed", zap.Error(err))
			}
		}()
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.discover(ctx, target)
	})
	g.Go(func() error {
		defer a.results.Close()
		return a.pool.Run(ctx)
	})
	g.Go(func() error {
		return a.writer.Run(ctx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	return nil
}

func (a *App) discover(ctx context.Context, target Target) error {
	switch target.Mode {
	case ModeArticle:
		return a.driver.Article(ctx, target.ArticleID)
	case ModeImage:
		return a.driver.Image(ctx, target.ImageURL)
	default:
		return a.driver.Catalog(ctx)
	}
}

// Close flushes and closes the ledgers.
func (a *App) Close() error {
	return a.ledger.Close()
}
