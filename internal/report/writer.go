// Package report consumes comparison results: it persists the report
// ledger, reclaims cache files, and emits progress until the run is done.
package report

import (
	"context"
	"errors"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tmartin-sci/imgcheck/internal/ledger"
	"github.com/tmartin-sci/imgcheck/internal/queue"
	"github.com/tmartin-sci/imgcheck/internal/stats"
	"github.com/tmartin-sci/imgcheck/internal/verify"
)

// Writer is the single consumer of the result queue. Run exits once the
// queue is closed and drained, which the orchestrator does only after the
// worker pool has joined, so every processed job has been reported.
type Writer struct {
	results   *queue.Queue[*verify.ComparisonResult]
	ledger    *ledger.Ledger
	stats     *stats.Registry
	keepCache bool
	runID     uuid.UUID
	logger    *zap.Logger
}

// New constructs a Writer. keepCache disables cache reclamation for
// debugging runs.
func New(
	results *queue.Queue[*verify.ComparisonResult],
	led *ledger.Ledger,
	registry *stats.Registry,
	keepCache bool,
	logger *zap.Logger,
) *Writer {
	return &Writer{
		results:   results,
		ledger:    led,
		stats:     registry,
		keepCache: keepCache,
		runID:     uuid.New(),
		logger:    logger,
	}
}

// Run blocks consuming results until the queue closes.
func (w *Writer) Run(ctx context.Context) error {
	for {
		result, err := w.results.Dequeue(ctx)
		if errors.Is(err, queue.ErrClosed) {
			w.final()
			return nil
		}
		if err != nil {
			return err
		}
		w.handle(result)
	}
}

func (w *Writer) handle(result *verify.ComparisonResult) {
	if result.IsDeviation() {
		// Full deviations keep their cache files for inspection.
		w.stats.AddDeviation()
	} else if !w.keepCache {
		w.reclaim(result)
	}

	w.ledger.Report(result)

	snap := w.stats.Snapshot()
	w.logger.Info("progress",
		zap.String("run_id", w.runID.String()),
		zap.String("article_id", result.ArticleID),
		zap.Int64("discovered", snap.Discovered),
		zap.Int64("processed", snap.Processed),
		zap.Int64("deviations", snap.Deviations),
		zap.Int64("errors", snap.Errors),
		zap.Int64("remaining", snap.Discovered-snap.Processed),
	)
}

// reclaim best-effort-deletes the three cache files; missing files are
// expected, not errors.
func (w *Writer) reclaim(result *verify.ComparisonResult) {
	for _, path := range []string{result.OriginalPath, result.ServedPath, result.DiffPath} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			w.logger.Warn("cache reclaim failed", zap.String("path", path), zap.Error(err))
		}
	}
}

func (w *Writer) final() {
	snap := w.stats.Snapshot()
	w.logger.Info("run complete",
		zap.String("run_id", w.runID.String()),
		zap.Int64("discovered", snap.Discovered),
		zap.Int64("processed", snap.Processed),
		zap.Int64("deviations", snap.Deviations),
		zap.Int64("errors", snap.Errors),
	)
}
