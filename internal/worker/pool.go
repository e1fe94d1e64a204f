// Package worker fans the image queue out to a fixed pool of workers.
package worker

import (
	"context"
	"errors"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tmartin-sci/imgcheck/internal/queue"
	"github.com/tmartin-sci/imgcheck/internal/stats"
	"github.com/tmartin-sci/imgcheck/internal/verify"
)

// Processor runs one image job. A nil result is a skip or a dropped job;
// both still count as processed.
type Processor interface {
	Process(ctx context.Context, desc verify.ImageDescriptor) *verify.ComparisonResult
}

// Pool is the fixed-size worker stage between the two pipeline queues.
type Pool struct {
	size      int
	images    *queue.Queue[verify.ImageDescriptor]
	results   *queue.Queue[*verify.ComparisonResult]
	processor Processor
	stats     *stats.Registry
	logger    *zap.Logger
}

// New constructs a Pool. A non-positive size defaults to the host's
// logical core count.
func New(
	size int,
	images *queue.Queue[verify.ImageDescriptor],
	results *queue.Queue[*verify.ComparisonResult],
	processor Processor,
	registry *stats.Registry,
	logger *zap.Logger,
) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	return &Pool{
		size:      size,
		images:    images,
		results:   results,
		processor: processor,
		stats:     registry,
		logger:    logger,
	}
}

// Size returns the number of workers the pool starts.
func (p *Pool) Size() int {
	return p.size
}

// Run starts the workers and blocks until the image queue is closed and
// drained, or the context ends.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.size; i++ {
		g.Go(func() error {
			return p.work(ctx, i)
		})
	}
	return g.Wait()
}

func (p *Pool) work(ctx context.Context, id int) error {
	for {
		desc, err := p.images.Dequeue(ctx)
		if errors.Is(err, queue.ErrClosed) {
			p.logger.Debug("worker exiting", zap.Int("worker", id))
			return nil
		}
		if err != nil {
			return err
		}

		if result := p.processor.Process(ctx, desc); result != nil {
			if err := p.results.Enqueue(ctx, result); err != nil {
				return err
			}
		}
		p.stats.AddProcessed()
	}
}
