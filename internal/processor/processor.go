// Package processor executes the per-image verification job.
package processor

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/tmartin-sci/imgcheck/internal/compare"
	"github.com/tmartin-sci/imgcheck/internal/dedup"
	"github.com/tmartin-sci/imgcheck/internal/fetch"
	"github.com/tmartin-sci/imgcheck/internal/hash/md5"
	"github.com/tmartin-sci/imgcheck/internal/ledger"
	"github.com/tmartin-sci/imgcheck/internal/stats"
	"github.com/tmartin-sci/imgcheck/internal/verify"
)

// Processor turns one ImageDescriptor into at most one ComparisonResult:
// dedup check, canonical URL derivation, two downloads, metadata,
// comparison, assembly. Failures are ledgered and counted here; no fault
// escapes the job boundary.
type Processor struct {
	index    *dedup.Index
	fetcher  *fetch.Client
	comparer *compare.Runner
	rewriter verify.Rewriter
	ledger   *ledger.Ledger
	stats    *stats.Registry
	logger   *zap.Logger
}

// New constructs a Processor.
func New(
	index *dedup.Index,
	fetcher *fetch.Client,
	comparer *compare.Runner,
	rewriter verify.Rewriter,
	led *ledger.Ledger,
	registry *stats.Registry,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		index:    index,
		fetcher:  fetcher,
		comparer: comparer,
		rewriter: rewriter,
		ledger:   led,
		stats:    registry,
		logger:   logger,
	}
}

// Process runs the job. A nil result means the job was skipped (cross-run
// dedup) or dropped after a ledgered failure; either way the caller still
// counts it as processed.
func (p *Processor) Process(ctx context.Context, desc verify.ImageDescriptor) (result *verify.ComparisonResult) {
	defer func() {
		if r := recover(); r != nil {
			p.stats.AddError()
			p.ledger.Error(fmt.Sprintf("image job fault: %v", r), desc)
			p.logger.Error("image job fault",
				zap.Any("fault", r),
				zap.String("uri", desc.Source.URI),
			)
			result = nil
		}
	}()
	return p.process(ctx, desc)
}

func (p *Processor) process(ctx context.Context, desc verify.ImageDescriptor) *verify.ComparisonResult {
	uri := desc.Source.URI

	if _, seen := p.index.Seen(uri); seen {
		p.ledger.Debug("skipping previously verified image", map[string]any{"uri": uri})
		return nil
	}

	originalURL, err := p.rewriter.OriginalURL(uri)
	if err != nil {
		return p.fail(desc, "derive original url", err)
	}
	if err := p.checkDistinctCachePaths(uri, originalURL); err != nil {
		return p.fail(desc, "derive original url", err)
	}

	originalPath, err := p.fetcher.Image(originalURL)
	if err != nil {
		return p.fail(desc, "download original", err)
	}
	servedPath, err := p.fetcher.Image(uri)
	if err != nil {
		return p.fail(desc, "download served copy", err)
	}

	info, err := os.Stat(originalPath)
	if err != nil {
		return p.fail(desc, "stat original", err)
	}
	originalMD5, err := md5.File(originalPath)
	if err != nil {
		return p.fail(desc, "hash original", err)
	}
	servedMD5, err := md5.File(servedPath)
	if err != nil {
		return p.fail(desc, "hash served copy", err)
	}

	diffPath := servedPath + "-diff.png"
	outcome := p.comparer.Run(ctx, originalPath, servedPath, diffPath)
	if outcome.Failed {
		p.stats.AddError()
		p.ledger.Error("comparison failed", map[string]any{
			"command":  p.comparer.Describe(originalPath, servedPath, diffPath),
			"exit":     outcome.ExitDesc,
			"stdout":   outcome.Stdout,
			"stderr":   outcome.Stderr,
			"original": originalPath,
			"served":   servedPath,
		})
	}

	result := &verify.ComparisonResult{
		ImageDescriptor: desc,
		ArticleID:       p.rewriter.ArticleID(uri),
		Bytes:           info.Size(),
		MD5:             originalMD5,
		PAE:             outcome.Score,
		OriginalPath:    originalPath,
		ServedPath:      servedPath,
		DiffPath:        diffPath,
	}
	result.Source.LocalPath = servedPath
	result.Source.LocalMD5 = servedMD5
	return result
}

// checkDistinctCachePaths rejects a job whose canonical URL mirrors onto
// the served copy's cache file. The cache is keyed by URL path, so a URI
// the rewrite leaves unchanged would download once and then compare that
// file against itself, reporting a meaningless zero.
func (p *Processor) checkDistinctCachePaths(servedURL, originalURL string) error {
	servedPath, err := p.fetcher.ImagePath(servedURL)
	if err != nil {
		return err
	}
	originalPath, err := p.fetcher.ImagePath(originalURL)
	if err != nil {
		return err
	}
	if servedPath == originalPath {
		return fmt.Errorf("canonical url %s shares the served cache file %s", originalURL, servedPath)
	}
	return nil
}

// fail ledgers a dropped job and counts it. No retry happens at this
// layer; the cache makes a later run cheap.
func (p *Processor) fail(desc verify.ImageDescriptor, step string, err error) *verify.ComparisonResult {
	p.stats.AddError()
	p.ledger.Error(fmt.Sprintf("%s: %v", step, err), desc)
	p.logger.Error("image job dropped",
		zap.String("step", step),
		zap.String("uri", desc.Source.URI),
		zap.Error(err),
	)
	return nil
}
