// Package catalog implements the discovery drivers feeding the pipeline:
// whole-catalog, single-article, and single-image.
package catalog

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/tmartin-sci/imgcheck/internal/fetch"
	"github.com/tmartin-sci/imgcheck/internal/ledger"
	"github.com/tmartin-sci/imgcheck/internal/queue"
	"github.com/tmartin-sci/imgcheck/internal/stats"
	"github.com/tmartin-sci/imgcheck/internal/verify"
	"github.com/tmartin-sci/imgcheck/internal/walker"
)

// Config locates the catalog endpoints.
type Config struct {
	// IndexURL serves the two-column CSV catalog; the first column is the
	// article identifier.
	IndexURL string
	// ArticleURLTemplate is the per-article JSON endpoint with one %s for
	// the article identifier.
	ArticleURLTemplate string
	// MaxArticles caps a whole-catalog run; zero means every index row.
	MaxArticles int
}

// Driver feeds the image queue and closes it when discovery ends, which
// is how the rest of the pipeline observes end-of-input.
type Driver struct {
	cfg     Config
	fetcher *fetch.Client
	walker  *walker.Walker
	images  *queue.Queue[verify.ImageDescriptor]
	ledger  *ledger.Ledger
	stats   *stats.Registry
	logger  *zap.Logger
}

// New constructs a Driver.
func New(
	cfg Config,
	fetcher *fetch.Client,
	w *walker.Walker,
	images *queue.Queue[verify.ImageDescriptor],
	led *ledger.Ledger,
	registry *stats.Registry,
	logger *zap.Logger,
) *Driver {
	return &Driver{
		cfg:     cfg,
		fetcher: fetcher,
		walker:  w,
		images:  images,
		ledger:  led,
		stats:   registry,
		logger:  logger,
	}
}

// Catalog scans the whole catalog: fetch the index, walk every article
// document, then close the image queue.
func (d *Driver) Catalog(ctx context.Context) error {
	defer d.images.Close()

	body, err := d.fetcher.Text(d.cfg.IndexURL)
	if err != nil {
		return fmt.Errorf("fetch catalog index: %w", err)
	}
	ids, err := parseIndex(body)
	if err != nil {
		return fmt.Errorf("parse catalog index: %w", err)
	}
	if d.cfg.MaxArticles > 0 && len(ids) > d.cfg.MaxArticles {
		ids = ids[:d.cfg.MaxArticles]
	}
	d.logger.Info("catalog scan starting", zap.Int("articles", len(ids)))

	for _, id := range ids {
		if err := d.walkArticle(ctx, id); err != nil {
			if ctx.Err() != nil {
				return err
			}
			// A broken article document loses that article's images, not
			// the run.
			d.stats.AddError()
			d.ledger.Error(fmt.Sprintf("article discovery failed: %v", err), map[string]any{"article-id": id})
			d.logger.Error("article discovery failed", zap.String("article_id", id), zap.Error(err))
		}
	}
	return nil
}

// Article processes every image in one article, then closes the queue.
func (d *Driver) Article(ctx context.Context, id string) error {
	defer d.images.Close()
	if err := d.walkArticle(ctx, id); err != nil {
		return fmt.Errorf("article %s: %w", id, err)
	}
	return nil
}

// Image enqueues exactly one synthetic descriptor for a directly-named
// image; the metadata fields stay zero-valued.
func (d *Driver) Image(ctx context.Context, rawURL string) error {
	defer d.images.Close()
	desc := verify.ImageDescriptor{
		Source: verify.Source{URI: rawURL},
	}
	if err := d.images.Enqueue(ctx, desc); err != nil {
		return fmt.Errorf("enqueue image: %w", err)
	}
	d.stats.AddDiscovered()
	return nil
}

func (d *Driver) walkArticle(ctx context.Context, id string) error {
	url := fmt.Sprintf(d.cfg.ArticleURLTemplate, id)
	body, err := d.fetcher.Text(url)
	if err != nil {
		return fmt.Errorf("fetch article document: %w", err)
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("decode article document: %w", err)
	}
	return d.walker.Walk(ctx, doc)
}

// parseIndex extracts the article identifiers from the first CSV column.
func parseIndex(body []byte) ([]string, error) {
	reader := csv.NewReader(bytes.NewReader(body))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	var ids []string
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		id := strings.TrimSpace(row[0])
		if id == "" {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
