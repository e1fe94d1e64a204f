// Package walker discovers image records inside decoded article documents.
package walker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tmartin-sci/imgcheck/internal/stats"
	"github.com/tmartin-sci/imgcheck/internal/verify"
)

// EnqueueFunc hands a discovered descriptor to the image queue. It blocks
// while the queue is full, which backpressures discovery.
type EnqueueFunc func(ctx context.Context, desc verify.ImageDescriptor) error

// Walker recursively visits a document tree of decoded JSON values
// (objects, sequences, scalars) and emits one descriptor per image record.
type Walker struct {
	enqueue EnqueueFunc
	stats   *stats.Registry
	logger  *zap.Logger
}

// New constructs a Walker.
func New(enqueue EnqueueFunc, registry *stats.Registry, logger *zap.Logger) *Walker {
	return &Walker{
		enqueue: enqueue,
		stats:   registry,
		logger:  logger,
	}
}

// Walk visits every node of doc. An object node whose "type" field equals
// "image" is extracted and treated as terminal; other objects and every
// sequence are recursed into; scalars end recursion. Document depth is
// bounded by realistic article sizes, so plain recursion is fine.
func (w *Walker) Walk(ctx context.Context, doc any) error {
	switch node := doc.(type) {
	case map[string]any:
		if desc, ok := matchImage(node); ok {
			if err := w.enqueue(ctx, desc); err != nil {
				return fmt.Errorf("enqueue descriptor: %w", err)
			}
			w.stats.AddDiscovered()
			w.logger.Debug("image discovered",
				zap.String("id", desc.ID),
				zap.String("uri", desc.Source.URI),
			)
			return nil
		}
		for _, value := range node {
			if err := w.Walk(ctx, value); err != nil {
				return err
			}
		}
	case []any:
		for _, element := range node {
			if err := w.Walk(ctx, element); err != nil {
				return err
			}
		}
	}
	return nil
}

// matchImage tests the discriminating field and extracts the descriptor
// fields. Missing or mistyped fields zero out rather than failing: the
// processor surfaces unusable descriptors later.
func matchImage(node map[string]any) (verify.ImageDescriptor, bool) {
	if str(node["type"]) != "image" {
		return verify.ImageDescriptor{}, false
	}
	desc := verify.ImageDescriptor{
		Label: str(node["label"]),
		Title: str(node["title"]),
		ID:    str(node["id"]),
	}
	image, _ := node["image"].(map[string]any)
	if size, ok := image["size"].(map[string]any); ok {
		desc.Size = verify.Size{
			Width:  num(size["width"]),
			Height: num(size["height"]),
		}
	}
	if source, ok := image["source"].(map[string]any); ok {
		desc.Source = verify.Source{
			MediaType: str(source["mediaType"]),
			URI:       str(source["uri"]),
			Filename:  str(source["filename"]),
		}
	}
	return desc, true
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func num(v any) int {
	f, _ := v.(float64)
	return int(f)
}
