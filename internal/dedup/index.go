// Package dedup rebuilds the cross-run deduplication index from a prior
// run's report ledger.
package dedup

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"go.uber.org/zap"
)

// Index maps served-image URIs to the checksum recorded when they were
// last verified. It is built once at startup and read-only afterwards.
//
// The key is the URI alone, not the content checksum, so an unchanged URI
// whose underlying bytes changed between runs is still skipped. That is
// the documented behavior of the report contract; callers wanting
// re-verification delete the report ledger.
type Index struct {
	entries map[string]string
}

// reportLine is the subset of a report record the index needs.
type reportLine struct {
	Message struct {
		MD5    string `json:"md5"`
		Source struct {
			URI string `json:"uri"`
		} `json:"source"`
	} `json:"message"`
}

// Load reads the report ledger at path. A missing file yields an empty
// index, which is the first-run case. Malformed lines are skipped and
// logged once with a count.
func Load(path string, logger *zap.Logger) (*Index, error) {
	idx := &Index{entries: make(map[string]string)}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return idx, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open report ledger %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	malformed := 0
	for scanner.Scan() {
		var line reportLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			malformed++
			continue
		}
		if line.Message.Source.URI == "" {
			malformed++
			continue
		}
		idx.entries[line.Message.Source.URI] = line.Message.MD5
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan report ledger %s: %w", path, err)
	}
	if malformed > 0 {
		logger.Warn("skipped malformed report lines",
			zap.String("path", path),
			zap.Int("count", malformed),
		)
	}
	logger.Info("dedup index loaded", zap.String("path", path), zap.Int("entries", len(idx.entries)))
	return idx, nil
}

// Seen reports whether uri was verified by a prior run, with its recorded
// checksum.
func (i *Index) Seen(uri string) (string, bool) {
	md5, ok := i.entries[uri]
	return md5, ok
}

// Len returns the number of indexed URIs.
func (i *Index) Len() int {
	return len(i.entries)
}
