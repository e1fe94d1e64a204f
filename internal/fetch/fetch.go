// Package fetch retrieves HTTP bodies through an on-disk content cache.
//
// Textual bodies (catalog index, article documents) are cached under one
// flat directory keyed by the escaped URL. Binary images mirror the URL
// path under the image cache so concurrent workers never collide on a
// file, and so review tooling can traverse the tree in article order.
package fetch

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// ErrEmptyBody is returned when a fetch completes without yielding bytes.
var ErrEmptyBody = errors.New("fetch yielded empty body")

// Config controls cache placement and collector behavior.
type Config struct {
	TextCacheDir  string
	ImageCacheDir string
	UserAgent     string
	Timeout       time.Duration
}

// Client fetches and caches HTTP bodies using cloned colly collectors.
type Client struct {
	cfg     Config
	base    *colly.Collector
	timeout time.Duration
	logger  *zap.Logger
}

// New constructs a Client and creates both cache directories.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	for _, dir := range []string{cfg.TextCacheDir, cfg.ImageCacheDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create cache dir %s: %w", dir, err)
		}
	}
	base := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)
	if cfg.UserAgent != "" {
		base.UserAgent = cfg.UserAgent
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	base.SetRequestTimeout(timeout)

	return &Client{cfg: cfg, base: base, timeout: timeout, logger: logger}, nil
}

// Text returns the body at rawURL, reading the text cache first.
func (c *Client) Text(rawURL string) ([]byte, error) {
	path := filepath.Join(c.cfg.TextCacheDir, url.QueryEscape(rawURL))
	if data, err := os.ReadFile(path); err == nil && len(data) > 0 {
		c.logger.Debug("text cache hit", zap.String("url", rawURL))
		return data, nil
	}
	body, err := c.get(rawURL)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, body, 0o600); err != nil {
		return nil, fmt.Errorf("write text cache %s: %w", path, err)
	}
	return body, nil
}

// Image downloads rawURL into the image cache and returns the cache path.
// An already-present non-empty file short-circuits the network call.
func (c *Client) Image(rawURL string) (string, error) {
	path, err := c.ImagePath(rawURL)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		c.logger.Debug("image cache hit", zap.String("url", rawURL))
		return path, nil
	}
	body, err := c.get(rawURL)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("create image dir for %s: %w", path, err)
	}
	if err := os.WriteFile(path, body, 0o600); err != nil {
		return "", fmt.Errorf("write image %s: %w", path, err)
	}
	return path, nil
}

// ImagePath maps rawURL onto its mirrored location in the image cache
// without fetching anything.
func (c *Client) ImagePath(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	trimmed := strings.Trim(u.Path, "/")
	if trimmed == "" {
		return "", fmt.Errorf("url %q has no path to mirror", rawURL)
	}
	return filepath.Join(c.cfg.ImageCacheDir, filepath.FromSlash(trimmed)), nil
}

// get runs one HTTP GET through a cloned collector, capturing the body or
// the transport error.
func (c *Client) get(rawURL string) ([]byte, error) {
	collector := c.base.Clone()
	collector.SetRequestTimeout(c.timeout)

	var (
		body     []byte
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	collector.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = fmt.Errorf("fetch %s (status %d): %w", rawURL, status, err)
	})

	if err := collector.Visit(rawURL); err != nil {
		return nil, fmt.Errorf("visit %s: %w", rawURL, err)
	}
	collector.Wait()

	if fetchErr != nil {
		return nil, fetchErr
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyBody, rawURL)
	}
	return body, nil
}
