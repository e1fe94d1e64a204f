package fetch

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T) (*Client, string) {
	t.Helper()
	root := t.TempDir()
	c, err := New(Config{
		TextCacheDir:  filepath.Join(root, "cache"),
		ImageCacheDir: filepath.Join(root, "image-cache"),
	}, zap.NewNop())
	require.NoError(t, err)
	return c, root
}

func TestTextFetchesAndCaches(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("12345,Article Title\n"))
	}))
	defer srv.Close()

	c, _ := newTestClient(t)
	body, err := c.Text(srv.URL + "/index.csv")
	require.NoError(t, err)
	require.Equal(t, "12345,Article Title\n", string(body))

	// second call must come from the cache
	body, err = c.Text(srv.URL + "/index.csv")
	require.NoError(t, err)
	require.Equal(t, "12345,Article Title\n", string(body))
	require.Equal(t, int64(1), hits.Load())
}

func TestImageMirrorsURLPath(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte{0xFF, 0xD8, 0xFF})
	}))
	defer srv.Close()

	c, root := newTestClient(t)
	path, err := c.Image(srv.URL + "/articles/12345/fig1.jpg")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "image-cache", "articles", "12345", "fig1.jpg"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []byte{0xFF, 0xD8, 0xFF}, data)
}

func TestImageCacheShortCircuitsNetwork(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("network hit despite cached file")
	}))
	defer srv.Close()

	c, root := newTestClient(t)
	cached := filepath.Join(root, "image-cache", "articles", "12345", "fig1.jpg")
	require.NoError(t, os.MkdirAll(filepath.Dir(cached), 0o750))
	require.NoError(t, os.WriteFile(cached, []byte("bytes"), 0o600))

	path, err := c.Image(srv.URL + "/articles/12345/fig1.jpg")
	require.NoError(t, err)
	require.Equal(t, cached, path)
}

func TestImageEmptyCachedFileRefetches(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("fresh"))
	}))
	defer srv.Close()

	c, root := newTestClient(t)
	cached := filepath.Join(root, "image-cache", "articles", "12345", "fig1.jpg")
	require.NoError(t, os.MkdirAll(filepath.Dir(cached), 0o750))
	require.NoError(t, os.WriteFile(cached, nil, 0o600))

	path, err := c.Image(srv.URL + "/articles/12345/fig1.jpg")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "fresh", string(data))
}

func TestGetSurfacesHTTPErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	c, _ := newTestClient(t)
	_, err := c.Image(srv.URL + "/articles/12345/missing.jpg")
	require.Error(t, err)
}

func TestImagePathRejectsPathlessURL(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t)
	_, err := c.ImagePath("https://example.org/")
	require.Error(t, err)
}
