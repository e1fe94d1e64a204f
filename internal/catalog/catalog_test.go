package catalog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tmartin-sci/imgcheck/internal/fetch"
	"github.com/tmartin-sci/imgcheck/internal/ledger"
	"github.com/tmartin-sci/imgcheck/internal/queue"
	"github.com/tmartin-sci/imgcheck/internal/stats"
	"github.com/tmartin-sci/imgcheck/internal/verify"
	"github.com/tmartin-sci/imgcheck/internal/walker"
)

const articleDoc = `{
	"id": "%s",
	"body": [
		{"type":"image","id":"%s-fig1","image":{"source":{"uri":"http://x/%s/fig1.jpg"}}},
		{"type":"paragraph","text":"words"}
	]
}`

func catalogServer(t *testing.T, index string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/index.csv", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(index))
	})
	mux.HandleFunc("/articles/", func(w http.ResponseWriter, r *http.Request) {
		id := filepath.Base(r.URL.Path)
		if id == "666" {
			http.Error(w, "broken", http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, articleDoc, id, id, id)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type driverHarness struct {
	driver   *Driver
	images   *queue.Queue[verify.ImageDescriptor]
	registry *stats.Registry
	led      *ledger.Ledger
	logsDir  string
}

func newDriver(t *testing.T, srvURL string, maxArticles int) *driverHarness {
	t.Helper()
	root := t.TempDir()
	fetcher, err := fetch.New(fetch.Config{
		TextCacheDir:  filepath.Join(root, "cache"),
		ImageCacheDir: filepath.Join(root, "image-cache"),
	}, zap.NewNop())
	require.NoError(t, err)

	logsDir := filepath.Join(root, "logs")
	led, err := ledger.Open(logsDir, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = led.Close() })

	images := queue.New[verify.ImageDescriptor](100)
	registry := stats.New()
	w := walker.New(images.Enqueue, registry, zap.NewNop())
	d := New(Config{
		IndexURL:           srvURL + "/index.csv",
		ArticleURLTemplate: srvURL + "/articles/%s",
		MaxArticles:        maxArticles,
	}, fetcher, w, images, led, registry, zap.NewNop())
	return &driverHarness{driver: d, images: images, registry: registry, led: led, logsDir: logsDir}
}

func drain(t *testing.T, images *queue.Queue[verify.ImageDescriptor]) []verify.ImageDescriptor {
	t.Helper()
	var all []verify.ImageDescriptor
	for {
		desc, err := images.Dequeue(context.Background())
		if errors.Is(err, queue.ErrClosed) {
			return all
		}
		require.NoError(t, err)
		all = append(all, desc)
	}
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)
	defer f.Close()
	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		n++
	}
	require.NoError(t, scanner.Err())
	return n
}

func TestCatalogWalksEveryIndexedArticle(t *testing.T) {
	t.Parallel()

	srv := catalogServer(t, "12345,First Article\n67890,Second Article\n")
	h := newDriver(t, srv.URL, 0)

	require.NoError(t, h.driver.Catalog(context.Background()))
	descs := drain(t, h.images)
	require.Len(t, descs, 2)
	require.Equal(t, "12345-fig1", descs[0].ID)
	require.Equal(t, "67890-fig1", descs[1].ID)
	require.Equal(t, int64(2), h.registry.Discovered())
}

func TestCatalogHonorsMaxArticles(t *testing.T) {
	t.Parallel()

	srv := catalogServer(t, "1,a\n2,b\n3,c\n")
	h := newDriver(t, srv.URL, 2)

	require.NoError(t, h.driver.Catalog(context.Background()))
	require.Len(t, drain(t, h.images), 2)
}

func TestCatalogSkipsBrokenArticleAndLedgersIt(t *testing.T) {
	t.Parallel()

	srv := catalogServer(t, "12345,good\n666,broken\n67890,good\n")
	h := newDriver(t, srv.URL, 0)

	require.NoError(t, h.driver.Catalog(context.Background()))
	descs := drain(t, h.images)
	require.Len(t, descs, 2)
	require.Equal(t, int64(1), h.registry.Snapshot().Errors)

	require.NoError(t, h.led.Close())
	require.Equal(t, 1, countLines(t, filepath.Join(h.logsDir, "error.json")))
}

func TestArticleWalksOneDocument(t *testing.T) {
	t.Parallel()

	srv := catalogServer(t, "")
	h := newDriver(t, srv.URL, 0)

	require.NoError(t, h.driver.Article(context.Background(), "12345"))
	descs := drain(t, h.images)
	require.Len(t, descs, 1)
	require.Equal(t, "http://x/12345/fig1.jpg", descs[0].Source.URI)
	require.Equal(t, int64(1), h.registry.Discovered())
}

func TestArticleFailureClosesQueue(t *testing.T) {
	t.Parallel()

	srv := catalogServer(t, "")
	h := newDriver(t, srv.URL, 0)

	require.Error(t, h.driver.Article(context.Background(), "666"))
	require.Empty(t, drain(t, h.images)) // closed, not wedged
}

func TestImageEnqueuesOneSyntheticDescriptor(t *testing.T) {
	t.Parallel()

	srv := catalogServer(t, "")
	h := newDriver(t, srv.URL, 0)

	require.NoError(t, h.driver.Image(context.Background(), "http://x/direct.jpg"))
	descs := drain(t, h.images)
	require.Len(t, descs, 1)
	require.Equal(t, verify.ImageDescriptor{
		Source: verify.Source{URI: "http://x/direct.jpg"},
	}, descs[0])
	require.Equal(t, int64(1), h.registry.Discovered())
}

func TestParseIndexSkipsBlankRows(t *testing.T) {
	t.Parallel()

	ids, err := parseIndex([]byte("12345,Title\n\n ,\n67890,Other\n"))
	require.NoError(t, err)
	require.Equal(t, []string{"12345", "67890"}, ids)
}
