package stats

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestServerServesRegisteredCounters(t *testing.T) {
	t.Parallel()

	r := New()
	r.AddDiscovered()
	r.AddProcessed()

	s := NewServer("127.0.0.1:0", zap.NewNop())
	require.NoError(t, s.Start())
	defer func() {
		require.NoError(t, s.Shutdown(context.Background()))
	}()
	require.NotEmpty(t, s.Addr())

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "imgcheck_images_discovered_total")
	require.Contains(t, string(body), "imgcheck_images_processed_total")
	require.Contains(t, string(body), "imgcheck_deviations_total")
	require.Contains(t, string(body), "imgcheck_errors_total")
}

func TestServerRejectsUnbindableAddr(t *testing.T) {
	t.Parallel()

	s := NewServer("256.0.0.1:1", zap.NewNop())
	require.Error(t, s.Start())
}
