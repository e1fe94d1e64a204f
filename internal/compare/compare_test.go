package compare

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeTool(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-compare")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o700))
	return path
}

func newRunner(t *testing.T, tool string) *Runner {
	t.Helper()
	return New(Config{
		Tool:        tool,
		Metric:      "PAE",
		SoftTimeout: 5 * time.Second,
		HardTimeout: 10 * time.Second,
	}, zap.NewNop())
}

func TestRunParsesScoreFromStderr(t *testing.T) {
	t.Parallel()

	tool := writeTool(t, `echo "3855 (0.0588235)" >&2`)
	res := newRunner(t, tool).Run(context.Background(), "a.png", "b.png", "diff.png")

	require.False(t, res.Failed)
	require.Equal(t, 1, res.Attempts)
	require.NotNil(t, res.Score)
	require.InDelta(t, 0.0588235, *res.Score, 1e-9)
}

func TestRunTreatsExitOneAsDifferingImages(t *testing.T) {
	t.Parallel()

	tool := writeTool(t, `echo "65535 (1)" >&2; exit 1`)
	res := newRunner(t, tool).Run(context.Background(), "a.png", "b.png", "diff.png")

	require.False(t, res.Failed)
	require.NotNil(t, res.Score)
	require.Equal(t, 1.0, *res.Score)
}

func TestRunRetriesOnceThenDegrades(t *testing.T) {
	t.Parallel()

	tool := writeTool(t, `echo "boom" >&2; exit 2`)
	res := newRunner(t, tool).Run(context.Background(), "a.png", "b.png", "diff.png")

	require.True(t, res.Failed)
	require.Equal(t, 2, res.Attempts)
	require.Nil(t, res.Score)
	require.Contains(t, res.ExitDesc, "exit status 2")
	require.Contains(t, res.Stderr, "boom")
}

func TestRunFailOnceThenSucceed(t *testing.T) {
	t.Parallel()

	marker := filepath.Join(t.TempDir(), "first-attempt")
	tool := writeTool(t,
		`if [ ! -f `+marker+` ]; then touch `+marker+`; exit 2; fi
echo "0 (0)" >&2`)

	res := newRunner(t, tool).Run(context.Background(), "a.png", "b.png", "diff.png")
	require.False(t, res.Failed)
	require.Equal(t, 2, res.Attempts)
	require.NotNil(t, res.Score)
	require.Equal(t, 0.0, *res.Score)
}

func TestRunFailsWhenScoreMissing(t *testing.T) {
	t.Parallel()

	tool := writeTool(t, `echo "no metric here" >&2`)
	res := newRunner(t, tool).Run(context.Background(), "a.png", "b.png", "diff.png")

	require.True(t, res.Failed)
	require.Equal(t, "no score in diagnostic output", res.ExitDesc)
}

func TestRunKillsStalledTool(t *testing.T) {
	t.Parallel()

	tool := writeTool(t, `sleep 30`)
	r := New(Config{
		Tool:        tool,
		SoftTimeout: 100 * time.Millisecond,
		HardTimeout: 300 * time.Millisecond,
	}, zap.NewNop())

	start := time.Now()
	res := r.Run(context.Background(), "a.png", "b.png", "diff.png")
	require.True(t, res.Failed)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestParseScoreRange(t *testing.T) {
	t.Parallel()

	_, ok := parseScore("9 (1.5)")
	require.False(t, ok)
	score, ok := parseScore("9 (0.5)")
	require.True(t, ok)
	require.Equal(t, 0.5, score)
	_, ok = parseScore("")
	require.False(t, ok)
}
