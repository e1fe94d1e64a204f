// Package compare invokes the external pixel-difference tool and extracts
// its peak-error score.
package compare

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// maxAttempts bounds the retry loop: one automatic retry after a failed
// attempt, never more.
const maxAttempts = 2

// The tool prints the normalized metric in parentheses on stderr,
// e.g. "3855 (0.0588235)".
var scorePattern = regexp.MustCompile(`\(([0-9.eE+-]+)\)`)

// Config controls tool invocation.
type Config struct {
	// Tool is the comparison binary, e.g. ImageMagick's "compare".
	Tool string
	// Metric is the difference metric passed to the tool.
	Metric string
	// SoftTimeout is when the tool is asked to terminate.
	SoftTimeout time.Duration
	// HardTimeout is when the tool is killed outright.
	HardTimeout time.Duration
}

// Result is the outcome of a comparison, degraded or not. A nil Score with
// Failed set means both attempts ended in a non-success exit; the
// diagnostic fields then carry the final attempt's context.
type Result struct {
	Score    *float64
	Failed   bool
	Attempts int
	ExitDesc string
	Stdout   string
	Stderr   string
}

// Runner executes comparisons.
type Runner struct {
	cfg    Config
	logger *zap.Logger
}

// New constructs a Runner, applying defaults for zero config values.
func New(cfg Config, logger *zap.Logger) *Runner {
	if cfg.Tool == "" {
		cfg.Tool = "compare"
	}
	if cfg.Metric == "" {
		cfg.Metric = "PAE"
	}
	if cfg.SoftTimeout <= 0 {
		cfg.SoftTimeout = 20 * time.Second
	}
	if cfg.HardTimeout <= cfg.SoftTimeout {
		cfg.HardTimeout = 2 * cfg.SoftTimeout
	}
	return &Runner{cfg: cfg, logger: logger}
}

// Run compares originalPath against servedPath, writing the visual diff to
// diffPath. It retries exactly once on a non-success exit; after a second
// failure it returns a degraded Result rather than an error, because the
// job still produces a report record.
func (r *Runner) Run(ctx context.Context, originalPath, servedPath, diffPath string) Result {
	var last Result
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		last = r.runOnce(ctx, originalPath, servedPath, diffPath)
		last.Attempts = attempt
		if !last.Failed {
			return last
		}
		r.logger.Warn("comparison attempt failed",
			zap.Int("attempt", attempt),
			zap.String("exit", last.ExitDesc),
			zap.String("original", originalPath),
			zap.String("served", servedPath),
		)
	}
	return last
}

func (r *Runner) runOnce(ctx context.Context, originalPath, servedPath, diffPath string) Result {
	softCtx, cancel := context.WithTimeout(ctx, r.cfg.SoftTimeout)
	defer cancel()

	cmd := exec.CommandContext(softCtx, r.cfg.Tool, "-metric", r.cfg.Metric, originalPath, servedPath, diffPath)
	// Ask nicely at the soft deadline, kill at the hard one.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = r.cfg.HardTimeout - r.cfg.SoftTimeout

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if failed, desc := classifyExit(err); failed {
		res.Failed = true
		res.ExitDesc = desc
		return res
	}

	score, ok := parseScore(stderr.String())
	if !ok {
		res.Failed = true
		res.ExitDesc = "no score in diagnostic output"
		return res
	}
	res.Score = &score
	return res
}

// classifyExit maps a Run error onto the failure taxonomy. The tool exits
// 1 when the images differ, which is a successful capture, not a failure.
func classifyExit(err error) (bool, string) {
	if err == nil {
		return false, ""
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.ExitCode() == 1 {
			return false, ""
		}
		return true, exitErr.String()
	}
	return true, err.Error()
}

// parseScore extracts the normalized score and checks its range.
func parseScore(diagnostic string) (float64, bool) {
	m := scorePattern.FindStringSubmatch(diagnostic)
	if m == nil {
		return 0, false
	}
	score, err := strconv.ParseFloat(m[1], 64)
	if err != nil || score < 0 || score > 1 {
		return 0, false
	}
	return score, true
}

// Describe renders the command line for diagnostics.
func (r *Runner) Describe(originalPath, servedPath, diffPath string) string {
	return fmt.Sprintf("%s -metric %s %s %s %s", r.cfg.Tool, r.cfg.Metric, originalPath, servedPath, diffPath)
}
