// Package cmd defines the CLI for the imgcheck executable.
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tmartin-sci/imgcheck/internal/app"
	"github.com/tmartin-sci/imgcheck/internal/config"
	"github.com/tmartin-sci/imgcheck/internal/logging"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "imgcheck [article-id | image-url]",
		Short: "Verifies published article images against their canonical originals.",
		Long: `imgcheck walks article documents for image records, downloads each
served image alongside its canonical original, and runs a pixel
comparison between the two. Results land in append-only JSON ledgers
under logs/, which also seed the next run's deduplication index.

With no argument the whole catalog is scanned. A URL argument verifies
exactly that image; a positive integer verifies every image in that
article.`,
		Args:         cobra.ArbitraryArgs,
		SilenceUsage: true,
		RunE:         runVerify,
	}
	cmd.Flags().StringVar(&cfgFile, "config", "", "config file (default: built-in defaults plus IMGCHECK_* env)")
	return cmd
}

func runVerify(cmd *cobra.Command, args []string) error {
	// Argument classification is the one fatal check: it fires before any
	// component starts.
	target, err := app.ParseTarget(args)
	if err != nil {
		_ = cmd.Usage()
		return err
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	a, err := app.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("init pipeline: %w", err)
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			logger.Warn("ledger close failed", zap.Error(cerr))
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return a.Run(ctx, target)
}

// Execute is the entry point invoked by main.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
