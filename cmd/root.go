// Package cmd defines and implements the CLI commands for the harvester
// executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/paperlab/arxiv-harvester/internal/config"
	"github.com/paperlab/arxiv-harvester/internal/logging"
	"github.com/paperlab/arxiv-harvester/internal/proxy"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Exhaustive crawler for the arXiv advanced-search API.",
		Long: `harvester enumerates every search result in a submission-date range,
splitting the range recursively whenever a query hits the API's
enumeration ceiling, and appends each record to a CSV ledger. A second
command downloads the PDF for every harvested identifier.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: built-in defaults + HARVESTER_* env)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newDownloadCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "harvester: %v\n", err)
		os.Exit(1)
	}
}

// setup loads configuration and builds the run logger, shared by every
// subcommand.
func setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.NewWithFile(cfg.Logging.Development, cfg.Output.LogDir)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

// buildAssignor loads the proxy pool, when one is configured, and builds
// the rotation/rate-bucket assignor.
func buildAssignor(cfg config.Config, logger *zap.Logger) (*proxy.Assignor, error) {
	var proxies []string
	if cfg.Proxy.PoolFile != "" {
		pool, err := proxy.LoadPool(cfg.Proxy.PoolFile)
		if err != nil {
			return nil, err
		}
		proxies = pool
		logger.Info("proxy pool loaded",
			zap.String("file", cfg.Proxy.PoolFile),
			zap.Int("size", len(pool)),
		)
	} else {
		logger.Info("no proxy pool configured, using direct connections")
	}

	return proxy.New(proxy.Config{
		Proxies:  proxies,
		Buckets:  cfg.Proxy.Buckets,
		Interval: cfg.RateInterval(),
	}), nil
}
