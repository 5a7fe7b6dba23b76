package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/paperlab/arxiv-harvester/internal/api"
	"github.com/paperlab/arxiv-harvester/internal/arxiv"
	"github.com/paperlab/arxiv-harvester/internal/clock/system"
	"github.com/paperlab/arxiv-harvester/internal/config"
	"github.com/paperlab/arxiv-harvester/internal/fetch"
	"github.com/paperlab/arxiv-harvester/internal/harvest"
	"github.com/paperlab/arxiv-harvester/internal/ledger"
	"github.com/paperlab/arxiv-harvester/internal/scheduler"
	"github.com/paperlab/arxiv-harvester/internal/search"
)

// newCrawlCmd creates the 'crawl' subcommand: enumerate every search
// result submitted in [start, end] and append each record to the run's
// CSV ledger.
func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl <start-date> <end-date>",
		Short: "Enumerate search results for a submission-date range",
		Long: `Submits one advanced-search query per category over the given date
range (YYYY-MM-DD, inclusive). Ranges whose match count reaches the
API's enumeration ceiling are split recursively by submission date;
enumerable ranges are paginated in full. Every parsed record is
appended to result/arxiv_info_<start>_to_<end>.csv.

The command refuses to run if that ledger already holds records.`,
		Args: cobra.ExactArgs(2),
		RunE: runCrawlCommand,
	}
}

// ledgerPath names the run's CSV ledger from its date range.
func ledgerPath(cfg config.Config, r harvest.DateRange) string {
	name := fmt.Sprintf("arxiv_info_%s_to_%s.csv", r.FromString(), r.ToString())
	return filepath.Join(cfg.Output.ResultDir, name)
}

func runCrawlCommand(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	dateRange, err := harvest.NewDateRange(args[0], args[1])
	if err != nil {
		return fmt.Errorf("invalid date range: %w", err)
	}

	sink, err := ledger.Open(ledgerPath(cfg, dateRange), arxiv.Header, logger.Named("ledger"), ledgerOptions(cfg)...)
	if err != nil {
		var exists *ledger.ExistsError
		if errors.As(err, &exists) {
			logger.Error("ledger already holds records, refusing to run",
				zap.String("path", exists.Path),
				zap.Int("records", exists.Records),
			)
		}
		return err
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil {
			logger.Warn("close ledger failed", zap.Error(cerr))
		}
	}()

	assignor, err := buildAssignor(cfg, logger)
	if err != nil {
		return err
	}

	fetcher := fetch.New(fetch.Config{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.SearchTimeout(),
	})
	sched := scheduler.New(fetcher, assignor, scheduler.Config{
		Concurrency: cfg.Crawl.Concurrency,
	}, logger.Named("scheduler"))

	builder := arxiv.NewQueryBuilder(cfg.Crawl.PageSize)
	strategy := search.New(
		search.Config{WindowCap: cfg.Crawl.WindowCap, PageSize: cfg.Crawl.PageSize},
		sched,
		arxiv.NewExtractor(),
		sink,
		scheduler.NewRetryPolicy(cfg.Crawl.MaxRetries),
		builder.Build,
		logger.Named("search"),
	)

	clk := system.New()
	started := clk.Now()
	logger.Info("crawl starting",
		zap.String("range", dateRange.String()),
		zap.Strings("fields", cfg.Crawl.Fields),
		zap.Int("concurrency", cfg.Crawl.Concurrency),
	)
	strategy.Seed(cfg.Crawl.Fields, dateRange)

	if err := runScheduler(cmd.Context(), cfg, sched, logger); err != nil {
		return err
	}

	logger.Info("crawl finished",
		zap.Int("records", sink.Rows()),
		zap.Duration("elapsed", clk.Now().Sub(started)),
	)
	return nil
}

func ledgerOptions(cfg config.Config) []ledger.Option {
	if !cfg.Crawl.DedupCodes {
		return nil
	}
	return []ledger.Option{ledger.WithDedup(0)}
}

// runScheduler drives the work queue to drain, serving the metrics API
// alongside it when enabled.
func runScheduler(ctx context.Context, cfg config.Config, sched *scheduler.Scheduler, logger *zap.Logger) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancel()
		return sched.Run(gctx)
	})
	if cfg.Server.Enabled {
		srv := api.NewServer(sched, system.New(), logger.Named("api"))
		g.Go(func() error {
			logger.Info("metrics server started", zap.Int("port", cfg.Server.Port))
			return srv.Run(gctx, cfg.Server.Port)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run scheduler: %w", err)
	}
	return nil
}
