package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/paperlab/arxiv-harvester/internal/artifact"
	"github.com/paperlab/arxiv-harvester/internal/clock/system"
	"github.com/paperlab/arxiv-harvester/internal/download"
	"github.com/paperlab/arxiv-harvester/internal/fetch"
	"github.com/paperlab/arxiv-harvester/internal/harvest"
	"github.com/paperlab/arxiv-harvester/internal/scheduler"
)

// newDownloadCmd creates the 'download' subcommand: fetch the PDF for
// every identifier in a prior crawl run's ledger.
func newDownloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download <start-date> <end-date>",
		Short: "Download PDFs for a completed crawl run",
		Long: `Reads the ledger written by 'crawl' for the same date range and fetches
one PDF per unique identifier into the artifact directory. Identifiers
whose PDF is already on disk are skipped, so an interrupted run resumes
where it stopped.`,
		Args: cobra.ExactArgs(2),
		RunE: runDownloadCommand,
	}
}

func runDownloadCommand(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	dateRange, err := harvest.NewDateRange(args[0], args[1])
	if err != nil {
		return fmt.Errorf("invalid date range: %w", err)
	}

	codes, err := download.Codes(ledgerPath(cfg, dateRange))
	if err != nil {
		return err
	}

	store, err := artifact.Open(cfg.Output.PDFDir, logger.Named("artifact"))
	if err != nil {
		return err
	}

	assignor, err := buildAssignor(cfg, logger)
	if err != nil {
		return err
	}

	fetcher := fetch.New(fetch.Config{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.ArtifactTimeout(),
	})
	sched := scheduler.New(fetcher, assignor, scheduler.Config{
		Concurrency: cfg.Crawl.Concurrency,
	}, logger.Named("scheduler"))

	job := download.NewJob(store, sched, scheduler.NewRetryPolicy(cfg.Crawl.MaxRetries), logger.Named("download"))
	clk := system.New()
	started := clk.Now()
	submitted := job.Plan(codes)
	logger.Info("download starting",
		zap.String("range", dateRange.String()),
		zap.Int("identifiers", len(codes)),
		zap.Int("submitted", submitted),
	)
	if submitted == 0 {
		logger.Info("all artifacts already on disk")
		return nil
	}

	if err := runScheduler(cmd.Context(), cfg, sched, logger); err != nil {
		return err
	}

	logger.Info("download finished",
		zap.Int("artifacts", store.Count()),
		zap.Duration("elapsed", clk.Now().Sub(started)),
	)
	return nil
}
