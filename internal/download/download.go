// Package download plans and handles the artifact-fetch variant: one PDF
// per identifier harvested by a prior crawl run.
package download

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/paperlab/arxiv-harvester/internal/arxiv"
	"github.com/paperlab/arxiv-harvester/internal/artifact"
	"github.com/paperlab/arxiv-harvester/internal/harvest"
	"github.com/paperlab/arxiv-harvester/internal/telemetry"
)

const codeColumn = "arxiv_code"

// Codes reads the identifier column from a crawl run's ledger, unique
// and in file order.
func Codes(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read ledger header: %w", err)
	}
	col := -1
	for i, name := range header {
		if name == codeColumn {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("ledger %s has no %q column", path, codeColumn)
	}

	var codes []string
	seen := make(map[string]struct{})
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read ledger row: %w", err)
		}
		if col >= len(row) || row[col] == "" {
			continue
		}
		if _, dup := seen[row[col]]; dup {
			continue
		}
		seen[row[col]] = struct{}{}
		codes = append(codes, row[col])
	}
	return codes, nil
}

// Job submits artifact fetches and stores the results.
type Job struct {
	store  *artifact.Store
	sub    harvest.Submitter
	retry  harvest.Retrier
	logger *zap.Logger
}

// NewJob constructs a Job.
func NewJob(store *artifact.Store, sub harvest.Submitter, retry harvest.Retrier, logger *zap.Logger) *Job {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Job{store: store, sub: sub, retry: retry, logger: logger}
}

// Plan submits one fetch per identifier not already on disk and returns
// the number submitted.
func (j *Job) Plan(codes []string) int {
	submitted := 0
	for _, code := range codes {
		if j.store.Seen(code) {
			telemetry.ObserveArtifact("skipped")
			j.logger.Info("artifact already on disk", zap.String("code", code))
			continue
		}
		j.sub.Submit(harvest.Request{
			URL:     arxiv.PDFURL(code),
			Binary:  true,
			Meta:    map[string]string{"code": code},
			Handler: j.Handle,
		})
		submitted++
	}
	return submitted
}

// Handle stores a fetched artifact or re-submits on transport failure.
func (j *Job) Handle(_ context.Context, req harvest.Request, resp *harvest.Response, err error) {
	code := req.Meta["code"]
	logger := j.logger.With(zap.String("code", code))

	if err != nil {
		if j.retry.Retryable(err, req.Attempt) {
			telemetry.ObserveRetry()
			logger.Warn("artifact fetch failed, re-submitting", zap.Int("attempt", req.Attempt), zap.Error(err))
			j.sub.Submit(req.Retried())
		} else {
			telemetry.ObserveArtifact("failed")
			logger.Error("artifact fetch failed, giving up", zap.Int("attempt", req.Attempt), zap.Error(err))
		}
		return
	}

	if perr := j.store.Put(code, resp.Body); perr != nil {
		telemetry.ObserveArtifact("failed")
		logger.Error("store artifact failed", zap.Error(perr))
		return
	}
	telemetry.ObserveArtifact("downloaded")
}
