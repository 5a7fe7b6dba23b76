// Package search implements the crawl strategy for the paginated search
// API: recursive date-range bisection below the enumeration ceiling and
// page-offset fan-out once a result set is enumerable.
package search

import (
	"context"

	"go.uber.org/zap"

	"github.com/paperlab/arxiv-harvester/internal/harvest"
	"github.com/paperlab/arxiv-harvester/internal/telemetry"
)

// Config holds the API geometry the strategy plans around.
type Config struct {
	// WindowCap is the hard ceiling on enumerable matches; a query at or
	// above it must be narrowed before pagination is reliable.
	WindowCap int
	// PageSize is the fixed number of entries per page.
	PageSize int
}

// Strategy handles completed search fetches. Each invocation decides
// between terminating the branch, bisecting the date range, or fanning
// out the remaining page offsets, and persists whatever the page parsed.
type Strategy struct {
	cfg      Config
	sub      harvest.Submitter
	parser   harvest.PageParser
	sink     harvest.RecordSink
	retry    harvest.Retrier
	newQuery harvest.QueryFactory
	logger   *zap.Logger
}

// New constructs a Strategy.
func New(
	cfg Config,
	sub harvest.Submitter,
	parser harvest.PageParser,
	sink harvest.RecordSink,
	retry harvest.Retrier,
	newQuery harvest.QueryFactory,
	logger *zap.Logger,
) *Strategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Strategy{
		cfg:      cfg,
		sub:      sub,
		parser:   parser,
		sink:     sink,
		retry:    retry,
		newQuery: newQuery,
		logger:   logger,
	}
}

// Seed submits one top-level query per field at offset zero.
func (st *Strategy) Seed(fields []string, r harvest.DateRange) {
	for _, field := range fields {
		st.submit(field, r, 0)
	}
}

func (st *Strategy) submit(field string, r harvest.DateRange, offset int) {
	req := st.newQuery(field, r, offset)
	req.Handler = st.Handle
	st.sub.Submit(req)
}

// Handle is the completion handler attached to every search request.
func (st *Strategy) Handle(_ context.Context, req harvest.Request, resp *harvest.Response, err error) {
	logger := st.logger.With(
		zap.String("field", req.Field),
		zap.String("range", req.Range.String()),
		zap.Int("offset", req.Offset),
	)

	if err != nil {
		if st.retry.Retryable(err, req.Attempt) {
			telemetry.ObserveRetry()
			logger.Warn("transport failure, re-submitting", zap.Int("attempt", req.Attempt), zap.Error(err))
			st.sub.Submit(req.Retried())
		} else {
			logger.Error("transport failure, giving up", zap.Int("attempt", req.Attempt), zap.Error(err))
		}
		return
	}

	page, perr := st.parser.Parse(resp.Body)
	if perr != nil {
		// Malformed bodies are a handler concern, not a transport one;
		// they are logged and the branch ends here.
		logger.Error("unparseable search page", zap.Error(perr))
		return
	}

	if page.NoResults {
		logger.Debug("no results for query")
		return
	}

	if page.Total >= st.cfg.WindowCap {
		if st.bisect(req, page, logger) {
			return
		}
		// A single day whose count still meets the cap cannot be
		// narrowed; enumerate what the window allows instead of
		// looping forever.
		logger.Error("single-day range at window cap, paginating best-effort",
			zap.Int("total", page.Total),
			zap.Int("window_cap", st.cfg.WindowCap),
		)
	}

	st.paginate(req, page, logger)
}

// bisect splits the request's range at the midpoint day and re-submits
// both halves as fresh offset-0 queries. Returns false at the single-day
// floor.
func (st *Strategy) bisect(req harvest.Request, page harvest.Page, logger *zap.Logger) bool {
	lo, hi, ok := req.Range.Bisect()
	if !ok {
		return false
	}
	telemetry.ObserveSplit()
	logger.Info("match count at window cap, splitting range",
		zap.Int("total", page.Total),
		zap.String("low", lo.String()),
		zap.String("high", hi.String()),
	)
	st.submit(req.Field, lo, 0)
	st.submit(req.Field, hi, 0)
	return true
}

// paginate persists the page's rows, fans out the remaining offsets when
// this is the first page, and reconciles the parsed count against the
// expected one.
func (st *Strategy) paginate(req harvest.Request, page harvest.Page, logger *zap.Logger) {
	written := 0
	for _, row := range page.Rows {
		if err := st.sink.Append(row); err != nil {
			logger.Error("append record failed", zap.Error(err))
			continue
		}
		written++
	}
	telemetry.AddRows(written)
	logger.Info("page processed", zap.Int("parsed", len(page.Rows)), zap.Int("written", written))

	if req.Offset == 0 {
		logger.Info("query enumerable", zap.Int("total", page.Total))
		limit := page.Total
		if limit > st.cfg.WindowCap {
			// Offsets at or past the cap are not served.
			limit = st.cfg.WindowCap
		}
		fanned := 0
		for i := st.cfg.PageSize; i < limit; i += st.cfg.PageSize {
			st.submit(req.Field, req.Range, i)
			fanned++
		}
		if fanned > 0 {
			telemetry.AddFanout(fanned)
			logger.Info("fanned out remaining pages", zap.Int("pages", fanned))
		}
	}

	expected := st.cfg.PageSize
	if remainder := page.Total - req.Offset; remainder < expected {
		expected = remainder
	}
	if len(page.Rows) < expected {
		// Best-effort completeness reporting; the job keeps going.
		telemetry.ObserveMismatch()
		logger.Error("page reconciliation mismatch",
			zap.Int("expected", expected),
			zap.Int("parsed", len(page.Rows)),
		)
	}
}
