package search

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/paperlab/arxiv-harvester/internal/harvest"
)

type fakeSubmitter struct {
	mu   sync.Mutex
	reqs []harvest.Request
}

func (f *fakeSubmitter) Submit(req harvest.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
}

func (f *fakeSubmitter) submitted() []harvest.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]harvest.Request(nil), f.reqs...)
}

type parserFunc func(body []byte) (harvest.Page, error)

func (p parserFunc) Parse(body []byte) (harvest.Page, error) { return p(body) }

type fakeSink struct {
	mu   sync.Mutex
	rows [][]string
	err  error
}

func (f *fakeSink) Append(row []string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, row)
	return nil
}

type fakeRetrier struct{ allow bool }

func (f fakeRetrier) Retryable(error, int) bool { return f.allow }

func testFactory() harvest.QueryFactory {
	return func(field string, r harvest.DateRange, offset int) harvest.Request {
		return harvest.Request{
			URL:    "https://api.test/search",
			Field:  field,
			Range:  r,
			Offset: offset,
		}
	}
}

func staticPage(page harvest.Page) parserFunc {
	return func([]byte) (harvest.Page, error) { return page, nil }
}

func rows(n int) [][]string {
	out := make([][]string, n)
	for i := range out {
		out[i] = []string{"code", "title"}
	}
	return out
}

func mustRange(t *testing.T, from, to string) harvest.DateRange {
	t.Helper()
	r, err := harvest.NewDateRange(from, to)
	require.NoError(t, err)
	return r
}

func newStrategy(sub *fakeSubmitter, parser harvest.PageParser, sink *fakeSink, logger *zap.Logger) *Strategy {
	return New(
		Config{WindowCap: 10000, PageSize: 200},
		sub,
		parser,
		sink,
		fakeRetrier{allow: true},
		testFactory(),
		logger,
	)
}

func TestStrategy_EnumerableSinglePage(t *testing.T) {
	t.Parallel()

	// total=150 with page size 200: one fetch covers everything, no
	// bisection and no further pagination.
	sub := &fakeSubmitter{}
	sink := &fakeSink{}
	st := newStrategy(sub, staticPage(harvest.Page{Total: 150, Rows: rows(150)}), sink, zap.NewNop())

	req := testFactory()("cs.AI", mustRange(t, "2023-01-01", "2023-01-02"), 0)
	st.Handle(context.Background(), req, &harvest.Response{StatusCode: 200}, nil)

	require.Empty(t, sub.submitted())
	require.Len(t, sink.rows, 150)
}

func TestStrategy_BisectsAtWindowCap(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{}
	sink := &fakeSink{}
	st := newStrategy(sub, staticPage(harvest.Page{Total: 25000}), sink, zap.NewNop())

	full := mustRange(t, "2023-01-01", "2023-03-31")
	req := testFactory()("cs.AI", full, 0)
	st.Handle(context.Background(), req, &harvest.Response{StatusCode: 200}, nil)

	got := sub.submitted()
	require.Len(t, got, 2)
	require.Empty(t, sink.rows, "nothing is persisted while the query is too wide")

	lo, hi := got[0], got[1]
	require.Equal(t, 0, lo.Offset)
	require.Equal(t, 0, hi.Offset)
	require.Equal(t, "cs.AI", lo.Field)
	require.Equal(t, full.FromString(), lo.Range.FromString())
	require.Equal(t, full.ToString(), hi.Range.ToString())
	// Midpoint day is covered by both halves.
	require.Equal(t, lo.Range.ToString(), hi.Range.FromString())
	require.NotNil(t, lo.Handler)
	require.NotNil(t, hi.Handler)
}

func TestStrategy_FanOutOffsets(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{}
	sink := &fakeSink{}
	st := newStrategy(sub, staticPage(harvest.Page{Total: 450, Rows: rows(200)}), sink, zap.NewNop())

	req := testFactory()("cs.DB", mustRange(t, "2023-01-01", "2023-01-31"), 0)
	st.Handle(context.Background(), req, &harvest.Response{StatusCode: 200}, nil)

	got := sub.submitted()
	require.Len(t, got, 2) // ceil(450/200)-1 remaining pages
	require.Equal(t, 200, got[0].Offset)
	require.Equal(t, 400, got[1].Offset)
	for _, r := range got {
		require.Equal(t, "cs.DB", r.Field)
		require.Equal(t, req.Range, r.Range)
	}
	require.Len(t, sink.rows, 200)
}

func TestStrategy_NonFirstPageDoesNotFanOut(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{}
	sink := &fakeSink{}
	st := newStrategy(sub, staticPage(harvest.Page{Total: 450, Rows: rows(200)}), sink, zap.NewNop())

	req := testFactory()("cs.DB", mustRange(t, "2023-01-01", "2023-01-31"), 200)
	st.Handle(context.Background(), req, &harvest.Response{StatusCode: 200}, nil)

	require.Empty(t, sub.submitted())
	require.Len(t, sink.rows, 200)
}

func TestStrategy_NoResultsTerminatesBranch(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{}
	sink := &fakeSink{}
	st := newStrategy(sub, staticPage(harvest.Page{NoResults: true}), sink, zap.NewNop())

	req := testFactory()("cs.AI", mustRange(t, "2023-01-01", "2023-01-31"), 0)
	st.Handle(context.Background(), req, &harvest.Response{StatusCode: 200}, nil)

	require.Empty(t, sub.submitted())
	require.Empty(t, sink.rows)
}

func TestStrategy_ReconciliationMismatchLoggedNotFatal(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.ErrorLevel)
	sub := &fakeSubmitter{}
	sink := &fakeSink{}
	st := newStrategy(sub, staticPage(harvest.Page{Total: 150, Rows: rows(100)}), sink, zap.New(core))

	req := testFactory()("cs.AI", mustRange(t, "2023-01-01", "2023-01-31"), 0)
	st.Handle(context.Background(), req, &harvest.Response{StatusCode: 200}, nil)

	require.Len(t, sink.rows, 100, "whatever parsed is still persisted")
	require.Equal(t, 1, logs.FilterMessage("page reconciliation mismatch").Len())
}

func TestStrategy_SingleDayAtCapPaginatesBestEffort(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.ErrorLevel)
	sub := &fakeSubmitter{}
	sink := &fakeSink{}
	st := newStrategy(sub, staticPage(harvest.Page{Total: 12000, Rows: rows(200)}), sink, zap.New(core))

	req := testFactory()("cs.AI", mustRange(t, "2023-01-01", "2023-01-01"), 0)
	st.Handle(context.Background(), req, &harvest.Response{StatusCode: 200}, nil)

	got := sub.submitted()
	// Offsets stop at the window cap: {200, 400, ..., 9800}.
	require.Len(t, got, 49)
	require.Equal(t, 9800, got[len(got)-1].Offset)
	require.Equal(t, 1, logs.FilterMessage("single-day range at window cap, paginating best-effort").Len())
}

func TestStrategy_TransportErrorRetriedByResubmission(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{}
	sink := &fakeSink{}
	st := newStrategy(sub, staticPage(harvest.Page{}), sink, zap.NewNop())

	req := testFactory()("cs.AI", mustRange(t, "2023-01-01", "2023-01-31"), 0)
	req.Attempt = 2
	st.Handle(context.Background(), req, nil, errors.New("connection reset"))

	got := sub.submitted()
	require.Len(t, got, 1)
	require.Equal(t, 3, got[0].Attempt)
	require.Equal(t, req.Field, got[0].Field)
	require.Equal(t, req.Offset, got[0].Offset)
}

func TestStrategy_TransportErrorNotRetriedWhenPolicyRefuses(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{}
	sink := &fakeSink{}
	st := New(
		Config{WindowCap: 10000, PageSize: 200},
		sub,
		staticPage(harvest.Page{}),
		sink,
		fakeRetrier{allow: false},
		testFactory(),
		zap.NewNop(),
	)

	req := testFactory()("cs.AI", mustRange(t, "2023-01-01", "2023-01-31"), 0)
	st.Handle(context.Background(), req, nil, errors.New("connection reset"))
	require.Empty(t, sub.submitted())
}

func TestStrategy_UnparseableBodyEndsBranch(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{}
	sink := &fakeSink{}
	parser := parserFunc(func([]byte) (harvest.Page, error) {
		return harvest.Page{}, errors.New("not html")
	})
	st := newStrategy(sub, parser, sink, zap.NewNop())

	req := testFactory()("cs.AI", mustRange(t, "2023-01-01", "2023-01-31"), 0)
	st.Handle(context.Background(), req, &harvest.Response{StatusCode: 200}, nil)

	require.Empty(t, sub.submitted())
	require.Empty(t, sink.rows)
}

func TestStrategy_SeedSubmitsOneQueryPerField(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{}
	sink := &fakeSink{}
	st := newStrategy(sub, staticPage(harvest.Page{}), sink, zap.NewNop())

	r := mustRange(t, "2023-01-01", "2023-01-31")
	st.Seed([]string{"cs.AI", "cs.CL", "cs.DB"}, r)

	got := sub.submitted()
	require.Len(t, got, 3)
	for i, field := range []string{"cs.AI", "cs.CL", "cs.DB"} {
		require.Equal(t, field, got[i].Field)
		require.Equal(t, 0, got[i].Offset)
		require.Equal(t, r, got[i].Range)
		require.NotNil(t, got[i].Handler)
	}
}
