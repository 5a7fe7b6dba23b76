// Package scheduler implements the bounded-concurrency work queue that
// drives every fetch in a harvest run.
package scheduler

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paperlab/arxiv-harvester/internal/harvest"
	"github.com/paperlab/arxiv-harvester/internal/telemetry"
)

// Config controls Scheduler behavior.
type Config struct {
	Concurrency int
}

// Scheduler dispatches queued requests through the assignor and fetcher
// and invokes each request's handler exactly once. It terminates when
// drained: queue empty and zero fetches in flight, re-evaluated after
// every completion so work enqueued by handlers keeps the run alive.
//
// The scheduler never retries on its own; a retry is an explicit
// re-submission performed by the handler.
type Scheduler struct {
	cfg      Config
	fetcher  harvest.Fetcher
	assignor harvest.Assignor
	logger   *zap.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []harvest.Request
	inflight int
}

// New constructs a Scheduler.
func New(fetcher harvest.Fetcher, assignor harvest.Assignor, cfg Config, logger *zap.Logger) *Scheduler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		cfg:      cfg,
		fetcher:  fetcher,
		assignor: assignor,
		logger:   logger,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Submit enqueues a request. Safe to call from handlers while the
// scheduler is running.
func (s *Scheduler) Submit(req harvest.Request) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	s.mu.Lock()
	s.queue = append(s.queue, req)
	s.mu.Unlock()
	s.cond.Signal()
}

// Drained reports the terminal predicate: nothing queued and nothing in
// flight.
func (s *Scheduler) Drained() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue) == 0 && s.inflight == 0
}

// Run blocks until the scheduler drains or the context finishes. Work
// must be submitted before Run is called; an empty scheduler drains
// immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	// Wake blocked workers when the context ends so they can observe it.
	stop := context.AfterFunc(ctx, func() { s.cond.Broadcast() })
	defer stop()

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			s.work(ctx, index)
		}(i)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Info("scheduler drained")
	return nil
}

func (s *Scheduler) work(ctx context.Context, index int) {
	logger := s.logger.With(zap.Int("worker", index))
	for {
		req, ok := s.next(ctx)
		if !ok {
			return
		}
		s.dispatch(ctx, req, logger)
		s.complete()
	}
}

// next blocks until a request is available, the scheduler drains, or the
// context ends. It marks the returned request in flight under the same
// lock acquisition that dequeues it, so the drained predicate can never
// observe a request in neither state.
func (s *Scheduler) next(ctx context.Context) (harvest.Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) == 0 && s.inflight > 0 && ctx.Err() == nil {
		s.cond.Wait()
	}
	if ctx.Err() != nil || len(s.queue) == 0 {
		s.cond.Broadcast()
		return harvest.Request{}, false
	}
	req := s.queue[0]
	s.queue = s.queue[1:]
	s.inflight++
	return req, true
}

func (s *Scheduler) complete() {
	s.mu.Lock()
	s.inflight--
	drained := len(s.queue) == 0 && s.inflight == 0
	s.mu.Unlock()
	if drained {
		s.cond.Broadcast()
	}
}

func (s *Scheduler) dispatch(ctx context.Context, req harvest.Request, logger *zap.Logger) {
	assignment := s.assignor.Assign(req)
	if err := s.assignor.Wait(ctx, assignment); err != nil {
		// Context ended while waiting for a rate token; the handler
		// still gets its exactly-once invocation.
		s.finish(ctx, req, nil, err, logger)
		return
	}

	resp, err := s.fetcher.Fetch(ctx, req, assignment)
	s.finish(ctx, req, resp, err, logger)
}

func (s *Scheduler) finish(ctx context.Context, req harvest.Request, resp *harvest.Response, err error, logger *zap.Logger) {
	if err != nil {
		telemetry.ObserveFetch("transport_error", 0)
		logger.Warn("fetch failed",
			zap.String("request_id", req.ID),
			zap.String("url", req.URL),
			zap.Int("attempt", req.Attempt),
			zap.Error(err),
		)
	} else {
		telemetry.ObserveFetch("success", resp.Duration)
		logger.Debug("fetch succeeded",
			zap.String("request_id", req.ID),
			zap.String("url", req.URL),
			zap.Int("status", resp.StatusCode),
			zap.Duration("duration", resp.Duration),
		)
	}
	if req.Handler == nil {
		logger.Error("request has no handler", zap.String("request_id", req.ID))
		return
	}
	req.Handler(ctx, req, resp, err)
}
