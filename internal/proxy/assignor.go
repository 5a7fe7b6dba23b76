// Package proxy implements outbound proxy rotation and rate-bucket
// assignment for dispatched requests.
package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/paperlab/arxiv-harvester/internal/harvest"
	"github.com/paperlab/arxiv-harvester/internal/telemetry"
)

// Config controls pool rotation and bucket throttling.
type Config struct {
	// Proxies is the fixed ordered pool. Empty means direct connections.
	Proxies []string
	// Buckets is the number of independent rate buckets. Several buckets
	// let multiple proxies run concurrently while each bucket still
	// honors the interval.
	Buckets int
	// Interval is the minimum time between two requests in one bucket.
	Interval time.Duration
}

// Assignor selects a proxy by strict round-robin and a bucket at random
// for every dispatch. The cursor is initialized once and only ever
// advances, wrapping modulo the pool size.
type Assignor struct {
	mu       sync.Mutex
	proxies  []string
	cursor   int
	limiters []*rate.Limiter
}

// New constructs an Assignor.
func New(cfg Config) *Assignor {
	if cfg.Buckets <= 0 {
		cfg.Buckets = 1
	}
	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}
	limiters := make([]*rate.Limiter, cfg.Buckets)
	for i := range limiters {
		limiters[i] = rate.NewLimiter(limit, 1)
	}
	return &Assignor{
		proxies:  cfg.Proxies,
		limiters: limiters,
	}
}

// LoadPool reads the static proxy pool from a JSON array file.
func LoadPool(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read proxy pool %s: %w", path, err)
	}
	var proxies []string
	if err := json.Unmarshal(data, &proxies); err != nil {
		return nil, fmt.Errorf("decode proxy pool %s: %w", path, err)
	}
	return proxies, nil
}

// Assign picks the next proxy in rotation and a pseudo-random bucket.
// No proxy/bucket affinity is kept across retries of the same request.
func (a *Assignor) Assign(_ harvest.Request) harvest.Assignment {
	var proxyURL string
	a.mu.Lock()
	if len(a.proxies) > 0 {
		proxyURL = a.proxies[a.cursor]
		a.cursor = (a.cursor + 1) % len(a.proxies)
	}
	a.mu.Unlock()

	return harvest.Assignment{
		ProxyURL: proxyURL,
		Bucket:   rand.IntN(len(a.limiters)),
	}
}

// Wait blocks until the assigned bucket allows another request.
func (a *Assignor) Wait(ctx context.Context, assignment harvest.Assignment) error {
	if assignment.Bucket < 0 || assignment.Bucket >= len(a.limiters) {
		return fmt.Errorf("bucket %d out of range", assignment.Bucket)
	}
	start := time.Now()
	if err := a.limiters[assignment.Bucket].Wait(ctx); err != nil {
		return fmt.Errorf("rate bucket wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		telemetry.ObserveRateWait(waited)
	}
	return nil
}

// PoolSize returns the number of configured proxies.
func (a *Assignor) PoolSize() int {
	return len(a.proxies)
}
