// Package fetch implements the HTTP fetcher using gocolly.
package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/paperlab/arxiv-harvester/internal/harvest"
)

// Config controls collector behavior.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int
}

// Fetcher implements harvest.Fetcher. Each fetch runs on its own
// collector with its own transport, so concurrent requests never share
// proxy or visit state.
type Fetcher struct {
	cfg Config
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 * 1024 * 1024
	}
	return &Fetcher{cfg: cfg}
}

// Fetch executes a single HTTP GET through the assigned proxy.
func (f *Fetcher) Fetch(ctx context.Context, req harvest.Request, via harvest.Assignment) (*harvest.Response, error) {
	collector, err := f.newCollector(via)
	if err != nil {
		return nil, err
	}

	var (
		result   *harvest.Response
		fetchErr error
	)
	start := time.Now()
	collector.OnResponse(func(r *colly.Response) {
		result = &harvest.Response{
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := runCollector(ctx, collector, targetURL(req)); err != nil {
		return nil, err
	}
	if fetchErr != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.URL, fetchErr)
	}
	if result == nil {
		return nil, fmt.Errorf("fetch %s: no response received", req.URL)
	}
	return result, nil
}

func (f *Fetcher) newCollector(via harvest.Assignment) (*colly.Collector, error) {
	collector := colly.NewCollector(
		colly.Async(false),
		colly.IgnoreRobotsTxt(),
		colly.MaxBodySize(f.cfg.MaxBodyBytes),
	)
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	transport := newHTTPTransport()
	if via.ProxyURL != "" {
		proxyURL, err := url.Parse(via.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy %s: %w", via.ProxyURL, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	collector.WithTransport(transport)
	return collector, nil
}

func runCollector(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("visit %s: %w", url, err)
		}
		return nil
	}
}

func targetURL(req harvest.Request) string {
	if len(req.Params) == 0 {
		return req.URL
	}
	return req.URL + "?" + req.Params.Encode()
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
