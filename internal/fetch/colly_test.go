package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/paperlab/arxiv-harvester/internal/harvest"
)

func TestFetch_ReturnsStatusAndBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html>results</html>"))
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "harvester-test"})
	resp, err := f.Fetch(context.Background(), harvest.Request{URL: srv.URL}, harvest.Assignment{})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []byte("<html>results</html>"), resp.Body)
	require.Greater(t, resp.Duration, time.Duration(0))
}

func TestFetch_EncodesQueryParams(t *testing.T) {
	t.Parallel()

	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	params := url.Values{}
	params.Set("terms-0-term", "cs.LG")
	params.Set("start", "200")

	f := New(Config{})
	_, err := f.Fetch(context.Background(), harvest.Request{URL: srv.URL, Params: params}, harvest.Assignment{})
	require.NoError(t, err)
	require.Equal(t, "cs.LG", got.Get("terms-0-term"))
	require.Equal(t, "200", got.Get("start"))
}

func TestFetch_SendsUserAgent(t *testing.T) {
	t.Parallel()

	var agent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "paperlab-harvester/1.0"})
	_, err := f.Fetch(context.Background(), harvest.Request{URL: srv.URL}, harvest.Assignment{})
	require.NoError(t, err)
	require.Equal(t, "paperlab-harvester/1.0", agent)
}

func TestFetch_ServerErrorIsTransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	f := New(Config{})
	_, err := f.Fetch(context.Background(), harvest.Request{URL: srv.URL}, harvest.Assignment{})
	require.Error(t, err)
}

func TestFetch_TimeoutYieldsError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		_, _ = w.Write([]byte("late"))
	}))
	defer srv.Close()

	f := New(Config{Timeout: 50 * time.Millisecond})
	_, err := f.Fetch(context.Background(), harvest.Request{URL: srv.URL}, harvest.Assignment{})
	require.Error(t, err)
}

func TestFetch_ContextCancellation(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	f := New(Config{})
	_, err := f.Fetch(ctx, harvest.Request{URL: srv.URL}, harvest.Assignment{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestFetch_RejectsMalformedProxy(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	_, err := f.Fetch(context.Background(), harvest.Request{URL: "https://example.com"},
		harvest.Assignment{ProxyURL: "http://bad proxy:8080"})
	require.Error(t, err)
}
