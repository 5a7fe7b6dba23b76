// Package harvest defines core types shared across subsystems.
package harvest

import (
	"context"
	"net/url"
	"time"
)

// Handler receives the outcome of one submitted request exactly once.
// On transport failure resp is nil and err carries the cause; everything
// past the transport boundary (parsing, persistence) is the handler's
// concern.
type Handler func(ctx context.Context, req Request, resp *Response, err error)

// Request is one unit of fetch work. A request is never mutated after
// submission; recursion and pagination derive fresh values instead.
type Request struct {
	ID      string
	URL     string
	Params  url.Values
	Field   string
	Range   DateRange
	Offset  int
	Attempt int
	Binary  bool
	Meta    map[string]string
	Handler Handler
}

// Retried derives an identical request for re-submission after a
// transport failure. Same URL, params and handler; only the attempt
// counter advances.
func (r Request) Retried() Request {
	next := r
	next.Attempt++
	return next
}

// Response is the result of a completed fetch.
type Response struct {
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// Page is the adapter's view of one search-result page.
type Page struct {
	// Total is the match count the API declares for the whole query.
	Total int
	// NoResults reports the API's explicit empty-result marker, which
	// is distinct from a page that merely parsed zero entries.
	NoResults bool
	// Rows holds one serialized record per entry, schema owned by the
	// adapter.
	Rows [][]string
}

// Assignment is the proxy and rate bucket chosen for one dispatch.
type Assignment struct {
	ProxyURL string
	Bucket   int
}
