package harvest

import (
	"context"
	"time"
)

// Fetcher performs a single HTTP round-trip for a request through the
// assigned proxy.
type Fetcher interface {
	Fetch(ctx context.Context, req Request, via Assignment) (*Response, error)
}

// Assignor selects a proxy and a rate bucket for each outgoing request
// and enforces the bucket's minimum inter-request interval.
type Assignor interface {
	Assign(req Request) Assignment
	Wait(ctx context.Context, a Assignment) error
}

// Submitter enqueues work; handlers use it for recursion, pagination
// fan-out and retries.
type Submitter interface {
	Submit(req Request)
}

// Retrier classifies a fetch failure as worth re-submitting or not.
type Retrier interface {
	Retryable(err error, attempt int) bool
}

// PageParser extracts the declared total and the serialized entries from
// a raw search-result body.
type PageParser interface {
	Parse(body []byte) (Page, error)
}

// RecordSink persists one serialized record per call, append-only.
type RecordSink interface {
	Append(row []string) error
}

// QueryFactory builds a fresh top-level request for a (field, range,
// offset) triple. The wire encoding of the triple belongs to the adapter.
type QueryFactory func(field string, r DateRange, offset int) Request

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
