package scheduler

import (
	"context"
	"errors"
)

// RetryPolicy classifies transport failures for re-submission. Anything
// the fetcher returns as an error is transport-level by contract;
// malformed bodies never reach this policy.
type RetryPolicy struct {
	maxAttempts int
}

// NewRetryPolicy builds a policy. maxAttempts 0 means unbounded, which
// mirrors the search API's flaky-but-eventually-consistent behavior;
// operators can cap it via config.
func NewRetryPolicy(maxAttempts int) *RetryPolicy {
	return &RetryPolicy{maxAttempts: maxAttempts}
}

// Retryable reports whether a failed request should be re-submitted.
// Timeouts and connection resets qualify; a canceled run does not.
func (p *RetryPolicy) Retryable(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if p.maxAttempts > 0 && attempt >= p.maxAttempts {
		return false
	}
	return true
}
