package crawler

import (
	"time"

	"github.com/nao1215/deadlink/internal/model"
)

// Default retry settings. Both are configurable per crawl.
const (
	// DefaultMaxAttempts is the total number of load attempts per URL,
	// including the first one.
	DefaultMaxAttempts = 3

	// DefaultBaseDelay scales the linear backoff applied before every attempt.
	DefaultBaseDelay = 500 * time.Millisecond

	// DefaultLoadTimeout bounds a single page load.
	DefaultLoadTimeout = 30 * time.Second
)

// RetryPolicy decides whether a failed load is retried and how long to wait
// before each attempt.
//
// Design decision: Only aborted loads are retried because:
// 1. An abort is how servers push back on rapid sequential requests
// 2. A timeout already spent the full wait; repeating it rarely helps
// 3. DNS, TLS and HTTP errors are permanent from the crawler's point of view
type RetryPolicy struct {
	// MaxAttempts is the total attempt budget. Values below 1 are treated as 1.
	MaxAttempts int

	// BaseDelay is multiplied by the attempt number to get the backoff.
	BaseDelay time.Duration
}

// DefaultRetryPolicy returns the policy with the default budget and delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
	}
}

// ShouldRetry reports whether another attempt follows a failure of the given
// kind on the given (1-based) attempt.
func (p RetryPolicy) ShouldRetry(kind model.FailureKind, attempt int) bool {
	if kind != model.FailureAborted {
		return false
	}
	return attempt < p.maxAttempts()
}

// BackoffDelay returns the pause taken before the given (1-based) attempt.
// It applies to the first attempt too, which throttles the crawler even when
// nothing fails.
func (p RetryPolicy) BackoffDelay(attempt int) time.Duration {
	if attempt < 1 || p.BaseDelay <= 0 {
		return 0
	}
	return time.Duration(attempt) * p.BaseDelay
}

func (p RetryPolicy) maxAttempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}
