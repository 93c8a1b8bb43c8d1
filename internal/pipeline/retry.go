package pipeline

import (
	"time"
)

// RetryPolicy decides, on stage failure, whether a job remains
// retryable and when the next attempt becomes eligible. It never
// schedules the retry itself; a retry only happens on an explicit
// retry() call.
type RetryPolicy struct {
	MaxRetries int
	// Delays is indexed by min(retryCount, len(Delays))-1. The table is
	// monotonically non-decreasing; later tiers may plateau.
	Delays []time.Duration
}

// RetryDecision is the outcome of one failure.
type RetryDecision struct {
	RetryCount  int
	CanRetry    bool
	NextRetryAt time.Time
}

// Next computes the decision for a failure occurring after retryCount
// previous retries.
func (p RetryPolicy) Next(retryCount int, now time.Time) RetryDecision {
	count := retryCount + 1
	if count > p.MaxRetries {
		count = p.MaxRetries
	}
	d := RetryDecision{RetryCount: count}
	if count >= p.MaxRetries || len(p.Delays) == 0 {
		return d
	}
	idx := count
	if idx > len(p.Delays) {
		idx = len(p.Delays)
	}
	d.CanRetry = true
	d.NextRetryAt = now.Add(p.Delays[idx-1])
	return d
}
