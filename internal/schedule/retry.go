package schedule

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"stockwatch/internal/model"
)

// RetryPolicy implements §4.6's retry/backoff rule: transient errors
// (dns, connect, timeout, server_error) retry with exponential backoff
// retry_delay·2^n ± 25% jitter for n in [0, max_retries]; blocked errors do
// not retry within the same tick. blockedBackoff is stored on the policy but
// not applied: nothing defers a blocked item's next poll.
type RetryPolicy struct {
	retryDelay     time.Duration
	maxRetries     int
	blockedBackoff time.Duration
	sleep          func(d time.Duration)
	classify       func(err error) model.ErrorKind
}

// NewRetryPolicy builds a policy. classify extracts the ErrorKind from a
// poll error so the policy can distinguish transient from permanent/blocked
// failures without depending on internal/fetch directly.
func NewRetryPolicy(retryDelay time.Duration, maxRetries int, blockedBackoff time.Duration, sleep func(time.Duration), classify func(error) model.ErrorKind) *RetryPolicy {
	return &RetryPolicy{
		retryDelay:     retryDelay,
		maxRetries:     maxRetries,
		blockedBackoff: blockedBackoff,
		sleep:          sleep,
		classify:       classify,
	}
}

// Do runs fn, retrying transient failures per the backoff schedule. A
// blocked error is returned immediately without retrying; neither Do nor
// the poller defers the item's next due time.
func (p *RetryPolicy) Do(ctx context.Context, item model.Item, fn func() error) error {
	var lastErr error
	for n := 0; n <= p.maxRetries; n++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		kind := p.classify(err)
		if kind == model.ErrorKindBlocked {
			return err
		}
		if !kind.Transient() || n == p.maxRetries {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		p.sleep(p.backoffDelay(n))
	}
	return lastErr
}

// backoffDelay computes retry_delay·2^n with ±25% jitter (§4.6).
func (p *RetryPolicy) backoffDelay(attempt int) time.Duration {
	base := float64(p.retryDelay) * math.Pow(2, float64(attempt))
	jitter := base * (0.75 + rand.Float64()*0.5) // ±25%
	return time.Duration(jitter)
}
