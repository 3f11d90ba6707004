package reminder

import (
	"context"
	"time"

	apperrors "expiry-reminders/internal/common/errors"
)

// RetryPolicy bounds the adapter calls made for one tuple within a run.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    10 * time.Second,
	}
}

// Delay returns the wait before retry number n (1-based): base * 2^(n-1),
// capped at MaxDelay.
func (p RetryPolicy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	delay := p.BaseDelay
	for i := 1; i < n; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// backoff is Delay(n), stretched to any wait the provider asked for in err.
func (p RetryPolicy) backoff(n int, err error) time.Duration {
	delay := p.Delay(n)
	if after := apperrors.RetryAfter(err); after > delay {
		return after
	}
	return delay
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempt
// budget is spent or ctx ends. It returns the number of calls made and the
// last error.
func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = fn(ctx); err == nil {
			return attempt, nil
		}
		if !apperrors.IsRetryable(err) || attempt == maxAttempts {
			return attempt, err
		}

		timer := time.NewTimer(p.backoff(attempt, err))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return attempt, err
		}
	}
	return maxAttempts, err
}
