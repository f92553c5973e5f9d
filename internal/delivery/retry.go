package delivery

import (
	"context"
	"time"
)

// RetryPolicy bounds attempts and spaces them with a progressive backoff
// schedule. Shared by the poll and reminder delivery paths.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     []time.Duration
}

// Delay returns the wait before the given retry (1-based: Delay(1) is the
// pause after the first failed attempt). Past the end of the schedule the
// last entry repeats.
func (p RetryPolicy) Delay(retry int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	if retry < 1 {
		retry = 1
	}
	if retry > len(p.Backoff) {
		retry = len(p.Backoff)
	}
	return p.Backoff[retry-1]
}

// Run invokes fn up to MaxAttempts times, sleeping the scheduled delay
// between attempts. It returns the number of attempts made and the last
// error (nil on success). The backoff sleep is cancellable through ctx; the
// attempt in flight is not interrupted.
func (p RetryPolicy) Run(ctx context.Context, sleep func(context.Context, time.Duration) error, fn func(attempt int) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = fn(attempt); err == nil {
			return attempt, nil
		}
		if attempt == maxAttempts {
			return attempt, err
		}
		if sleepErr := sleep(ctx, p.Delay(attempt)); sleepErr != nil {
			return attempt, sleepErr
		}
	}
	return maxAttempts, err
}

// sleepCtx waits d or returns early with ctx's error.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
