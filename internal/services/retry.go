package services

import (
	"context"
	"fmt"
	"time"
)

const (
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = 2 * time.Second
	defaultRetryMaxDelay  = 10 * time.Second
)

// RetryPolicy retries an operation with exponential backoff. Permanent
// failures (validation, configuration, not found) and context cancellation
// stop the loop immediately.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Sleeper overrides how retry sleeps are performed (useful for tests).
	Sleeper func(time.Duration)
}

// DefaultRetryPolicy returns the retry policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: defaultRetryAttempts,
		BaseDelay:   defaultRetryBaseDelay,
		MaxDelay:    defaultRetryMaxDelay,
	}
}

// RetryPolicyFromMillis builds a policy from configuration values expressed in
// milliseconds, filling defaults for non-positive fields.
func RetryPolicyFromMillis(attempts, baseMS, maxMS int) RetryPolicy {
	policy := DefaultRetryPolicy()
	if attempts > 0 {
		policy.MaxAttempts = attempts
	}
	if baseMS > 0 {
		policy.BaseDelay = time.Duration(baseMS) * time.Millisecond
	}
	if maxMS > 0 {
		policy.MaxDelay = time.Duration(maxMS) * time.Millisecond
	}
	return policy
}

// Do runs fn until it succeeds, exhausts attempts, or hits a permanent error.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !Retryable(err) || attempt == attempts {
			break
		}
		if err := p.sleep(ctx, p.backoffDelay(attempt)); err != nil {
			return err
		}
	}
	if attempts > 1 && Retryable(lastErr) {
		return fmt.Errorf("%s: failed after %d attempts: %w", op, attempts, lastErr)
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

// backoffDelay doubles the base delay per completed attempt, capped at MaxDelay.
func (p RetryPolicy) backoffDelay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = defaultRetryBaseDelay
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}

	delay := base
	for i := 1; i < attempt; i++ {
		if delay > maxDelay/2 {
			delay = maxDelay
			break
		}
		delay *= 2
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

func (p RetryPolicy) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if p.Sleeper != nil {
		p.Sleeper(delay)
		if ctx != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	if ctx == nil {
		<-timer.C
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
