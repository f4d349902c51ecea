package backoff

import (
	"context"
	"errors"
	"math"
	"time"
)

// Policy defines exponential backoff for repeated device calls.
type Policy struct {
	MaxAttempts int           // total attempts including the first one
	BaseDelay   time.Duration // delay before the second attempt
	MaxDelay    time.Duration // upper bound for a single delay
	Multiplier  float64
}

// DefaultPolicy returns 3 attempts with 1s, 2s delays capped at 8s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    8 * time.Second,
		Multiplier:  2.0,
	}
}

// Delay returns the wait after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return min(p.BaseDelay, p.MaxDelay)
	}

	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}

	return time.Duration(delay)
}

// ShouldRetry reports whether another attempt is allowed after `attempt` failures.
func (p Policy) ShouldRetry(attempt int) bool {
	return attempt < p.MaxAttempts
}

// Validate checks if the policy configuration is valid
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return errors.New("MaxAttempts must be at least 1")
	}
	if p.BaseDelay < 0 {
		return errors.New("BaseDelay must be non-negative")
	}
	if p.MaxDelay < p.BaseDelay {
		return errors.New("BaseDelay cannot be greater than MaxDelay")
	}
	if p.Multiplier < 1 {
		return errors.New("Multiplier must be at least 1")
	}
	return nil
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do calls fn until it succeeds, retry returns false for the error, or the
// attempt budget is spent. onRetry (optional) is called before each wait.
// The last error is returned together with the number of failed attempts.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error, retry func(error) bool, onRetry func(attempt int, err error)) (int, error) {
	failures := 0
	for {
		err := fn(ctx)
		if err == nil {
			return failures, nil
		}
		failures++

		if ctx.Err() != nil || (retry != nil && !retry(err)) || !p.ShouldRetry(failures) {
			return failures, err
		}

		if onRetry != nil {
			onRetry(failures, err)
		}

		if sleepErr := Sleep(ctx, p.Delay(failures)); sleepErr != nil {
			return failures, err
		}
	}
}
