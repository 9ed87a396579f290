// Package retry runs provider calls with backoff and paces outgoing requests.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	clog "github.com/xrsl/solvx/pkg/log"
)

// Config controls how Do backs off between attempts.
type Config struct {
	// MaxRetries caps the retries after the first attempt. A negative value
	// retries until fn succeeds or ctx is done.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	// JitterRatio spreads each delay by up to ±ratio of its value.
	JitterRatio float64

	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultConfig suits classification calls to a chat provider.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2,
		JitterRatio: 0.1,
	}
}

// Fixed waits delay between attempts and keeps going while errors are
// retryable. The embed stage uses it for rate-limited batches.
func Fixed(delay time.Duration) Config {
	return Config{MaxRetries: -1, BaseDelay: delay, MaxDelay: delay, Multiplier: 1}
}

// RetryableError marks a transient failure.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }

func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable marks err as transient. A nil err stays nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err, or anything it wraps, was marked with
// Retryable.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// Do calls fn until it succeeds, returns an error not marked Retryable, runs
// out of retries or ctx is done. The error returned after the last retry is
// the underlying one, without the Retryable marker.
func Do[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}

		var re *RetryableError
		if !errors.As(err, &re) {
			clog.Debug("giving up on permanent error", "error", err)
			return zero, err
		}
		if cfg.MaxRetries >= 0 && attempt >= cfg.MaxRetries {
			return zero, re.Err
		}

		wait := cfg.backoff(attempt)
		clog.Debug("transient error, backing off",
			"attempt", attempt+1,
			"delay", wait,
			"error", re.Err,
		)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, wait, re.Err)
		}

		if err := sleep(ctx, wait); err != nil {
			return zero, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
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

// backoff is BaseDelay·Multiplier^attempt, capped at MaxDelay, then jittered.
func (c Config) backoff(attempt int) time.Duration {
	d := float64(c.BaseDelay) * math.Pow(c.Multiplier, float64(attempt))
	if c.MaxDelay > 0 {
		d = math.Min(d, float64(c.MaxDelay))
	}
	if c.JitterRatio > 0 {
		d += d * c.JitterRatio * (2*rand.Float64() - 1)
	}
	return time.Duration(d)
}

// RateLimiter paces requests to a provider. It starts with a full bucket.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter allows rps requests per second with a burst of
// ceil(rps), at least one.
func NewRateLimiter(rps float64) *RateLimiter {
	burst := max(int(math.Ceil(rps)), 1)
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until a request may proceed. It returns ctx.Err() when ctx
// ends first.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.limiter.Allow() {
		return nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}
