package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errRateLimited = errors.New("429 too many requests")

// quick backs off in microseconds so tests stay fast.
func quick(maxRetries int) Config {
	return Config{
		MaxRetries: maxRetries,
		BaseDelay:  time.Microsecond,
		MaxDelay:   10 * time.Microsecond,
		Multiplier: 2,
	}
}

// failing returns fn that fails with errs in order, then succeeds with the
// attempt number.
func failing(errs ...error) (fn func() (int, error), calls *int) {
	n := 0
	return func() (int, error) {
		n++
		if n <= len(errs) {
			return 0, errs[n-1]
		}
		return n, nil
	}, &n
}

func TestDo(t *testing.T) {
	permanent := errors.New("401 invalid api key")

	tests := []struct {
		name       string
		maxRetries int
		errs       []error
		want       int
		wantCalls  int
		wantErr    error
	}{
		{name: "first try", maxRetries: 3, want: 1, wantCalls: 1},
		{
			name:       "recovers from rate limit",
			maxRetries: 3,
			errs:       []error{Retryable(errRateLimited), Retryable(errRateLimited)},
			want:       3,
			wantCalls:  3,
		},
		{
			name:       "permanent error stops at once",
			maxRetries: 3,
			errs:       []error{permanent},
			wantCalls:  1,
			wantErr:    permanent,
		},
		{
			name:       "permanent after transient",
			maxRetries: 3,
			errs:       []error{Retryable(errRateLimited), permanent},
			wantCalls:  2,
			wantErr:    permanent,
		},
		{
			name:       "out of retries",
			maxRetries: 2,
			errs:       []error{Retryable(errRateLimited), Retryable(errRateLimited), Retryable(errRateLimited)},
			wantCalls:  3,
			wantErr:    errRateLimited,
		},
		{
			name:       "zero retries",
			maxRetries: 0,
			errs:       []error{Retryable(errRateLimited)},
			wantCalls:  1,
			wantErr:    errRateLimited,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, calls := failing(tt.errs...)
			got, err := Do(context.Background(), quick(tt.maxRetries), fn)

			if *calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", *calls, tt.wantCalls)
			}
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("result = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDoReturnsUnwrappedErrorWhenExhausted(t *testing.T) {
	fn, _ := failing(Retryable(errRateLimited), Retryable(errRateLimited))
	_, err := Do(context.Background(), quick(1), fn)
	if IsRetryable(err) {
		t.Errorf("exhausted error should not carry the retryable marker: %#v", err)
	}
	if err != errRateLimited {
		t.Errorf("err = %v, want %v", err, errRateLimited)
	}
}

func TestDoReportsEachRetry(t *testing.T) {
	type call struct {
		attempt int
		err     error
	}
	var seen []call

	cfg := quick(5)
	cfg.OnRetry = func(attempt int, _ time.Duration, err error) {
		seen = append(seen, call{attempt, err})
	}
	fn, _ := failing(Retryable(errRateLimited), Retryable(errRateLimited))
	if _, err := Do(context.Background(), cfg, fn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(seen) != 2 {
		t.Fatalf("OnRetry called %d times, want 2", len(seen))
	}
	for i, c := range seen {
		if c.attempt != i+1 {
			t.Errorf("retry %d reported attempt %d", i, c.attempt)
		}
		if c.err != errRateLimited {
			t.Errorf("retry %d reported %v, want the unwrapped error", i, c.err)
		}
	}
}

func TestDoCancelledBeforeFirstBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := DefaultConfig()
	fn, calls := failing(Retryable(errRateLimited))
	_, err := Do(ctx, cfg, fn)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if *calls != 1 {
		t.Errorf("calls = %d, want 1", *calls)
	}
}

func TestDoCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Do(ctx, Fixed(time.Hour), func() (string, error) {
		return "", Retryable(errRateLimited)
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Do kept sleeping after the deadline")
	}
}

func TestFixedKeepsGoing(t *testing.T) {
	var delays []time.Duration
	cfg := Fixed(time.Microsecond)
	cfg.OnRetry = func(_ int, d time.Duration, _ error) { delays = append(delays, d) }

	errs := make([]error, 12)
	for i := range errs {
		errs[i] = Retryable(errRateLimited)
	}
	fn, _ := failing(errs...)

	got, err := Do(context.Background(), cfg, fn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 13 {
		t.Errorf("succeeded on attempt %d, want 13", got)
	}
	for i, d := range delays {
		if d != time.Microsecond {
			t.Errorf("delay %d = %v, want the fixed delay", i, d)
		}
	}
}

func TestRetryableMarker(t *testing.T) {
	if Retryable(nil) != nil {
		t.Error("Retryable(nil) should be nil")
	}

	err := Retryable(errRateLimited)
	if err.Error() != errRateLimited.Error() {
		t.Errorf("message = %q, want %q", err.Error(), errRateLimited.Error())
	}
	if !errors.Is(err, errRateLimited) {
		t.Error("marker should unwrap to the cause")
	}

	cases := map[string]struct {
		err  error
		want bool
	}{
		"nil":       {nil, false},
		"plain":     {errRateLimited, false},
		"marked":    {err, true},
		"rewrapped": {errors.Join(errors.New("batch 3"), err), true},
	}
	for name, c := range cases {
		if got := IsRetryable(c.err); got != c.want {
			t.Errorf("%s: IsRetryable = %v, want %v", name, got, c.want)
		}
	}
}

func TestBackoff(t *testing.T) {
	cfg := Config{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for attempt, w := range want {
		if got := cfg.backoff(attempt); got != w {
			t.Errorf("backoff(%d) = %v, want %v", attempt, got, w)
		}
	}
}

func TestBackoffJitterStaysInBounds(t *testing.T) {
	cfg := Config{BaseDelay: time.Second, MaxDelay: time.Minute, Multiplier: 1, JitterRatio: 0.25}
	for range 200 {
		d := cfg.backoff(0)
		if d < 750*time.Millisecond || d > 1250*time.Millisecond {
			t.Fatalf("jittered delay %v outside ±25%% of 1s", d)
		}
	}
}

func TestDefaultConfigBacksOffExponentially(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JitterRatio = 0
	if cfg.MaxRetries <= 0 {
		t.Fatalf("MaxRetries = %d, want a positive bound", cfg.MaxRetries)
	}
	if cfg.backoff(1) != 2*cfg.backoff(0) {
		t.Errorf("backoff(1) = %v, want twice %v", cfg.backoff(1), cfg.backoff(0))
	}
}

func TestRateLimiterBurst(t *testing.T) {
	rl := NewRateLimiter(5)
	ctx := context.Background()

	start := time.Now()
	for i := range 5 {
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("burst of 5 took %v", elapsed)
	}
}

func TestRateLimiterFractionalRateAllowsOne(t *testing.T) {
	rl := NewRateLimiter(0.5)
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("first request should pass: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); err == nil {
		t.Error("second request within two seconds should block past the deadline")
	}
}

func TestRateLimiterCancelledContext(t *testing.T) {
	rl := NewRateLimiter(1000)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := rl.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRateLimiterRefills(t *testing.T) {
	rl := NewRateLimiter(20)
	ctx := context.Background()
	for range 20 {
		_ = rl.Wait(ctx)
	}

	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 30*time.Millisecond {
		t.Errorf("wait after refill took %v", elapsed)
	}
}
