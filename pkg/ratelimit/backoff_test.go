package ratelimit

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeClock advances virtual time on every sleep.
type fakeClock struct {
	now   time.Time
	slept []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
	return nil
}

func newTestBackoff(clock *fakeClock) *Backoff {
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	b := NewBackoff(DefaultBackoffConfig(), logger)
	b.SetClock(clock.Now, clock.Sleep)
	return b
}

func response(status int, headers map[string]string) *http.Response {
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	return &http.Response{StatusCode: status, Header: h}
}

func TestBackoff_Observe(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name     string
		resp     *http.Response
		wantWait time.Duration
	}{
		{
			name:     "healthy response does not block",
			resp:     response(http.StatusOK, map[string]string{HeaderRemaining: "100"}),
			wantWait: 0,
		},
		{
			name:     "retry-after 5",
			resp:     response(http.StatusForbidden, map[string]string{HeaderRetryAfter: "5"}),
			wantWait: 5 * time.Second,
		},
		{
			name: "reset 3 seconds out",
			resp: response(http.StatusForbidden, map[string]string{
				HeaderReset: strconv.FormatInt(start.Unix()+3, 10),
			}),
			wantWait: 4 * time.Second,
		},
		{
			name:     "no headers uses fallback",
			resp:     response(http.StatusTooManyRequests, nil),
			wantWait: DefaultFallbackWait,
		},
		{
			name:     "nil response",
			resp:     nil,
			wantWait: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{now: start}
			b := newTestBackoff(clock)

			got := b.Observe(context.Background(), tt.resp)
			if got != tt.wantWait {
				t.Errorf("Observe() = %v, want %v", got, tt.wantWait)
			}

			// The next call can only happen once Observe returns.
			elapsed := clock.now.Sub(start)
			if elapsed < tt.wantWait {
				t.Errorf("virtual time advanced %v, want at least %v", elapsed, tt.wantWait)
			}
			if tt.wantWait == 0 && len(clock.slept) != 0 {
				t.Errorf("unexpected sleeps: %v", clock.slept)
			}
		})
	}
}

func TestBackoff_Observe_RealSleep(t *testing.T) {
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	b := NewBackoff(DefaultBackoffConfig(), logger)

	start := time.Now()
	b.Observe(context.Background(), response(http.StatusForbidden, map[string]string{HeaderRetryAfter: "1"}))
	elapsed := time.Since(start)

	if elapsed < 900*time.Millisecond {
		t.Errorf("Observe() returned after %v, want >= 1s", elapsed)
	}
}

func TestBackoff_Observe_ContextCancelled(t *testing.T) {
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	b := NewBackoff(DefaultBackoffConfig(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	b.Observe(ctx, response(http.StatusForbidden, map[string]string{HeaderRetryAfter: "60"}))

	if time.Since(start) > time.Second {
		t.Error("Observe() should return promptly when the context is cancelled")
	}
}

func TestWait(t *testing.T) {
	if err := Wait(context.Background(), 0); err != nil {
		t.Errorf("Wait(0) error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Wait(ctx, time.Hour); err == nil {
		t.Error("Wait() on cancelled context should return an error")
	}

	start := time.Now()
	if err := Wait(context.Background(), 20*time.Millisecond); err != nil {
		t.Errorf("Wait() error = %v", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("Wait() returned too early")
	}
}
