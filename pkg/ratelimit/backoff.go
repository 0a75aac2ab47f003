package ratelimit

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit backoff.
var (
	rateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "census_rate_limit_remaining",
		Help: "Requests remaining in the current GitHub rate limit window",
	})

	backoffsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "census_backoffs_total",
		Help: "Total number of throttled responses by the header that determined the wait",
	}, []string{"source"})

	backoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "census_backoff_seconds",
		Help:    "Time spent sleeping after throttled responses",
		Buckets: []float64{1, 5, 10, 30, 60, 300, 900, 3600},
	})
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Wait blocks for d or until ctx is done, whichever comes first.
// It is the politeness delay used between API calls.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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

// BackoffConfig holds the backoff configuration.
type BackoffConfig struct {
	// FallbackWait applies when a throttled response has no timing headers.
	FallbackWait time.Duration
}

// DefaultBackoffConfig returns the conservative defaults.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		FallbackWait: DefaultFallbackWait,
	}
}

// Backoff blocks callers after throttled responses. It reacts after the
// fact and never prevents a call.
type Backoff struct {
	config BackoffConfig
	logger zerolog.Logger
	now    func() time.Time
	sleep  SleepFunc
}

// NewBackoff creates a new backoff.
func NewBackoff(cfg BackoffConfig, logger zerolog.Logger) *Backoff {
	if cfg.FallbackWait <= 0 {
		cfg.FallbackWait = DefaultFallbackWait
	}

	return &Backoff{
		config: cfg,
		logger: logger,
		now:    time.Now,
		sleep:  Wait,
	}
}

// SetClock replaces the clock and sleep function (for testing).
func (b *Backoff) SetClock(now func() time.Time, sleep SleepFunc) {
	if now != nil {
		b.now = now
	}
	if sleep != nil {
		b.sleep = sleep
	}
}

// Observe inspects a response and, if it signals throttling, sleeps for
// the cooldown before returning. It never fails; a cancelled context cuts
// the sleep short. The returned duration is the wait that was requested.
func (b *Backoff) Observe(ctx context.Context, resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}

	signal := ParseSignal(resp.StatusCode, resp.Header)
	if signal.Remaining >= 0 {
		rateLimitRemaining.Set(float64(signal.Remaining))
	}

	if !signal.Throttled {
		return 0
	}

	wait := signal.Wait(b.now(), b.config.FallbackWait)

	backoffsTotal.WithLabelValues(signal.Source()).Inc()
	backoffSeconds.Observe(wait.Seconds())

	b.logger.Warn().
		Int("status", resp.StatusCode).
		Str("source", signal.Source()).
		Dur("wait", wait).
		Int("remaining", signal.Remaining).
		Msg("GitHub rate limit hit - backing off")

	if err := b.sleep(ctx, wait); err != nil {
		b.logger.Warn().Err(err).Msg("Backoff interrupted")
	}

	return wait
}
