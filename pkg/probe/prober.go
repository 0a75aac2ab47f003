// Package probe finds the current upper bound of the repository id space
// with an exponential search followed by a binary search over a cheap
// existence check.
package probe

import (
	"context"
	"math"
	"time"

	"github.com/Sternrassler/repo-star-census/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for boundary probing.
var (
	probeCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "census_probe_calls_total",
		Help: "Total existence probes by result",
	}, []string{"result"})

	maxIDGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "census_max_id",
		Help: "Largest repository id found by the last boundary search",
	})
)

// Hint constants.
const (
	// DefaultHint is the starting point of a first run.
	DefaultHint int64 = 500_000_000

	// minResumeMargin is the smallest distance above the resume cursor
	// a derived hint starts at.
	minResumeMargin int64 = 10_000

	// resumeMarginPercent of the resume cursor is added to derive the hint.
	resumeMarginPercent int64 = 5
)

// DefaultDelay is the pause between two probes.
const DefaultDelay = 30 * time.Millisecond

// Func reports whether at least one repository exists with id >= id.
// Failures must be reported as false.
type Func func(ctx context.Context, id int64) bool

// Config holds the prober configuration.
type Config struct {
	// Delay between consecutive probes.
	Delay time.Duration
}

// DefaultConfig returns the default prober configuration.
func DefaultConfig() Config {
	return Config{Delay: DefaultDelay}
}

// Prober runs the boundary search.
type Prober struct {
	probe  Func
	config Config
	logger zerolog.Logger
	calls  int
}

// New creates a prober over probe.
func New(probe Func, cfg Config, logger zerolog.Logger) *Prober {
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}
	return &Prober{
		probe:  probe,
		config: cfg,
		logger: logger,
	}
}

// FindMaxID returns the greatest id for which the probe holds, assuming
// the probe is true for every id up to some K and false above it. The
// search starts at hint (values < 1 start at 1). A failed probe counts as
// negative, so network trouble biases the result downwards. The only
// error returned is the context's.
func (p *Prober) FindMaxID(ctx context.Context, hint int64) (int64, error) {
	start := time.Now()
	p.calls = 0

	low := int64(0)
	high := hint
	if high < 1 {
		high = 1
	}

	// Exponential phase: probe(low) holds (vacuously for 0), probe(high) fails on exit.
	for {
		ok, err := p.check(ctx, high)
		if err != nil {
			return 0, err
		}
		if !ok {
			break
		}
		low = high
		if high > math.MaxInt64/2 {
			high = math.MaxInt64
			break
		}
		high *= 2
	}

	p.logger.Debug().
		Int64("low", low).
		Int64("high", high).
		Int("probes", p.calls).
		Msg("Boundary bracketed")

	// Binary phase keeps the same invariant until the interval closes.
	for low+1 < high {
		mid := low + (high-low)/2
		ok, err := p.check(ctx, mid)
		if err != nil {
			return 0, err
		}
		if ok {
			low = mid
		} else {
			high = mid
		}
	}

	maxID := high - 1
	maxIDGauge.Set(float64(maxID))

	p.logger.Info().
		Int64("hint", hint).
		Int64("max_id", maxID).
		Int("probes", p.calls).
		Dur("duration", time.Since(start)).
		Msg("Boundary search complete")

	return maxID, nil
}

// Calls returns the number of probes issued by the last search.
func (p *Prober) Calls() int {
	return p.calls
}

func (p *Prober) check(ctx context.Context, id int64) (bool, error) {
	if p.calls > 0 {
		if err := ratelimit.Wait(ctx, p.config.Delay); err != nil {
			return false, err
		}
	} else if err := ctx.Err(); err != nil {
		return false, err
	}

	p.calls++
	ok := p.probe(ctx, id)
	if ok {
		probeCallsTotal.WithLabelValues("hit").Inc()
	} else {
		probeCallsTotal.WithLabelValues("miss").Inc()
	}
	return ok, nil
}

// Hint derives the starting point of the search from the resume cursor:
// a little above the last seen id when resuming, DefaultHint otherwise.
func Hint(lastSeenID int64) int64 {
	if lastSeenID <= 0 {
		return DefaultHint
	}
	margin := lastSeenID * resumeMarginPercent / 100
	if margin < minResumeMargin {
		margin = minResumeMargin
	}
	return lastSeenID + margin
}
