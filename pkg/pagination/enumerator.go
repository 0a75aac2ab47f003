package pagination

import (
	"context"
	"time"

	"github.com/Sternrassler/repo-star-census/pkg/client"
	"github.com/Sternrassler/repo-star-census/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for listing pagination.
var (
	pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "census_pages_total",
		Help: "Total listing calls by outcome",
	}, []string{"outcome"})

	stubsDiscovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "census_stubs_discovered_total",
		Help: "Total stubs returned by the listing API",
	})
)

// Config holds enumerator configuration.
type Config struct {
	// PerPage is the listing page size (1..client.MaxPerPage).
	PerPage int
	// Delay between consecutive listing calls.
	Delay time.Duration
}

// DefaultConfig returns the default enumerator configuration.
func DefaultConfig() Config {
	return Config{
		PerPage: client.MaxPerPage,
		Delay:   50 * time.Millisecond,
	}
}

// Lister is the interface the GitHub client implements for listing pages.
type Lister interface {
	// ListRepositories returns up to perPage stubs with id > since.
	ListRepositories(ctx context.Context, since int64, perPage int) ([]client.Stub, error)
}

// Outcome classifies one listing call.
type Outcome int

const (
	// OutcomePage means the call returned at least one new stub.
	OutcomePage Outcome = iota
	// OutcomeEnd means the cursor reached the end of visible repositories.
	OutcomeEnd
	// OutcomeThrottled means the call was rate limited; the backoff has
	// already slept and the same cursor may be retried.
	OutcomeThrottled
	// OutcomeFailed means a transport, status or decode failure.
	OutcomeFailed
)

// String returns the outcome name used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomePage:
		return "page"
	case OutcomeEnd:
		return "end"
	case OutcomeThrottled:
		return "throttled"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Page is the result of one listing call.
type Page struct {
	Outcome Outcome
	// Since is the cursor the page was requested with.
	Since int64
	// Stubs holds the new stubs, ordered by increasing id.
	Stubs []client.Stub
	// MaxID is the largest id in Stubs (equals Since when empty).
	MaxID int64
	// Err is set for OutcomeThrottled and OutcomeFailed.
	Err error
}

// Enumerator walks the id space forward from a cursor. It is not safe for
// concurrent use.
type Enumerator struct {
	lister Lister
	config Config
	cursor int64
	calls  int
	logger zerolog.Logger
}

// NewEnumerator creates an enumerator starting after cursor.
func NewEnumerator(lister Lister, config Config, cursor int64) *Enumerator {
	if config.PerPage <= 0 || config.PerPage > client.MaxPerPage {
		config.PerPage = client.MaxPerPage
	}
	if config.Delay < 0 {
		config.Delay = 0
	}
	if cursor < 0 {
		cursor = 0
	}

	return &Enumerator{
		lister: lister,
		config: config,
		cursor: cursor,
		logger: log.With().Str("component", "enumerator").Logger(),
	}
}

// Cursor returns the largest id emitted so far (or the start cursor).
func (e *Enumerator) Cursor() int64 {
	return e.cursor
}

// Next fetches the page after the cursor. The cursor advances only on
// OutcomePage.
func (e *Enumerator) Next(ctx context.Context) Page {
	page := Page{Since: e.cursor, MaxID: e.cursor}

	if e.calls > 0 {
		if err := ratelimit.Wait(ctx, e.config.Delay); err != nil {
			page.Outcome = OutcomeFailed
			page.Err = err
			return page
		}
	}
	e.calls++

	stubs, err := e.lister.ListRepositories(ctx, e.cursor, e.config.PerPage)
	if err != nil {
		page.Err = err
		page.Outcome = OutcomeFailed
		if client.IsRateLimited(err) {
			page.Outcome = OutcomeThrottled
		}
		pagesTotal.WithLabelValues(page.Outcome.String()).Inc()

		e.logger.Warn().
			Err(err).
			Int64("since", e.cursor).
			Str("outcome", page.Outcome.String()).
			Msg("Listing call failed")
		return page
	}

	page.Stubs = e.keepNew(stubs)
	if len(page.Stubs) == 0 {
		page.Outcome = OutcomeEnd
		pagesTotal.WithLabelValues(page.Outcome.String()).Inc()

		e.logger.Debug().Int64("since", e.cursor).Msg("Listing exhausted")
		return page
	}

	page.Outcome = OutcomePage
	page.MaxID = page.Stubs[len(page.Stubs)-1].ID
	e.cursor = page.MaxID

	pagesTotal.WithLabelValues(page.Outcome.String()).Inc()
	stubsDiscovered.Add(float64(len(page.Stubs)))

	e.logger.Debug().
		Int64("since", page.Since).
		Int64("max_id", page.MaxID).
		Int("stubs", len(page.Stubs)).
		Msg("Listing page fetched")

	return page
}

// keepNew returns the stubs that continue the strictly increasing sequence
// after the cursor.
func (e *Enumerator) keepNew(stubs []client.Stub) []client.Stub {
	kept := stubs[:0:0]
	last := e.cursor
	for _, stub := range stubs {
		if stub.ID <= last {
			continue
		}
		kept = append(kept, stub)
		last = stub.ID
	}

	if dropped := len(stubs) - len(kept); dropped > 0 {
		e.logger.Warn().
			Int64("since", e.cursor).
			Int("dropped", dropped).
			Msg("Listing returned ids out of order")
	}

	return kept
}
