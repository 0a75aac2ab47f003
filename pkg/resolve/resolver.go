package resolve

import (
	"context"
	"slices"
	"time"

	"github.com/Sternrassler/repo-star-census/pkg/client"
	"github.com/Sternrassler/repo-star-census/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for metadata resolution.
var (
	lookupBatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "census_lookup_batches_total",
		Help: "Total lookup batches by outcome",
	}, []string{"outcome"})

	recordsResolved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "census_records_resolved_total",
		Help: "Total stubs resolved into records",
	})

	stubsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "census_stubs_dropped_total",
		Help: "Total stubs that produced no record, by reason",
	}, []string{"reason"})
)

// NodeLookup is the interface the GitHub client implements for batch lookups.
type NodeLookup interface {
	// LookupNodes returns a slice parallel to ids, nil where not found.
	LookupNodes(ctx context.Context, ids []string) ([]*client.Node, error)
}

// Config holds resolver configuration.
type Config struct {
	// BatchSize is the number of stubs per lookup (1..client.MaxNodeIDs).
	BatchSize int
	// Delay between consecutive lookups.
	Delay time.Duration
	// MaxRateLimitRetries is how often a throttled lookup is reissued
	// before its batch is discarded.
	MaxRateLimitRetries int
}

// DefaultConfig returns the default resolver configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:           client.MaxNodeIDs,
		Delay:               0,
		MaxRateLimitRetries: 3,
	}
}

// Stats counts resolver outcomes over its lifetime.
type Stats struct {
	Batches       int
	FailedBatches int
	Resolved      int64
	Dropped       map[DropReason]int64
}

// TotalDropped sums drops over all reasons.
func (s Stats) TotalDropped() int64 {
	var total int64
	for _, n := range s.Dropped {
		total += n
	}
	return total
}

// Resolver buffers stubs and resolves them in fixed-size batches. Stubs
// that cannot be resolved are dropped and counted, never retried. It is
// not safe for concurrent use.
type Resolver struct {
	lookup NodeLookup
	config Config
	buffer []client.Stub
	calls  int
	stats  Stats
	logger zerolog.Logger
}

// New creates a resolver over lookup.
func New(lookup NodeLookup, config Config) *Resolver {
	if config.BatchSize <= 0 || config.BatchSize > client.MaxNodeIDs {
		config.BatchSize = client.MaxNodeIDs
	}
	if config.MaxRateLimitRetries < 0 {
		config.MaxRateLimitRetries = 0
	}

	return &Resolver{
		lookup: lookup,
		config: config,
		stats:  Stats{Dropped: make(map[DropReason]int64)},
		logger: log.With().Str("component", "resolver").Logger(),
	}
}

// Add appends stubs to the buffer.
func (r *Resolver) Add(stubs ...client.Stub) {
	r.buffer = append(r.buffer, stubs...)
}

// Pending returns the number of buffered stubs.
func (r *Resolver) Pending() int {
	return len(r.buffer)
}

// FirstPending returns the id of the oldest buffered stub.
func (r *Resolver) FirstPending() (int64, bool) {
	if len(r.buffer) == 0 {
		return 0, false
	}
	return r.buffer[0].ID, true
}

// Ready reports whether a full batch is buffered.
func (r *Resolver) Ready() bool {
	return len(r.buffer) >= r.config.BatchSize
}

// BatchSize returns the configured batch size.
func (r *Resolver) BatchSize() int {
	return r.config.BatchSize
}

// Stats returns a copy of the resolver counters.
func (r *Resolver) Stats() Stats {
	s := r.stats
	s.Dropped = make(map[DropReason]int64, len(r.stats.Dropped))
	for k, v := range r.stats.Dropped {
		s.Dropped[k] = v
	}
	return s
}

// NextBatch returns the stubs the next Flush will resolve, without removing
// them.
func (r *Resolver) NextBatch() []client.Stub {
	n := min(r.config.BatchSize, len(r.buffer))
	return slices.Clone(r.buffer[:n])
}

// Flush resolves the oldest batch (up to BatchSize stubs) and removes it
// from the buffer, whatever the outcome. Records keep the order of their
// stubs. A failed lookup yields no records for the whole batch.
func (r *Resolver) Flush(ctx context.Context) []Record {
	if len(r.buffer) == 0 {
		return nil
	}

	n := r.config.BatchSize
	if n > len(r.buffer) {
		n = len(r.buffer)
	}
	batch := r.buffer[:n:n]
	r.buffer = r.buffer[n:]
	if len(r.buffer) == 0 {
		r.buffer = nil
	}

	return r.Resolve(ctx, batch)
}

// Resolve looks up batch in a single call and pairs the response entries
// with the stubs by position.
func (r *Resolver) Resolve(ctx context.Context, batch []client.Stub) []Record {
	if len(batch) == 0 {
		return nil
	}
	r.stats.Batches++

	ids := make([]string, len(batch))
	for i, stub := range batch {
		ids[i] = stub.NodeID
	}

	nodes, err := r.lookupWithRetry(ctx, ids)
	if err != nil {
		r.stats.FailedBatches++
		r.drop(DropBatchFailed, len(batch))
		lookupBatchesTotal.WithLabelValues("failed").Inc()

		r.logger.Warn().
			Err(err).
			Int64("first_id", batch[0].ID).
			Int("size", len(batch)).
			Msg("Lookup failed - batch discarded")
		return nil
	}
	lookupBatchesTotal.WithLabelValues("ok").Inc()

	records := make([]Record, 0, len(batch))
	for i, stub := range batch {
		if i >= len(nodes) {
			r.drop(DropMissing, 1)
			continue
		}
		rec, ok := Merge(stub, nodes[i])
		if !ok {
			r.drop(dropReason(nodes[i]), 1)
			continue
		}
		records = append(records, rec)
	}

	r.stats.Resolved += int64(len(records))
	recordsResolved.Add(float64(len(records)))

	r.logger.Debug().
		Int("size", len(batch)).
		Int("resolved", len(records)).
		Msg("Batch resolved")

	return records
}

func (r *Resolver) lookupWithRetry(ctx context.Context, ids []string) ([]*client.Node, error) {
	for attempt := 0; ; attempt++ {
		if r.calls > 0 {
			if err := ratelimit.Wait(ctx, r.config.Delay); err != nil {
				return nil, err
			}
		}
		r.calls++

		nodes, err := r.lookup.LookupNodes(ctx, ids)
		if err == nil || !client.IsRateLimited(err) || attempt >= r.config.MaxRateLimitRetries {
			return nodes, err
		}

		r.logger.Debug().Int("attempt", attempt+1).Msg("Lookup throttled - retrying")
	}
}

func (r *Resolver) drop(reason DropReason, n int) {
	r.stats.Dropped[reason] += int64(n)
	stubsDropped.WithLabelValues(string(reason)).Add(float64(n))
}
