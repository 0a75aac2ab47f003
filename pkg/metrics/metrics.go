// Package metrics exposes the census Prometheus metrics over HTTP.
// All metrics are defined in their respective packages (client, ratelimit,
// probe, pagination, resolve, sampler, checkpoint, sink, cache) to maintain
// modularity and avoid circular dependencies.
//
// This package provides the HTTP server and the reference for all metrics.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Registry is the default Prometheus registry used by the census.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// shutdownTimeout bounds the graceful stop of the metrics server.
const shutdownTimeout = 5 * time.Second

// Handler returns the mux serving /metrics and /health.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", healthHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// Serve runs the metrics server on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	logger := log.With().Str("component", "metrics").Logger()

	server := &http.Server{
		Addr:              addr,
		Handler:           Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Metrics server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown: %w", err)
		}
		logger.Debug().Msg("Metrics server stopped")
		return nil
	}
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - census_requests_total{api, status} (Counter): GitHub API requests by API (listing, lookup, search) and HTTP status
//   - census_request_duration_seconds{api} (Histogram): Request duration by API
//   - census_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, decode)
//
// Rate Limit Metrics (pkg/ratelimit):
//   - census_rate_limit_remaining (Gauge): Requests remaining in the current window
//   - census_backoffs_total{source} (Counter): Throttled responses by wait source (retry_after, reset, fallback)
//   - census_backoff_seconds (Histogram): Time slept after throttled responses
//
// Probe Metrics (pkg/probe):
//   - census_probe_calls_total{result} (Counter): Existence probes by result (hit, miss)
//   - census_max_id (Gauge): Result of the last boundary search
//
// Crawl Metrics (pkg/pagination, pkg/resolve, pkg/sampler):
//   - census_pages_total{outcome} (Counter): Listing calls by outcome (page, end, throttled, failed)
//   - census_stubs_discovered_total (Counter): Stubs returned by the listing API
//   - census_lookup_batches_total{outcome} (Counter): Lookup batches by outcome (ok, failed)
//   - census_records_resolved_total (Counter): Stubs resolved into records
//   - census_stubs_dropped_total{reason} (Counter): Stubs without a record (null, wrong_type, missing, batch_failed)
//   - census_cursor (Gauge): Last durable listing cursor
//   - census_bucket_index (Gauge): Bucket being crawled
//   - census_segments_total{reason} (Counter): Segment ends (boundary, quota, exhausted, failed, throttled, target)
//
// Persistence Metrics (pkg/checkpoint, pkg/sink, pkg/cache):
//   - census_checkpoint_saves_total{backend, result} (Counter): Checkpoint saves
//   - census_checkpoint_resets_total{reason} (Counter): Checkpoints discarded on load
//   - census_records_written_total{driver} (Counter): Records written by sink driver
//   - census_cache_hits_total / census_cache_misses_total (Counter): Estimate cache lookups
//   - census_cache_errors_total{operation} (Counter): Cache operation errors
//
// Example Prometheus Queries:
//
//   # Drop Rate
//   sum(rate(census_stubs_dropped_total[5m])) / rate(census_stubs_discovered_total[5m])
//
//   # Time Spent Backing Off
//   rate(census_backoff_seconds_sum[15m])
//
//   # Crawl Position
//   census_cursor / census_max_id
//
//   # P95 Lookup Latency
//   histogram_quantile(0.95, rate(census_request_duration_seconds_bucket{api="lookup"}[5m]))
