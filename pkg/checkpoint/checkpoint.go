// Package checkpoint persists the crawl's resumption state: the current
// bucket and the last id whose record is durably written.
//
// A missing or malformed checkpoint is never an error; Load falls back to
// the zero State and the crawl starts over.
package checkpoint

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for checkpoint persistence.
var (
	savesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "census_checkpoint_saves_total",
		Help: "Total checkpoint saves by backend and result",
	}, []string{"backend", "result"})

	resetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "census_checkpoint_resets_total",
		Help: "Total checkpoints discarded on load, by reason",
	}, []string{"reason"})
)

// State is the unit of resumable progress. Records with id <= LastSeenID
// in bucket BucketIndex are done, as are all buckets below BucketIndex.
type State struct {
	BucketIndex int   `yaml:"bucket_index"`
	LastSeenID  int64 `yaml:"last_seen_id"`
	// BucketDiscovered is the number of stubs the current bucket has
	// counted against its quota so far.
	BucketDiscovered int `yaml:"bucket_discovered"`
	// SampleWritten is the number of records a stratified crawl has
	// written across all of its runs.
	SampleWritten int64 `yaml:"sample_written"`
}

// String returns the state in its legacy "bucket,id" form.
func (s State) String() string {
	return fmt.Sprintf("%d,%d", s.BucketIndex, s.LastSeenID)
}

// IsZero reports whether s is the start-over state.
func (s State) IsZero() bool {
	return s == State{}
}

// valid reports whether all fields are non-negative.
func (s State) valid() bool {
	return s.BucketIndex >= 0 && s.LastSeenID >= 0 && s.BucketDiscovered >= 0 && s.SampleWritten >= 0
}

// Store loads and saves the crawl state. A Store has a single writer.
type Store interface {
	// Load returns the saved state, or the zero State when there is none
	// or it cannot be parsed. Errors are reserved for an unreachable backend.
	Load(ctx context.Context) (State, error)
	// Save durably replaces the saved state.
	Save(ctx context.Context, state State) error
	// Clear removes the saved state.
	Clear(ctx context.Context) error
}

// parseLegacy parses the "bucket,id" form.
func parseLegacy(s string) (State, bool) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return State{}, false
	}

	bucket, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return State{}, false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return State{}, false
	}

	state := State{BucketIndex: bucket, LastSeenID: id}
	return state, state.valid()
}
