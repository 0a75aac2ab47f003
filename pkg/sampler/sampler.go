package sampler

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/repo-star-census/pkg/checkpoint"
	"github.com/Sternrassler/repo-star-census/pkg/client"
	"github.com/Sternrassler/repo-star-census/pkg/logging"
	"github.com/Sternrassler/repo-star-census/pkg/pagination"
	"github.com/Sternrassler/repo-star-census/pkg/resolve"
	"github.com/Sternrassler/repo-star-census/pkg/sink"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for crawl progress.
var (
	cursorGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "census_cursor",
		Help: "Current listing cursor (last durable id)",
	})

	bucketGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "census_bucket_index",
		Help: "Index of the bucket being crawled",
	})

	segmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "census_segments_total",
		Help: "Total traversal segments by how they ended",
	}, []string{"reason"})
)

// Segment end reasons.
const (
	endBoundary  = "boundary"
	endQuota     = "quota"
	endExhausted = "exhausted"
	endFailed    = "failed"
	endThrottled = "throttled"
	endTarget    = "target"
)

// Config holds sampler configuration.
type Config struct {
	// SampleSize is the global number of records to write. Zero selects
	// exhaustive mode.
	SampleSize int
	// NumBuckets is the number of strata in stratified mode.
	NumBuckets int
	// MaxRateLimitRetries is how many consecutive throttled listing calls
	// are retried at the same cursor before the segment ends.
	MaxRateLimitRetries int
	// Pagination configures the listing enumerator.
	Pagination pagination.Config
	// RunID tags log lines of this run.
	RunID string
}

// DefaultConfig returns the default sampler configuration (exhaustive).
func DefaultConfig() Config {
	return Config{
		NumBuckets:          100,
		MaxRateLimitRetries: 3,
		Pagination:          pagination.DefaultConfig(),
	}
}

// Stratified reports whether the configuration selects stratified mode.
func (c Config) Stratified() bool {
	return c.SampleSize > 0
}

// Progress receives cursor and output updates after every page.
type Progress interface {
	Update(cursor, written int64)
}

// Result summarizes a run.
type Result struct {
	Written    int64
	Discovered int64
	Pages      int
	// BucketWritten counts records written per bucket index.
	BucketWritten map[int]int64
	// SampleWritten is the stratified total including earlier runs.
	SampleWritten int64
	// TargetReached is set when the run stopped at SampleSize.
	TargetReached bool
	// Interrupted is set when a listing failure ended the run before its
	// buckets were done. The checkpoint stays in the failed bucket.
	Interrupted bool
	// Final is the last saved checkpoint.
	Final    checkpoint.State
	Duration time.Duration
}

// Sampler runs one crawl. It owns its buckets, cursor and resolver buffer
// for the duration of Run and is not safe for concurrent use.
type Sampler struct {
	lister   pagination.Lister
	resolver *resolve.Resolver
	store    checkpoint.Store
	out      sink.Sink
	progress Progress
	config   Config
	logger   zerolog.Logger

	// prior is the stratified total written by earlier runs.
	prior  int64
	result Result
}

// New creates a sampler.
func New(lister pagination.Lister, resolver *resolve.Resolver, store checkpoint.Store, out sink.Sink, cfg Config) (*Sampler, error) {
	if lister == nil || resolver == nil || store == nil || out == nil {
		return nil, fmt.Errorf("sampler requires a lister, resolver, checkpoint store and sink")
	}
	if cfg.SampleSize < 0 {
		return nil, fmt.Errorf("sample size must be >= 0 (got %d)", cfg.SampleSize)
	}
	if cfg.Stratified() && cfg.NumBuckets < 1 {
		return nil, fmt.Errorf("num buckets must be >= 1 (got %d)", cfg.NumBuckets)
	}
	if cfg.MaxRateLimitRetries < 0 {
		cfg.MaxRateLimitRetries = 0
	}

	logger := logging.NewLogger("sampler")
	if cfg.RunID != "" {
		logger = logger.With().Str("run_id", cfg.RunID).Logger()
	}

	return &Sampler{
		lister:   lister,
		resolver: resolver,
		store:    store,
		out:      out,
		config:   cfg,
		logger:   logger,
	}, nil
}

// SetProgress sets the progress receiver.
func (s *Sampler) SetProgress(p Progress) {
	s.progress = p
}

// Resume returns the state a run would start from.
func (s *Sampler) Resume(ctx context.Context) (checkpoint.State, error) {
	return s.store.Load(ctx)
}

// Run crawls up to maxID starting from the saved checkpoint. Listing and
// lookup failures are never returned: a failed lookup drops its batch and a
// failed listing stops the run with Result.Interrupted set. Errors come
// from the sink, the checkpoint store or ctx.
func (s *Sampler) Run(ctx context.Context, maxID int64) (Result, error) {
	start := time.Now()
	s.result = Result{BucketWritten: make(map[int]int64)}

	state, err := s.store.Load(ctx)
	if err != nil {
		return s.result, fmt.Errorf("load checkpoint: %w", err)
	}
	s.result.Final = state
	s.prior = 0
	if s.config.Stratified() {
		s.prior = state.SampleWritten
		s.result.SampleWritten = s.prior
	}

	s.logger.Info().
		Int64("max_id", maxID).
		Int("bucket_index", state.BucketIndex).
		Int64("last_seen_id", state.LastSeenID).
		Bool("stratified", s.config.Stratified()).
		Int("sample_size", s.config.SampleSize).
		Int64("sample_written", s.prior).
		Msg("Crawl starting")

	if s.config.Stratified() && s.prior >= int64(s.config.SampleSize) {
		s.result.TargetReached = true
		s.logger.Info().
			Int64("sample_written", s.prior).
			Msg("Sample size already reached - nothing to do")
	} else if s.config.Stratified() {
		err = s.runStratified(ctx, maxID, state)
	} else {
		err = s.runExhaustive(ctx, maxID, state)
	}

	s.result.Duration = time.Since(start)

	if err != nil {
		return s.result, err
	}

	s.logger.Info().
		Int64("written", s.result.Written).
		Int64("discovered", s.result.Discovered).
		Int("pages", s.result.Pages).
		Bool("target_reached", s.result.TargetReached).
		Bool("interrupted", s.result.Interrupted).
		Dur("duration", s.result.Duration).
		Msg("Crawl finished")

	return s.result, nil
}

func (s *Sampler) runExhaustive(ctx context.Context, maxID int64, state checkpoint.State) error {
	if state.BucketIndex != 0 {
		s.logger.Warn().
			Int("bucket_index", state.BucketIndex).
			Msg("Checkpoint is from a stratified run - resuming at its cursor")
	}

	seg := &segment{bucket: Whole(maxID), cursor: state.LastSeenID}
	reason, _, err := s.walk(ctx, seg)
	if err == nil && interrupted(reason) {
		s.interrupt(seg, reason)
	}
	return err
}

func (s *Sampler) runStratified(ctx context.Context, maxID int64, state checkpoint.State) error {
	buckets := Plan(maxID, s.config.NumBuckets, s.config.SampleSize)

	for _, bucket := range buckets[min(state.BucketIndex, len(buckets)):] {
		seg := &segment{bucket: bucket, cursor: bucket.startCursor()}
		if bucket.Index == state.BucketIndex {
			seg.cursor = max(state.LastSeenID, seg.cursor)
			seg.discovered = state.BucketDiscovered
		}

		bucketGauge.Set(float64(bucket.Index))
		s.logger.Info().
			Int("bucket_index", bucket.Index).
			Int64("start", bucket.Start).
			Int64("end", bucket.End).
			Int64("cursor", seg.cursor).
			Int("quota", bucket.Quota).
			Msg("Bucket starting")

		reason, stopped, err := s.walk(ctx, seg)
		if err != nil || stopped {
			return err
		}
		if interrupted(reason) {
			s.interrupt(seg, reason)
			return nil
		}

		if err := s.save(ctx, checkpoint.State{BucketIndex: bucket.Index + 1, SampleWritten: s.sampled()}); err != nil {
			return err
		}
	}

	return nil
}

// interrupted reports whether a segment ended before its bucket was done.
func interrupted(reason string) bool {
	return reason == endFailed || reason == endThrottled
}

// interrupt ends the run at seg. The saved checkpoint is left in place so
// the next run lists seg again from its durable cursor.
func (s *Sampler) interrupt(seg *segment, reason string) {
	s.result.Interrupted = true
	s.logger.Warn().
		Str("bucket", seg.bucket.String()).
		Str("reason", reason).
		Str("checkpoint", s.result.Final.String()).
		Msg("Listing unavailable - stopping, re-run to resume")
}

// sampled is the stratified total to persist; exhaustive runs keep 0.
func (s *Sampler) sampled() int64 {
	if !s.config.Stratified() {
		return 0
	}
	return s.prior + s.result.Written
}

// segment is one traversal of a bucket from a cursor.
type segment struct {
	bucket     Bucket
	cursor     int64
	discovered int
}

func (seg *segment) open() bool {
	if seg.cursor >= seg.bucket.lastID() {
		return false
	}
	return seg.bucket.Quota == 0 || seg.discovered < seg.bucket.Quota
}

// counted is the quota count to persist: stubs still buffered are listed
// again on resume, so they are not included.
func (seg *segment) counted(pending int) int {
	if seg.bucket.Quota == 0 {
		return 0
	}
	return seg.discovered - pending
}

// walk pages through seg until its boundary, its quota, the end of data or
// a failure, then resolves what is still buffered. It returns why the
// segment ended and true when the global sample size was reached.
func (s *Sampler) walk(ctx context.Context, seg *segment) (string, bool, error) {
	enum := pagination.NewEnumerator(s.lister, s.config.Pagination, seg.cursor)
	throttled := 0
	reason := endBoundary

	for seg.open() {
		page := enum.Next(ctx)
		if err := ctx.Err(); err != nil {
			return reason, false, err
		}

		switch page.Outcome {
		case pagination.OutcomeThrottled:
			throttled++
			if throttled <= s.config.MaxRateLimitRetries {
				continue
			}
			reason = endThrottled
		case pagination.OutcomeFailed:
			reason = endFailed
		case pagination.OutcomeEnd:
			reason = endExhausted
		}
		if page.Outcome != pagination.OutcomePage {
			break
		}
		throttled = 0
		s.result.Pages++

		stubs := page.Stubs
		seg.cursor = page.MaxID
		if kept := inBucket(stubs, seg.bucket); len(kept) < len(stubs) {
			stubs = kept
			seg.cursor = seg.bucket.lastID()
		}

		seg.discovered += len(stubs)
		s.result.Discovered += int64(len(stubs))
		s.resolver.Add(stubs...)

		for s.resolver.Ready() {
			if stop, err := s.flushOne(ctx, seg); err != nil || stop {
				return reason, stop, err
			}
		}

		if err := s.checkpoint(ctx, seg); err != nil {
			return reason, false, err
		}

		if seg.bucket.Quota > 0 && seg.discovered >= seg.bucket.Quota {
			reason = endQuota
		}
	}

	if err := ctx.Err(); err != nil {
		return reason, false, err
	}

	for s.resolver.Pending() > 0 {
		if stop, err := s.flushOne(ctx, seg); err != nil || stop {
			return reason, stop, err
		}
	}
	if err := s.checkpoint(ctx, seg); err != nil {
		return reason, false, err
	}

	segmentsTotal.WithLabelValues(reason).Inc()
	level := zerolog.InfoLevel
	if interrupted(reason) {
		level = zerolog.WarnLevel
	}
	s.logger.WithLevel(level).
		Str("bucket", seg.bucket.String()).
		Int64("cursor", seg.cursor).
		Int("discovered", seg.discovered).
		Str("reason", reason).
		Msg("Segment ended")

	return reason, false, nil
}

// flushOne resolves the oldest buffered batch and emits its records. A
// cancelled lookup is not emitted and leaves the checkpoint untouched.
func (s *Sampler) flushOne(ctx context.Context, seg *segment) (bool, error) {
	batch := s.resolver.NextBatch()
	records := s.resolver.Flush(ctx)
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.emit(ctx, seg, batch, records)
}

// emit writes the records resolved from batch and reports true once the
// global sample size is reached; the batch is cut at the target and the
// checkpoint moves to the last written record.
func (s *Sampler) emit(ctx context.Context, seg *segment, batch []client.Stub, records []resolve.Record) (bool, error) {
	if len(records) == 0 {
		return false, nil
	}

	reached := false
	if s.config.Stratified() {
		if remaining := int64(s.config.SampleSize) - s.sampled(); int64(len(records)) >= remaining {
			records = records[:remaining]
			reached = true
		}
	}

	if err := s.out.Write(ctx, records); err != nil {
		return false, fmt.Errorf("write records: %w", err)
	}
	s.result.Written += int64(len(records))
	s.result.BucketWritten[seg.bucket.Index] += int64(len(records))

	if !reached {
		return false, nil
	}

	s.result.TargetReached = true
	segmentsTotal.WithLabelValues(endTarget).Inc()

	// Stubs of batch past the last written record are listed again on
	// resume and must not stay counted against the quota.
	last := records[len(records)-1].ID
	relisted := 0
	for _, stub := range batch {
		if stub.ID > last {
			relisted++
		}
	}
	if err := s.persist(ctx, checkpoint.State{
		BucketIndex:      seg.bucket.Index,
		LastSeenID:       max(last, seg.bucket.startCursor()),
		BucketDiscovered: max(seg.counted(s.resolver.Pending())-relisted, 0),
		SampleWritten:    s.sampled(),
	}); err != nil {
		return true, err
	}

	s.logger.Info().
		Int64("written", s.result.Written).
		Str("bucket", seg.bucket.String()).
		Int64("last_id", last).
		Msg("Sample size reached - stopping")

	return true, nil
}

// checkpoint saves the durable cursor of seg: every id at or below it is
// written or dropped.
func (s *Sampler) checkpoint(ctx context.Context, seg *segment) error {
	durable := seg.cursor
	if first, ok := s.resolver.FirstPending(); ok {
		durable = first - 1
	}

	return s.persist(ctx, checkpoint.State{
		BucketIndex:      seg.bucket.Index,
		LastSeenID:       durable,
		BucketDiscovered: seg.counted(s.resolver.Pending()),
		SampleWritten:    s.sampled(),
	})
}

// persist flushes the sink, then saves state.
func (s *Sampler) persist(ctx context.Context, state checkpoint.State) error {
	if err := s.out.Flush(ctx); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return s.save(ctx, state)
}

func (s *Sampler) save(ctx context.Context, state checkpoint.State) error {
	if err := s.store.Save(ctx, state); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	s.result.Final = state
	s.result.SampleWritten = state.SampleWritten

	cursorGauge.Set(float64(state.LastSeenID))
	if s.progress != nil && state.LastSeenID > 0 {
		s.progress.Update(state.LastSeenID, s.result.Written)
	}

	return nil
}

// inBucket returns the prefix of stubs with id < b.End.
func inBucket(stubs []client.Stub, b Bucket) []client.Stub {
	for i, stub := range stubs {
		if stub.ID >= b.End {
			return stubs[:i]
		}
	}
	return stubs
}
