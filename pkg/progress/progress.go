// Package progress reports crawl progress to an operator, either as a live
// terminal bar or as periodic log lines.
package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/progress"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/repo-star-census/pkg/logging"
)

// Run describes the id range a crawl covers.
type Run struct {
	// MaxID is the probed upper bound of the id space.
	MaxID int64

	// Start is the cursor the crawl resumes from.
	Start int64

	// Estimate is the approximate population, 0 when unknown.
	Estimate int64
}

// Description is the label shown next to the bar.
func (r Run) Description() string {
	if r.Estimate > 0 {
		return fmt.Sprintf("repos up to id %s (~%s public)",
			humanize.Comma(r.MaxID), humanize.Comma(r.Estimate))
	}
	return fmt.Sprintf("repos up to id %s", humanize.Comma(r.MaxID))
}

// Bar renders a single go-pretty tracker over the id space.
type Bar struct {
	run     Run
	writer  progress.Writer
	tracker *progress.Tracker
	once    sync.Once
}

// NewBar starts rendering a bar to out. Close must be called to stop it.
func NewBar(out io.Writer, run Run) *Bar {
	pw := progress.NewWriter()
	pw.SetOutputWriter(out)
	pw.SetAutoStop(false)
	pw.SetTrackerLength(40)
	pw.SetUpdateFrequency(250 * time.Millisecond)
	pw.SetStyle(progress.StyleDefault)
	pw.Style().Visibility.ETA = true
	pw.Style().Visibility.Value = true

	tracker := &progress.Tracker{
		Message: run.Description(),
		Total:   run.MaxID,
		Units:   progress.UnitsDefault,
	}
	tracker.SetValue(min(run.Start, run.MaxID))
	pw.AppendTracker(tracker)

	go pw.Render()

	return &Bar{run: run, writer: pw, tracker: tracker}
}

// Update moves the bar to cursor and shows the written count.
func (b *Bar) Update(cursor, written int64) {
	b.tracker.SetValue(min(cursor, b.run.MaxID))
	b.tracker.UpdateMessage(fmt.Sprintf("%s, %s written",
		b.run.Description(), humanize.Comma(written)))
}

// Value is the cursor last shown.
func (b *Bar) Value() int64 {
	return b.tracker.Value()
}

// Close marks the tracker done and stops rendering.
func (b *Bar) Close() {
	b.once.Do(func() {
		b.tracker.MarkAsDone()
		b.writer.Stop()
		for b.writer.IsRenderInProgress() {
			time.Sleep(10 * time.Millisecond)
		}
	})
}

// LogReporter logs progress at most once per interval.
type LogReporter struct {
	run      Run
	interval time.Duration
	logger   zerolog.Logger
	now      func() time.Time
	last     time.Time
	started  time.Time
}

// NewLogReporter creates a reporter for non-interactive runs.
func NewLogReporter(run Run, interval time.Duration) *LogReporter {
	now := time.Now
	return &LogReporter{
		run:      run,
		interval: interval,
		logger:   logging.NewLogger("progress"),
		now:      now,
		started:  now(),
	}
}

// Update logs the cursor and written count when the interval has elapsed.
func (r *LogReporter) Update(cursor, written int64) {
	now := r.now()
	if !r.last.IsZero() && now.Sub(r.last) < r.interval {
		return
	}
	r.last = now

	r.logger.Info().
		Int64("cursor", cursor).
		Int64("written", written).
		Str("covered", Percent(cursor, r.run.MaxID)).
		Dur("elapsed", now.Sub(r.started).Round(time.Second)).
		Msgf("Progress: %s written, cursor %s of %s",
			humanize.Comma(written), humanize.Comma(cursor), humanize.Comma(r.run.MaxID))
}

// Percent formats cursor as a share of maxID.
func Percent(cursor, maxID int64) string {
	if maxID <= 0 {
		return "0.0%"
	}
	pct := float64(min(max(cursor, 0), maxID)) / float64(maxID) * 100
	return humanize.FormatFloat("#,###.#", pct) + "%"
}
