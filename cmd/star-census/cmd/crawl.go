package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/repo-star-census/internal/config"
	"github.com/Sternrassler/repo-star-census/pkg/metrics"
	"github.com/Sternrassler/repo-star-census/pkg/progress"
	"github.com/Sternrassler/repo-star-census/pkg/resolve"
	"github.com/Sternrassler/repo-star-census/pkg/sampler"
	"github.com/Sternrassler/repo-star-census/pkg/sink"
)

// logProgressInterval spaces progress log lines when no bar is shown.
const logProgressInterval = 30 * time.Second

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl or sample repositories and write their star counts",
	Long: `Finds the current largest repository id, then walks the id space from
the last checkpoint. With --sample-size the space is split into buckets and
each bucket contributes an equal share of the sample; otherwise every
repository is written.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		result, stats, err := runCrawl(cmd.Context(), cfg, runID, os.Stderr)
		printSummary(cmd.OutOrStdout(), result, stats)
		return err
	},
}

// runCrawl performs one crawl. Progress is drawn on progressOut when
// enabled in c.
func runCrawl(ctx context.Context, c *config.Config, runID string, progressOut io.Writer) (sampler.Result, resolve.Stats, error) {
	d, err := connect(ctx, c)
	if err != nil {
		return sampler.Result{}, resolve.Stats{}, err
	}
	defer d.Close()

	store, err := d.store(c)
	if err != nil {
		return sampler.Result{}, resolve.Stats{}, err
	}

	state, err := store.Load(ctx)
	if err != nil {
		return sampler.Result{}, resolve.Stats{}, fmt.Errorf("load checkpoint: %w", err)
	}

	maxID, err := d.findMaxID(ctx, c, c.ProbeHintFor(state))
	if err != nil {
		return sampler.Result{}, resolve.Stats{}, err
	}
	estimate, _ := d.estimate(ctx, c)

	log.Info().
		Int64("max_id", maxID).
		Int64("estimate", estimate).
		Str("resume", state.String()).
		Msg("Boundary found")

	out, err := sink.Open(ctx, c.OutputDriver, c.Output)
	if err != nil {
		return sampler.Result{}, resolve.Stats{}, fmt.Errorf("open output: %w", err)
	}
	defer out.Close()

	resolver := resolve.New(d.github, c.ResolverConfig())
	s, err := sampler.New(d.github, resolver, store, out, c.SamplerConfig(runID))
	if err != nil {
		return sampler.Result{}, resolve.Stats{}, err
	}

	run := progress.Run{MaxID: maxID, Start: state.LastSeenID, Estimate: estimate}
	if c.Progress {
		bar := progress.NewBar(progressOut, run)
		defer bar.Close()
		s.SetProgress(bar)
	} else {
		s.SetProgress(progress.NewLogReporter(run, logProgressInterval))
	}

	g, gctx := errgroup.WithContext(ctx)
	crawlCtx, crawlDone := context.WithCancel(gctx)
	defer crawlDone()

	if c.MetricsAddr != "" {
		g.Go(func() error {
			return metrics.Serve(crawlCtx, c.MetricsAddr)
		})
	}

	var result sampler.Result
	g.Go(func() error {
		defer crawlDone()
		var runErr error
		result, runErr = s.Run(gctx, maxID)
		return runErr
	})

	err = g.Wait()
	return result, resolver.Stats(), err
}
