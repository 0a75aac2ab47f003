package cmd

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/Sternrassler/repo-star-census/pkg/resolve"
	"github.com/Sternrassler/repo-star-census/pkg/sampler"
)

// printSummary writes the end-of-run report.
func printSummary(w io.Writer, result sampler.Result, stats resolve.Stats) {
	heading := color.New(color.FgGreen, color.Bold)
	if result.Written == 0 {
		heading = color.New(color.FgYellow, color.Bold)
	}

	heading.Fprintf(w, "Wrote %s repositories", humanize.Comma(result.Written))
	fmt.Fprintf(w, " in %s\n", result.Duration.Round(time.Second))

	fmt.Fprintf(w, "  Discovered: %s ids over %s pages\n",
		humanize.Comma(result.Discovered), humanize.Comma(int64(result.Pages)))

	if dropped := stats.TotalDropped(); dropped > 0 {
		color.New(color.FgYellow).Fprintf(w, "  Dropped:    %s (%s)\n",
			humanize.Comma(dropped), dropBreakdown(stats.Dropped))
	}
	if stats.FailedBatches > 0 {
		color.New(color.FgYellow).Fprintf(w, "  Failed lookup batches: %d of %d\n",
			stats.FailedBatches, stats.Batches)
	}
	if result.SampleWritten > result.Written {
		fmt.Fprintf(w, "  Sample so far: %s across runs\n", humanize.Comma(result.SampleWritten))
	}
	if result.TargetReached {
		color.New(color.FgCyan).Fprintf(w, "  Sample target reached\n")
	}
	if result.Interrupted {
		color.New(color.FgRed).Fprintf(w, "  Interrupted by listing failures, re-run to resume\n")
	}

	fmt.Fprintf(w, "  Checkpoint: %s\n", result.Final)
}

// dropBreakdown formats drop counts by reason in a stable order.
func dropBreakdown(dropped map[resolve.DropReason]int64) string {
	reasons := make([]string, 0, len(dropped))
	for reason := range dropped {
		reasons = append(reasons, string(reason))
	}
	slices.Sort(reasons)

	parts := make([]string, 0, len(reasons))
	for _, reason := range reasons {
		n := dropped[resolve.DropReason(reason)]
		if n == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s", reason, humanize.Comma(n)))
	}
	return strings.Join(parts, ", ")
}
