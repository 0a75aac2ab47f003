package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/repo-star-census/pkg/report"
)

var (
	plotInput string
	plotHTML  string
)

var plotCmd = &cobra.Command{
	Use:   "plot",
	Short: "Render the star distribution of a crawl's CSV output",
	RunE: func(cmd *cobra.Command, _ []string) error {
		input := plotInput
		if input == "" {
			input = cfg.Output
		}
		return runPlot(input, plotHTML, cmd.OutOrStdout())
	},
}

func init() {
	plotCmd.Flags().StringVar(&plotInput, "input", "", "CSV to read (default: --out)")
	plotCmd.Flags().StringVar(&plotHTML, "html", "./assets/github_stars_distribution.html", "histogram HTML output path")
}

func runPlot(input, htmlPath string, w io.Writer) error {
	stars, err := report.ReadStarsFile(input)
	if err != nil {
		return err
	}
	if len(stars) == 0 {
		return fmt.Errorf("no star counts in %s", input)
	}

	if err := os.MkdirAll(filepath.Dir(htmlPath), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.Create(htmlPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", htmlPath, err)
	}
	defer f.Close()

	if err := report.WriteHTML(f, stars); err != nil {
		return fmt.Errorf("render histogram: %w", err)
	}

	fmt.Fprintln(w, report.Table(report.Cutoffs(stars), len(stars)))
	fmt.Fprintf(w, "Histogram written to %s\n", htmlPath)
	return nil
}
