package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Print the approximate number of public repositories",
	RunE: func(cmd *cobra.Command, _ []string) error {
		d, err := connect(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer d.Close()

		total, cached := d.estimate(cmd.Context(), cfg)
		if total == 0 {
			return fmt.Errorf("population estimate unavailable")
		}

		source := "search API"
		if cached {
			source = "cache"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "~%s public repositories (%s)\n", humanize.Comma(total), source)
		return nil
	},
}
