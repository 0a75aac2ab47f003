package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Find the largest repository id",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		d, err := connect(ctx, cfg)
		if err != nil {
			return err
		}
		defer d.Close()

		store, err := d.store(cfg)
		if err != nil {
			return err
		}
		state, err := store.Load(ctx)
		if err != nil {
			return fmt.Errorf("load checkpoint: %w", err)
		}

		maxID, err := d.findMaxID(ctx, cfg, cfg.ProbeHintFor(state))
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Max repository id: %s\n", humanize.Comma(maxID))
		return nil
	},
}
