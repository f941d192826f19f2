package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/lifedrop-api/internal/app"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep [name...]",
	Short: "Run background sweeps once",
	Long: `Run one or more sweeps immediately instead of waiting for the worker.

With no arguments every sweep runs: request_expiry, unit_expiry,
donation_reminder and notification_expiry.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := load()
		if err != nil {
			return err
		}
		a, err := app.Build(cmd.Context(), cfg, log, app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		sweeper := a.Sweeper()
		if len(args) == 0 {
			args = sweeper.Names()
		}
		for _, name := range args {
			sum, err := sweeper.RunOnce(cmd.Context(), name)
			if err != nil {
				return fmt.Errorf("sweep %s: %w", name, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-18s handled=%d failed=%d\n", name, sum.Handled, sum.Failed)
		}
		return nil
	},
}
