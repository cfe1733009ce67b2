package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

func newSweepCommand(global *globalFlags) *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete temp directories left behind by earlier runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := newApp(global)
			if err != nil {
				return err
			}
			defer func() {
				err = multierr.Append(err, a.close())
			}()

			if !cmd.Flags().Changed("max-age") {
				maxAge = a.cfg.Temp.OrphanMaxAge
			}

			swept, err := a.store.SweepOrphans(cmd.Context(), maxAge)
			fmt.Fprintf(cmd.OutOrStdout(), "swept %d orphaned item(s) from %s\n", swept, a.store.Root())
			return err
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 24*time.Hour, "only delete items older than this")
	return cmd
}
