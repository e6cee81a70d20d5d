package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync <position-id>",
		Short: "Reconcile one position against its broker now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.log.Sync()

			ctx := cmd.Context()
			if err := a.engine.Syncer().SyncPositionNow(ctx, args[0]); err != nil {
				return err
			}
			pos, err := a.store.GetPosition(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s qty=%g price=%g pnl=%.2f status=%s\n",
				pos.ID, pos.Symbol, pos.Direction, pos.Quantity, pos.CurrentPrice, pos.UnrealizedPnl, pos.Status)
			return nil
		},
	}
}
