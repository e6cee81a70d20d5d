package cmd

import (
	"context"
	"time"

	"tradesync/internal/engine"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Resume order tracking and run the position sync loop until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.log.Sync()

			ctx, cancel := signalContext(a.log)
			defer cancel()

			// the API goes down first so no manual sync starts while the engine drains
			apiDone := make(chan struct{})
			if a.cfg.Server.Port > 0 {
				api := engine.NewAPIServer(a.engine, a.log)
				api.Start()
				go func() {
					defer close(apiDone)
					<-ctx.Done()
					shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
					defer done()
					if err := api.Stop(shutdownCtx); err != nil {
						a.log.Error("API server shutdown failed", zap.Error(err))
					}
				}()
			} else {
				close(apiDone)
			}

			err = a.engine.Run(ctx)
			cancel()
			<-apiDone

			a.log.Info("tradesync has been shut down.")
			return err
		},
	}
}
