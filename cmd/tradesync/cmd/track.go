package cmd

import (
	"fmt"

	"tradesync/internal/broker"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var orderKinds = []broker.OrderKind{
	broker.OrderKindMarket,
	broker.OrderKindLimit,
	broker.OrderKindStop,
	broker.OrderKindStopLimit,
}

func parseOrderKind(s string) (broker.OrderKind, error) {
	for _, k := range orderKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown order kind %q (want market, limit, stop or stop_limit)", s)
}

func newTrackCmd() *cobra.Command {
	var kind, owner string

	cmd := &cobra.Command{
		Use:   "track <connection-id> <order-id>",
		Short: "Track one order until it reaches a terminal status",
		Long: `Track polls a single order on the given broker connection until it is
filled, canceled, rejected or expired. A fill creates or updates the local
position. Binance orders are referenced as SYMBOL:ORDERID.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			orderKind, err := parseOrderKind(kind)
			if err != nil {
				return err
			}

			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.log.Sync()

			ctx, cancel := signalContext(a.log)
			defer cancel()

			tr := a.engine.Tracker()
			if err := a.engine.Track(ctx, args[0], args[1], owner, orderKind); err != nil {
				return err
			}

			done := make(chan struct{})
			go func() {
				tr.Wait()
				close(done)
			}()
			select {
			case <-done:
			case <-ctx.Done():
				tr.StopAll()
				<-done
			}

			order, err := a.store.GetOrder(cmd.Context(), args[1])
			if err != nil {
				a.log.Warn("Order was never observed", zap.String("order_id", args[1]), zap.Error(err))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s filled=%g@%g\n",
				order.BrokerOrderID, order.Symbol, order.Status, order.FilledQuantity, order.FilledAvgPrice)
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", string(broker.OrderKindMarket), "order kind: market, limit, stop or stop_limit")
	cmd.Flags().StringVar(&owner, "owner", "", "owner id for created positions (defaults to the connection owner)")
	return cmd
}
