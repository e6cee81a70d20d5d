package cmd

import (
	"fmt"

	"tradesync/internal/adapters"
	"tradesync/internal/models"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newConnectionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connection",
		Short: "Manage stored broker connections",
	}
	cmd.AddCommand(newConnectionAddCmd())
	return cmd
}

func newConnectionAddCmd() *cobra.Command {
	var id, kind, owner, key, secret string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Store credentials for one broker account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := adapters.ParseKind(kind)
			if err != nil {
				return err
			}
			if id == "" {
				id = uuid.NewString()
			}

			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.log.Sync()

			conn := &models.BrokerConnection{ID: id, OwnerID: owner, Kind: string(k), APIKey: key, APISecret: secret}
			if err := a.store.SaveConnection(cmd.Context(), conn); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), conn.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "connection id (generated when empty)")
	cmd.Flags().StringVar(&kind, "kind", "", "broker kind: alpaca_paper, alpaca_live, binance or binance_testnet")
	cmd.Flags().StringVar(&owner, "owner", "", "owner id")
	cmd.Flags().StringVar(&key, "api-key", "", "broker API key")
	cmd.Flags().StringVar(&secret, "api-secret", "", "broker API secret")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("api-key")
	_ = cmd.MarkFlagRequired("api-secret")
	return cmd
}
