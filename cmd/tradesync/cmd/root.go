package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"tradesync/internal/adapters"
	"tradesync/internal/config"
	"tradesync/internal/database"
	"tradesync/internal/engine"
	"tradesync/internal/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:   "tradesync",
	Short: "Tracks broker orders to completion and keeps positions in sync",
	Long: `tradesync follows freshly placed orders at their broker until they reach a
terminal status, turns fills into local positions, and periodically reconciles
open positions against the broker.

Supported brokers: alpaca_paper, alpaca_live, binance, binance_testnet.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "./configs", "directory containing config.yml")

	rootCmd.AddCommand(
		newRunCmd(),
		newTrackCmd(),
		newSyncCmd(),
		newConnectionCmd(),
	)
}

// app is the wired process shared by every command.
type app struct {
	cfg    config.Config
	log    *zap.Logger
	store  *database.Store
	engine *engine.Engine
}

func bootstrap() (*app, error) {
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return nil, fmt.Errorf("could not load config: %w", err)
	}

	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("could not initialize logger: %w", err)
	}
	log.Debug("Configuration loaded", zap.String("dir", configDir))

	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	store := database.NewStore(db)

	factory := adapters.NewBrokerFactory(cfg.Broker, log)
	return &app{
		cfg:    cfg,
		log:    log,
		store:  store,
		engine: engine.NewEngine(log, &cfg, store, factory),
	}, nil
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(log *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigchan:
			log.Info("Shutdown signal received, gracefully shutting down...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigchan)
	}()
	return ctx, cancel
}
