// Package engine wires the order tracker and the position syncer into one
// long-running process.
package engine

import (
	"context"
	"fmt"
	"time"

	"tradesync/internal/adapters"
	"tradesync/internal/broker"
	"tradesync/internal/config"
	"tradesync/internal/database"
	"tradesync/internal/positionsync"
	"tradesync/internal/tracker"

	"go.uber.org/zap"
)

// Engine owns the tracker and the syncer and shares one store and one
// adapter factory between them.
type Engine struct {
	logger  *zap.Logger
	cfg     *config.Config
	store   *database.Store
	factory adapters.Factory
	tracker *tracker.Tracker
	syncer  *positionsync.Syncer

	StartTime time.Time
}

// Status summarizes the running engine.
type Status struct {
	StartTime     time.Time           `json:"start_time"`
	Uptime        string              `json:"uptime"`
	TrackedOrders int                 `json:"tracked_orders"`
	Sync          positionsync.Status `json:"sync"`
}

// NewEngine creates an engine. Extra tracker options are passed through,
// which tests use to inject timers.
func NewEngine(logger *zap.Logger, cfg *config.Config, store *database.Store, factory adapters.Factory, opts ...tracker.Option) *Engine {
	return &Engine{
		logger:    logger,
		cfg:       cfg,
		store:     store,
		factory:   factory,
		tracker:   tracker.NewTracker(logger, store, cfg.Tracker, opts...),
		syncer:    positionsync.NewSyncer(logger, store, factory, cfg.Sync),
		StartTime: time.Now().UTC(),
	}
}

// Tracker returns the engine's order tracker.
func (e *Engine) Tracker() *tracker.Tracker { return e.tracker }

// Syncer returns the engine's position syncer.
func (e *Engine) Syncer() *positionsync.Syncer { return e.syncer }

// Run resumes tracking of open orders, runs the sync cycle and logs a status
// line every monitor interval. It returns once ctx is done and every chain
// and in-flight sync has finished.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("Starting engine")

	if _, err := e.tracker.ResumeOpenOrders(ctx, e.store, e.factory); err != nil {
		return fmt.Errorf("could not resume order tracking: %w", err)
	}

	syncDone := make(chan struct{})
	go func() {
		defer close(syncDone)
		e.syncer.Run(ctx)
	}()

	interval := e.cfg.Tracker.MonitorInterval
	if interval <= 0 {
		interval = config.DefaultTracker().MonitorInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Stopping engine...")
			e.tracker.StopAll()
			e.tracker.Wait()
			<-syncDone
			return nil
		case <-ticker.C:
			st := e.Status()
			e.logger.Info("Engine status",
				zap.Int("tracked_orders", st.TrackedOrders),
				zap.Int("active_syncs", st.Sync.ActiveSyncs),
				zap.String("uptime", st.Uptime),
			)
		}
	}
}

// Track resolves the stored connection and starts tracking orderID on it.
func (e *Engine) Track(ctx context.Context, connectionID, orderID, ownerID string, kind broker.OrderKind) error {
	conn, err := e.store.GetConnection(ctx, connectionID)
	if err != nil {
		return err
	}
	adapter, err := e.factory.New(conn)
	if err != nil {
		return err
	}
	if err := adapter.Connect(ctx); err != nil {
		return fmt.Errorf("could not connect to %s: %w", conn.Kind, err)
	}
	if ownerID == "" {
		ownerID = conn.OwnerID
	}
	e.tracker.TrackOrder(adapter, orderID, ownerID, kind)
	return nil
}

// Status returns a snapshot of the engine.
func (e *Engine) Status() Status {
	return Status{
		StartTime:     e.StartTime,
		Uptime:        time.Since(e.StartTime).Round(time.Second).String(),
		TrackedOrders: e.tracker.GetActiveTrackingCount(),
		Sync:          e.syncer.GetStatus(),
	}
}
