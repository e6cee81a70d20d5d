// Package positionsync keeps open positions consistent with the broker on a
// fixed cycle: it refreshes quantity and P&L, detects positions closed at the
// broker, and records stop-loss/take-profit triggers.
package positionsync

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"tradesync/internal/adapters"
	"tradesync/internal/config"
	"tradesync/internal/database"
	"tradesync/internal/models"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

var (
	// ErrSyncInProgress is returned when the position is already being synced.
	ErrSyncInProgress = errors.New("position sync already in progress")
	// ErrNotSyncable is returned for positions that are closed or not held at a broker.
	ErrNotSyncable = errors.New("position is not syncable")
)

// PositionStore is the persistence the syncer reads from and writes to.
type PositionStore interface {
	ListStalePositions(ctx context.Context, staleBefore time.Time, limit int) ([]models.Position, error)
	GetPosition(ctx context.Context, id string) (*models.Position, error)
	GetConnection(ctx context.Context, id string) (*models.BrokerConnection, error)
	UpdatePositionSnapshot(ctx context.Context, id string, snap database.Snapshot) error
	ClosePosition(ctx context.Context, id string, closedAt time.Time, noteType models.NoteType, reason string) error
	AddNote(ctx context.Context, note *models.PositionNote) error
}

// Status is a point-in-time view of the syncer.
type Status struct {
	Running     bool        `json:"running"`
	ActiveSyncs int         `json:"active_syncs"`
	Config      config.Sync `json:"config"`
}

// Syncer reconciles open positions against their brokers.
type Syncer struct {
	logger  *zap.Logger
	store   PositionStore
	factory adapters.Factory
	cfg     config.Sync
	now     func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	active  map[string]struct{}
	idle    *sync.Cond
}

// NewSyncer creates a syncer. Zero-valued settings fall back to the defaults.
func NewSyncer(logger *zap.Logger, store PositionStore, factory adapters.Factory, cfg config.Sync) *Syncer {
	def := config.DefaultSync()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = def.StaleAfter
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	s := &Syncer{
		logger:  logger.Named("position-sync"),
		store:   store,
		factory: factory,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
		active:  make(map[string]struct{}),
	}
	s.idle = sync.NewCond(&s.mu)
	return s
}

// Start runs one cycle immediately and then one per interval. It is a no-op
// when already running.
func (s *Syncer) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.cancel = cancel
	go s.loop(ctx)
	s.logger.Info("Position sync started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Duration("stale_after", s.cfg.StaleAfter),
		zap.Int("batch_size", s.cfg.BatchSize),
	)
}

// Stop prevents further cycles. Syncs already in flight run to completion.
func (s *Syncer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.cancel()
	s.running = false
	s.logger.Info("Position sync stopped")
}

// Run starts the cycle, blocks until ctx is done, then stops and waits for
// in-flight syncs.
func (s *Syncer) Run(ctx context.Context) {
	s.Start()
	<-ctx.Done()
	s.Stop()
	s.WaitIdle()
}

// WaitIdle blocks until no sync is in flight. Syncs started while waiting
// are waited for too.
func (s *Syncer) WaitIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.active) > 0 {
		s.idle.Wait()
	}
}

// GetStatus reports whether the cycle runs, how many syncs are in flight and
// the effective configuration.
func (s *Syncer) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{Running: s.running, ActiveSyncs: len(s.active), Config: s.cfg}
}

func (s *Syncer) loop(ctx context.Context) {
	s.RunCycle(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// RunCycle syncs one batch of stale positions, oldest first, with at most
// BatchSize syncs in flight. It returns the number of positions selected.
func (s *Syncer) RunCycle(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	staleBefore := s.now().Add(-s.cfg.StaleAfter)
	positions, err := s.store.ListStalePositions(ctx, staleBefore, s.cfg.BatchSize)
	if err != nil {
		s.logger.Error("Could not select positions to sync", zap.Error(err))
		return 0
	}
	if len(positions) == 0 {
		s.logger.Debug("No stale positions")
		return 0
	}
	s.logger.Info("Sync cycle", zap.Int("positions", len(positions)))

	// in-flight syncs survive Stop
	work := context.WithoutCancel(ctx)
	p := pool.New().WithMaxGoroutines(s.cfg.BatchSize)
	for _, pos := range positions {
		p.Go(func() {
			if err := s.syncPosition(work, pos); err != nil {
				l := s.logger.With(zap.String("position_id", pos.ID), zap.String("symbol", pos.Symbol))
				if errors.Is(err, ErrSyncInProgress) {
					l.Debug("Position already syncing, skipped")
					return
				}
				l.Error("Position sync failed", zap.Error(err))
			}
		})
	}
	p.Wait()
	return len(positions)
}

// SyncPositionNow syncs one position outside the cycle, regardless of when
// it was last synced.
func (s *Syncer) SyncPositionNow(ctx context.Context, positionID string) error {
	pos, err := s.store.GetPosition(ctx, positionID)
	if err != nil {
		return err
	}
	if pos.Status != models.PositionStatusOpen || pos.BrokerConnectionID == "" {
		return fmt.Errorf("%w: %s (status %s)", ErrNotSyncable, positionID, pos.Status)
	}
	return s.syncPosition(ctx, *pos)
}

// acquire marks id as syncing. It reports false when it already is.
func (s *Syncer) acquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.active[id]; busy {
		return false
	}
	s.active[id] = struct{}{}
	return true
}

func (s *Syncer) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, id)
	if len(s.active) == 0 {
		s.idle.Broadcast()
	}
}

func (s *Syncer) syncPosition(ctx context.Context, pos models.Position) error {
	if !s.acquire(pos.ID) {
		return ErrSyncInProgress
	}
	defer s.release(pos.ID)

	l := s.logger.With(zap.String("position_id", pos.ID), zap.String("symbol", pos.Symbol))

	conn, err := s.store.GetConnection(ctx, pos.BrokerConnectionID)
	if err != nil {
		return fmt.Errorf("resolve broker connection: %w", err)
	}
	adapter, err := s.factory.New(conn)
	if err != nil {
		return fmt.Errorf("build broker client: %w", err)
	}
	if err := adapter.Connect(ctx); err != nil {
		return fmt.Errorf("connect broker: %w", err)
	}

	snap, err := adapter.GetPositionNormalized(ctx, pos.Symbol)
	if err != nil {
		return fmt.Errorf("fetch broker position: %w", err)
	}

	now := s.now()
	if snap == nil {
		reason := fmt.Sprintf("Position closed externally: broker no longer reports %s", pos.Symbol)
		if err := s.store.ClosePosition(ctx, pos.ID, now, models.NoteTypeExternalClose, reason); err != nil {
			return err
		}
		l.Warn("Position closed at broker, marked closed")
		return nil
	}

	qty := math.Abs(snap.Quantity)
	pnl := UnrealizedPnl(pos.Direction, qty, pos.AvgEntryPrice, snap.CurrentPrice)
	err = s.store.UpdatePositionSnapshot(ctx, pos.ID, database.Snapshot{
		Quantity:      qty,
		CurrentPrice:  snap.CurrentPrice,
		UnrealizedPnl: pnl,
		SyncedAt:      now,
	})
	if err != nil {
		return err
	}
	l.Debug("Position synced",
		zap.Float64("quantity", qty),
		zap.Float64("price", snap.CurrentPrice),
		zap.Float64("unrealized_pnl", pnl),
	)

	// Triggers are only recorded; closing the position stays a manual decision.
	if trig, ok := checkExit(&pos, snap.CurrentPrice); ok {
		note := models.PositionNote{PositionID: pos.ID, Type: trig.noteType, Content: trig.content, CreatedAt: now}
		if err := s.store.AddNote(ctx, &note); err != nil {
			return err
		}
		l.Warn("Exit trigger fired", zap.String("trigger", string(trig.noteType)), zap.Float64("price", snap.CurrentPrice))
	}
	return nil
}

type trigger struct {
	noteType models.NoteType
	content  string
}

// checkExit evaluates stop-loss before take-profit and returns at most one trigger.
func checkExit(pos *models.Position, price float64) (trigger, bool) {
	if StopLossHit(pos.Direction, price, pos.StopLoss) {
		return trigger{
			noteType: models.NoteTypeStopLoss,
			content:  fmt.Sprintf("Stop loss triggered at %.2f (stop loss %.2f)", price, *pos.StopLoss),
		}, true
	}
	if TakeProfitHit(pos.Direction, price, pos.TakeProfit) {
		return trigger{
			noteType: models.NoteTypeTakeProfit,
			content:  fmt.Sprintf("Take profit triggered at %.2f (take profit %.2f)", price, *pos.TakeProfit),
		}, true
	}
	return trigger{}, false
}
