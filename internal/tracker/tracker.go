// Package tracker drives freshly placed orders to a terminal status by polling
// the broker at a cadence matched to the order's expected time to fill.
package tracker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"tradesync/internal/broker"
	"tradesync/internal/config"
	"tradesync/internal/database"
	"tradesync/internal/models"

	"go.uber.org/zap"
)

// OrderStore is the persistence the tracker writes to.
type OrderStore interface {
	UpsertOrder(ctx context.Context, order *models.OrderMirror) error
	ApplyFill(ctx context.Context, fill database.Fill) (*models.Position, bool, error)
}

// TimerFunc returns a channel that fires after d and a function that stops it.
type TimerFunc func(d time.Duration) (<-chan time.Time, func() bool)

// Option customizes a Tracker.
type Option func(*Tracker)

// WithTimer replaces the wall-clock timer used between polls.
func WithTimer(fn TimerFunc) Option {
	return func(t *Tracker) { t.timer = fn }
}

// WithClock replaces the clock used to stamp sync times.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// Tracker owns one polling chain per tracked order.
type Tracker struct {
	logger *zap.Logger
	store  OrderStore
	cfg    config.Tracker
	timer  TimerFunc
	now    func() time.Time

	mu     sync.Mutex
	active map[string]*chain
	wg     sync.WaitGroup
}

// chain is the cancellation token and poll counter of one tracked order.
type chain struct {
	cancel context.CancelFunc
	polls  atomic.Int64
}

type job struct {
	adapter broker.Adapter
	orderID string
	ownerID string
	kind    broker.OrderKind
}

// NewTracker creates a tracker writing to store. Zero or negative poll
// intervals fall back to the defaults.
func NewTracker(logger *zap.Logger, store OrderStore, cfg config.Tracker, opts ...Option) *Tracker {
	def := config.DefaultTracker()
	if cfg.MarketPollInterval <= 0 {
		cfg.MarketPollInterval = def.MarketPollInterval
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = def.MonitorInterval
	}
	t := &Tracker{
		logger: logger.Named("tracker"),
		store:  store,
		cfg:    cfg,
		timer: func(d time.Duration) (<-chan time.Time, func() bool) {
			tm := time.NewTimer(d)
			return tm.C, tm.Stop
		},
		now:    func() time.Time { return time.Now().UTC() },
		active: make(map[string]*chain),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// TrackOrder starts polling orderID in the background. An existing chain for
// the same order is canceled first.
func (t *Tracker) TrackOrder(adapter broker.Adapter, orderID, ownerID string, kind broker.OrderKind) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &chain{cancel: cancel}

	t.mu.Lock()
	if prev, ok := t.active[orderID]; ok {
		prev.cancel()
		t.logger.Info("Restarting order tracking", zap.String("order_id", orderID))
	}
	t.active[orderID] = c
	t.wg.Add(1)
	t.mu.Unlock()

	go t.run(ctx, c, job{adapter: adapter, orderID: orderID, ownerID: ownerID, kind: kind})
}

// StopTracking cancels the chain for orderID, if any.
func (t *Tracker) StopTracking(orderID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.active[orderID]; ok {
		c.cancel()
		delete(t.active, orderID)
	}
}

// StopAll cancels every chain.
func (t *Tracker) StopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, c := range t.active {
		c.cancel()
		delete(t.active, id)
	}
}

// Wait blocks until every chain goroutine has returned.
func (t *Tracker) Wait() {
	t.wg.Wait()
}

// GetActiveTrackingCount returns the number of orders currently being polled.
func (t *Tracker) GetActiveTrackingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// PollCount returns how many polls the active chain for orderID has issued.
func (t *Tracker) PollCount(orderID string) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.active[orderID]
	if !ok {
		return 0, false
	}
	return int(c.polls.Load()), true
}

// release drops c from the active map unless a newer chain replaced it.
func (t *Tracker) release(orderID string, c *chain) {
	c.cancel()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active[orderID] == c {
		delete(t.active, orderID)
	}
}

func (t *Tracker) run(ctx context.Context, c *chain, j job) {
	defer t.wg.Done()
	defer t.release(j.orderID, c)

	l := t.logger.With(
		zap.String("order_id", j.orderID),
		zap.String("kind", string(j.kind)),
		zap.String("connection_id", j.adapter.ConnectionID()),
	)
	l.Info("Tracking order")

	var delay time.Duration
	for {
		if delay > 0 && !t.sleep(ctx, delay) {
			l.Debug("Tracking canceled")
			return
		}
		if ctx.Err() != nil {
			return
		}

		attempt := int(c.polls.Add(1))
		if t.poll(ctx, l.With(zap.Int("attempt", attempt)), j) {
			return
		}

		if j.kind == broker.OrderKindMarket && t.cfg.MaxPollAttempts > 0 && attempt >= t.cfg.MaxPollAttempts {
			l.Warn("Max poll attempts reached, abandoning order tracking", zap.Int("attempts", attempt))
			return
		}
		delay = NextDelay(t.cfg, j.kind, attempt)
	}
}

// sleep waits for d or cancellation. It reports false when canceled.
func (t *Tracker) sleep(ctx context.Context, d time.Duration) bool {
	fire, stop := t.timer(d)
	select {
	case <-fire:
		return true
	case <-ctx.Done():
		stop()
		return false
	}
}

// poll fetches the order once and reports whether tracking is finished.
// Broker errors are not terminal: the next tick retries at the same cadence.
func (t *Tracker) poll(ctx context.Context, l *zap.Logger, j job) bool {
	order, err := j.adapter.GetOrderTracked(ctx, j.orderID)
	if ctx.Err() != nil {
		// stopped while the call was in flight; the result is discarded
		return true
	}
	if err != nil {
		l.Warn("Order poll failed, will retry", zap.Error(err))
		return false
	}

	mirror := models.NewOrderMirror(order, j.adapter.ConnectionID(), j.ownerID, t.now())
	if err := t.store.UpsertOrder(ctx, &mirror); err != nil {
		l.Error("Failed to save order mirror", zap.Error(err))
	}

	if !order.Status.IsTerminal() {
		l.Debug("Order still open", zap.String("status", string(order.Status)))
		return false
	}

	l.Info("Order reached terminal status", zap.String("status", string(order.Status)))
	if order.Status == broker.OrderStatusFilled {
		t.handleFill(ctx, l, j, order)
	}
	return true
}

// handleFill hands a filled order over to position creation.
func (t *Tracker) handleFill(ctx context.Context, l *zap.Logger, j job, order *broker.NormalizedOrder) {
	qty := order.Quantity
	if order.FilledQuantity != nil && *order.FilledQuantity > 0 {
		qty = *order.FilledQuantity
	}
	if order.FilledAvgPrice == nil || *order.FilledAvgPrice <= 0 || qty <= 0 {
		l.Warn("Filled order has no usable fill price or quantity, skipping position update")
		return
	}
	executedAt := t.now()
	if order.FilledAt != nil {
		executedAt = order.FilledAt.UTC()
	}

	pos, applied, err := t.store.ApplyFill(ctx, database.Fill{
		BrokerOrderID: j.orderID,
		ConnectionID:  j.adapter.ConnectionID(),
		OwnerID:       j.ownerID,
		Symbol:        order.Symbol,
		Side:          order.Side,
		Quantity:      qty,
		Price:         *order.FilledAvgPrice,
		ExecutedAt:    executedAt,
	})
	if err != nil {
		l.Error("Failed to apply fill to position", zap.Error(err))
		return
	}
	if !applied {
		l.Info("Fill already recorded, position unchanged")
		return
	}
	l.Info("Position updated from fill",
		zap.String("position_id", pos.ID),
		zap.Float64("quantity", pos.Quantity),
		zap.Float64("avg_entry_price", pos.AvgEntryPrice),
	)
}
