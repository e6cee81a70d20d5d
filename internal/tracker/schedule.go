package tracker

import (
	"time"

	"tradesync/internal/broker"
	"tradesync/internal/config"
)

// NextDelay returns how long to wait before the next poll of an order of the
// given kind after completed polls have run. Market orders poll at a fixed
// short interval. Other kinds poll at the confirmation offsets (measured from
// the first poll) and then settle on the monitor interval.
func NextDelay(cfg config.Tracker, kind broker.OrderKind, completed int) time.Duration {
	if kind == broker.OrderKindMarket {
		return cfg.MarketPollInterval
	}
	if completed >= 1 && completed <= len(cfg.ConfirmOffsets) {
		var prev time.Duration
		if completed > 1 {
			prev = cfg.ConfirmOffsets[completed-2]
		}
		if d := cfg.ConfirmOffsets[completed-1] - prev; d > 0 {
			return d
		}
		return 0
	}
	return cfg.MonitorInterval
}
