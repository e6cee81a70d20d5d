package tracker

import (
	"testing"
	"time"

	"tradesync/internal/broker"
	"tradesync/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestNextDelay_Market(t *testing.T) {
	cfg := config.DefaultTracker()
	for completed := 1; completed <= 5; completed++ {
		assert.Equal(t, time.Second, NextDelay(cfg, broker.OrderKindMarket, completed))
	}
}

func TestNextDelay_LimitLikeKinds(t *testing.T) {
	cfg := config.DefaultTracker()
	want := []time.Duration{2 * time.Second, 3 * time.Second, time.Minute, time.Minute, time.Minute}

	for _, kind := range []broker.OrderKind{broker.OrderKindLimit, broker.OrderKindStop, broker.OrderKindStopLimit} {
		var got []time.Duration
		for completed := 1; completed <= len(want); completed++ {
			got = append(got, NextDelay(cfg, kind, completed))
		}
		assert.Equal(t, want, got, string(kind))
	}
}

func TestNextDelay_NoConfirmOffsets(t *testing.T) {
	cfg := config.DefaultTracker()
	cfg.ConfirmOffsets = nil
	assert.Equal(t, time.Minute, NextDelay(cfg, broker.OrderKindLimit, 1))
}
