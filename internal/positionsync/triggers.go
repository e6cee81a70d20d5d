package positionsync

import "tradesync/internal/models"

// UnrealizedPnl is (price - entry) * qty for longs, sign-flipped for shorts.
func UnrealizedPnl(dir models.Direction, qty, avgEntry, price float64) float64 {
	pnl := (price - avgEntry) * qty
	if dir == models.DirectionShort {
		return -pnl
	}
	return pnl
}

// StopLossHit reports whether price has crossed the stop for the direction.
func StopLossHit(dir models.Direction, price float64, stop *float64) bool {
	if stop == nil {
		return false
	}
	if dir == models.DirectionShort {
		return price >= *stop
	}
	return price <= *stop
}

// TakeProfitHit reports whether price has reached the target for the direction.
func TakeProfitHit(dir models.Direction, price float64, target *float64) bool {
	if target == nil {
		return false
	}
	if dir == models.DirectionShort {
		return price <= *target
	}
	return price >= *target
}
