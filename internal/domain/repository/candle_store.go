package repository

import (
	"context"

	"TickPilot/internal/domain/models"
)

// CandleStore provides read-only access to stored bars, used to warm the
// in-memory history before the first tick.
type CandleStore interface {
	LatestCandles(ctx context.Context, symbol string, n int) ([]models.Candle, error)
}
