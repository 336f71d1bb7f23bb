package service

import (
	"context"

	"TickPilot/internal/domain/models"
)

// Advisor classifies the recent trend of a symbol. It is optional and advisory only.
type Advisor interface {
	Classify(ctx context.Context, symbol string, candles []models.Candle) (models.Advice, error)
}
