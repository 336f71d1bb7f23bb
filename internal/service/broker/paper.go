// Package broker holds the execution venues selected at startup.
package broker

import (
	"context"
	"fmt"

	"TickPilot/internal/domain/models"
	drepo "TickPilot/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Paper fills every valid order immediately at the reference price moved
// against the trader by the slippage fraction. It has no market data.
type Paper struct {
	slippage float64
}

func NewPaper(slippage float64) *Paper {
	return &Paper{slippage: slippage}
}

func (p *Paper) Name() string { return "paper" }

func (p *Paper) FetchQuotes(context.Context, []string) (map[string]models.Quote, error) {
	return map[string]models.Quote{}, nil
}

func (p *Paper) PlaceOrder(_ context.Context, req models.OrderRequest) (models.OrderAck, error) {
	if req.Qty <= 0 || req.Price <= 0 {
		return models.OrderAck{Success: false, Message: fmt.Sprintf("invalid order qty=%d price=%.2f", req.Qty, req.Price)}, nil
	}
	adj := 1 - p.slippage
	if req.Buy() {
		adj = 1 + p.slippage
	}
	fill, _ := decimal.NewFromFloat(req.Price).Mul(decimal.NewFromFloat(adj)).Round(2).Float64()
	return models.OrderAck{
		Success:   true,
		OrderID:   "paper-" + uuid.NewString(),
		FillPrice: fill,
	}, nil
}

var _ drepo.Broker = (*Paper)(nil)
