package exits

import (
	"math"

	"TickPilot/internal/domain/models"

	"github.com/shopspring/decimal"
)

// CostModel estimates round-trip trading costs.
type CostModel struct {
	BrokeragePerSide float64
	STT              float64
	Slippage         float64
}

func DefaultCostModel() CostModel {
	return CostModel{BrokeragePerSide: 20, STT: 0.001, Slippage: 0.0005}
}

// Estimate is brokerage on both sides plus STT on the absolute gross PnL.
func (c CostModel) Estimate(grossPnL float64) float64 {
	return round2(2*c.BrokeragePerSide + math.Abs(grossPnL)*c.STT)
}

// FillPrice moves price against the trader by the slippage fraction.
// Buying fills higher, selling fills lower.
func (c CostModel) FillPrice(price float64, buy bool) float64 {
	if buy {
		return price * (1 + c.Slippage)
	}
	return price * (1 - c.Slippage)
}

// Settle fills in costs, net PnL and the R-multiple of t. riskUnit is the
// money risked per trade; a non-positive unit leaves R at zero.
func (c CostModel) Settle(t *models.ClosedTrade, riskUnit float64) {
	t.Costs = c.Estimate(t.PnL)
	t.NetPnL = round2(t.PnL - t.Costs)
	t.RMultiple = RMultiple(t.NetPnL, riskUnit)
}

func RMultiple(pnl, riskUnit float64) float64 {
	if riskUnit <= 0 {
		return 0
	}
	return pnl / riskUnit
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
