package models

import "time"

type TickStatus string

const (
	TickOK       TickStatus = "ok"
	TickDegraded TickStatus = "degraded"
	TickError    TickStatus = "error"
	// TickClosed is a tick on a non-trading day; nothing is fetched or traded.
	TickClosed TickStatus = "closed"
)

// TickSummary is the per-tick view the engine exposes to callers.
type TickSummary struct {
	Time          time.Time    `json:"time"`
	TradingDate   string       `json:"trading_date"`
	Regime        Regime       `json:"regime"`
	ShiftCount    int          `json:"shift_count"`
	State         TradingState `json:"state"`
	DailyLosses   int          `json:"daily_losses"`
	LockUntil     *time.Time   `json:"lock_until,omitempty"`
	KillSwitch    bool         `json:"kill_switch"`
	OpenPositions int          `json:"open_positions"`
	CanTrade      bool         `json:"can_trade"`
	QuoteSource   string       `json:"quote_source,omitempty"`
	Equity        float64      `json:"equity"`
	DailyPnL      float64      `json:"daily_pnl"`
	TradesToday   int          `json:"trades_today"`
	Exits         []string     `json:"exits,omitempty"`
	Entries       []string     `json:"entries,omitempty"`
	Rejections    []string     `json:"rejections,omitempty"`
	Expectancy    Expectancy   `json:"expectancy"`
}

// TickResult is what a tick returns; errors are reported, never propagated.
type TickResult struct {
	Status  TickStatus  `json:"status"`
	Summary TickSummary `json:"summary"`
	Errors  []string    `json:"errors,omitempty"`
}

// Expectancy accumulates realized R-multiples.
type Expectancy struct {
	Trades int     `json:"trades"`
	Wins   int     `json:"wins"`
	TotalR float64 `json:"total_r"`
}

func (e *Expectancy) Add(r float64) {
	e.Trades++
	if r > 0 {
		e.Wins++
	}
	e.TotalR += r
}

// AverageR is the mean R-multiple per trade, 0 with no trades.
func (e Expectancy) AverageR() float64 {
	if e.Trades == 0 {
		return 0
	}
	return e.TotalR / float64(e.Trades)
}

func (e Expectancy) WinRate() float64 {
	if e.Trades == 0 {
		return 0
	}
	return float64(e.Wins) / float64(e.Trades)
}
