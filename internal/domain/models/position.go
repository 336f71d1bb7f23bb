package models

import (
	"fmt"
	"time"
)

type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Direction is +1 for long and -1 for short.
func (s Side) Direction() float64 {
	if s == SideShort {
		return -1
	}
	return 1
}

type TradeType string

const (
	TradeTypeMeanReversion  TradeType = "MEAN_REVERSION"
	TradeTypeTrendFollowing TradeType = "TREND_FOLLOWING"
)

type PositionStatus string

const (
	PositionPending PositionStatus = "PENDING"
	PositionFilled  PositionStatus = "FILLED"
	// PositionPartial is reserved for partial fills.
	PositionPartial PositionStatus = "PARTIAL"
	PositionClosed  PositionStatus = "CLOSED"
)

type TradingState string

const (
	StateIdle              TradingState = "IDLE"
	StateWaitingForTrigger TradingState = "WAITING_FOR_TRIGGER"
	StatePositionOpen      TradingState = "POSITION_OPEN"
	StateLockedAfterLoss   TradingState = "LOCKED_AFTER_LOSS"
	StateHaltedForDay      TradingState = "HALTED_FOR_DAY"
)

// ManagedPosition is owned by the state machine; callers only ever see copies.
type ManagedPosition struct {
	ID           string         `json:"id"`
	Symbol       string         `json:"symbol"`
	Side         Side           `json:"side"`
	TradeType    TradeType      `json:"trade_type"`
	EntryPrice   float64        `json:"entry_price"`
	CurrentPrice float64        `json:"current_price"`
	Quantity     int            `json:"quantity"`
	PnL          float64        `json:"pnl"`
	StopLoss     float64        `json:"stop_loss"`
	Target       float64        `json:"target"`
	OrderID      string         `json:"order_id,omitempty"`
	OpenedAt     time.Time      `json:"opened_at"`
	Status       PositionStatus `json:"status"`
	ExitPrice    float64        `json:"exit_price,omitempty"`
	ExitReason   string         `json:"exit_reason,omitempty"`
	ClosedAt     time.Time      `json:"closed_at,omitempty"`
}

func (p ManagedPosition) IsOpen() bool {
	return p.Status == PositionFilled || p.Status == PositionPartial || p.Status == PositionPending
}

// Notional is the entry value of the position.
func (p ManagedPosition) Notional() float64 {
	return p.EntryPrice * float64(p.Quantity)
}

// ClosedTrade is the outcome of a single close.
type ClosedTrade struct {
	Position  ManagedPosition `json:"position"`
	PnL       float64         `json:"pnl"`
	Costs     float64         `json:"costs"`
	NetPnL    float64         `json:"net_pnl"`
	RMultiple float64         `json:"r_multiple"`
	IsLoss    bool            `json:"is_loss"`
}

func (t ClosedTrade) Description() string {
	p := t.Position
	return fmt.Sprintf("%s %s %d @ %.2f -> %.2f (%s) pnl=%.2f",
		p.Side, p.Symbol, p.Quantity, p.EntryPrice, p.ExitPrice, p.ExitReason, t.PnL)
}

// StateTransition is an audit record; it is not authoritative state.
type StateTransition struct {
	From      TradingState `json:"from"`
	To        TradingState `json:"to"`
	Trigger   string       `json:"trigger"`
	Timestamp time.Time    `json:"timestamp"`
}
