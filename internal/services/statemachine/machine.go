// Package statemachine owns the canonical position set and the trading state.
//
// Time-based transitions happen only in TickStart; every getter is pure, so
// reads within one tick always agree.
package statemachine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"TickPilot/internal/domain/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const transitionLimit = 50

var (
	ErrCannotOpen        = errors.New("statemachine: opening a position is not permitted")
	ErrInvalidOrder      = errors.New("statemachine: invalid open request")
	ErrInvalidTransition = errors.New("statemachine: invalid transition")
)

type Config struct {
	MaxConcurrentPositions int
	MaxDailyLosses         int
	LockDuration           time.Duration
	// LossRequiresStopReason counts a losing close only when its exit reason
	// names a stop. By default the PnL sign alone decides.
	LossRequiresStopReason bool
}

func DefaultConfig() Config {
	return Config{
		MaxConcurrentPositions: 4,
		MaxDailyLosses:         2,
		LockDuration:           30 * time.Minute,
	}
}

// Watch is an armed entry condition.
type Watch struct {
	Symbol  string    `json:"symbol"`
	Reason  string    `json:"reason"`
	ArmedAt time.Time `json:"armed_at"`
}

type OpenRequest struct {
	Symbol     string
	Side       models.Side
	TradeType  models.TradeType
	EntryPrice float64
	Quantity   int
	StopLoss   float64
	Target     float64
	OrderID    string
}

// Machine is not safe for concurrent use; the engine serializes ticks.
type Machine struct {
	cfg   Config
	now   func() time.Time
	newID func() string

	state       models.TradingState
	positions   []*models.ManagedPosition
	dailyLosses int
	lockUntil   time.Time
	killSwitch  bool
	killReason  string
	watch       *Watch
	transitions []models.StateTransition
}

type Option func(*Machine)

func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(m *Machine) { m.newID = gen }
}

func New(cfg Config, opts ...Option) *Machine {
	m := &Machine{
		cfg:   cfg,
		now:   time.Now,
		newID: uuid.NewString,
		state: models.StateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) State() models.TradingState { return m.state }

// TickStart applies time-based transitions. Call it once at the start of a tick.
func (m *Machine) TickStart() models.TradingState {
	if m.state == models.StateLockedAfterLoss && m.lockElapsed() {
		m.lockUntil = time.Time{}
		m.transition(m.restingState(), "lock expired")
	}
	return m.state
}

func (m *Machine) lockElapsed() bool {
	return m.now().After(m.lockUntil)
}

// restingState is where the machine settles once nothing blocks trading.
func (m *Machine) restingState() models.TradingState {
	if m.openCount() > 0 {
		return models.StatePositionOpen
	}
	return models.StateIdle
}

// CanOpenPosition is pure: an elapsed lock reads as open even before TickStart.
func (m *Machine) CanOpenPosition() bool {
	switch m.state {
	case models.StateHaltedForDay:
		return false
	case models.StateLockedAfterLoss:
		if !m.lockElapsed() {
			return false
		}
	}
	return m.openCount() < m.cfg.MaxConcurrentPositions
}

func (m *Machine) ArmWatch(symbol, reason string) error {
	if m.state != models.StateIdle {
		return fmt.Errorf("%w: arm watch from %s", ErrInvalidTransition, m.state)
	}
	m.watch = &Watch{Symbol: symbol, Reason: reason, ArmedAt: m.now()}
	m.transition(models.StateWaitingForTrigger, "watch armed: "+symbol)
	return nil
}

func (m *Machine) CancelWatch() error {
	if m.state != models.StateWaitingForTrigger {
		return fmt.Errorf("%w: cancel watch from %s", ErrInvalidTransition, m.state)
	}
	m.watch = nil
	m.transition(models.StateIdle, "watch cancelled")
	return nil
}

// OpenPosition records a filled position. Call it only after the broker acknowledged the fill.
func (m *Machine) OpenPosition(req OpenRequest) (models.ManagedPosition, error) {
	if req.Symbol == "" || req.Quantity <= 0 || req.EntryPrice <= 0 {
		return models.ManagedPosition{}, fmt.Errorf("%w: %s qty=%d entry=%.2f", ErrInvalidOrder, req.Symbol, req.Quantity, req.EntryPrice)
	}
	if req.Side != models.SideLong && req.Side != models.SideShort {
		return models.ManagedPosition{}, fmt.Errorf("%w: side %q", ErrInvalidOrder, req.Side)
	}
	if !m.CanOpenPosition() {
		return models.ManagedPosition{}, fmt.Errorf("%w: state %s", ErrCannotOpen, m.state)
	}
	if m.state == models.StateLockedAfterLoss {
		m.lockUntil = time.Time{}
		m.transition(m.restingState(), "lock expired")
	}

	now := m.now()
	p := &models.ManagedPosition{
		ID:           m.newID(),
		Symbol:       req.Symbol,
		Side:         req.Side,
		TradeType:    req.TradeType,
		EntryPrice:   req.EntryPrice,
		CurrentPrice: req.EntryPrice,
		Quantity:     req.Quantity,
		StopLoss:     req.StopLoss,
		Target:       req.Target,
		OrderID:      req.OrderID,
		OpenedAt:     now,
		Status:       models.PositionFilled,
	}
	m.positions = append(m.positions, p)
	m.watch = nil
	m.transition(models.StatePositionOpen, fmt.Sprintf("opened %s %s x%d", p.Side, p.Symbol, p.Quantity))
	return *p, nil
}

// UpdatePositionPrices marks open positions to market. Must precede CheckExits.
func (m *Machine) UpdatePositionPrices(prices map[string]float64) {
	for _, p := range m.positions {
		if !p.IsOpen() {
			continue
		}
		price, ok := prices[p.Symbol]
		if !ok || price <= 0 {
			continue
		}
		p.CurrentPrice = price
		p.PnL = computePnL(p.Side, p.EntryPrice, price, p.Quantity)
	}
}

// ClosePosition closes id at exitPrice. It returns nil when the position is
// unknown or already closed, so a repeated call changes nothing.
func (m *Machine) ClosePosition(id string, exitPrice float64, reason string) *models.ClosedTrade {
	p := m.find(id)
	if p == nil || p.Status == models.PositionClosed {
		return nil
	}
	pnl := computePnL(p.Side, p.EntryPrice, exitPrice, p.Quantity)
	p.CurrentPrice = exitPrice
	p.ExitPrice = exitPrice
	p.PnL = pnl
	p.ExitReason = reason
	p.ClosedAt = m.now()
	p.Status = models.PositionClosed

	loss := pnl < 0 && (!m.cfg.LossRequiresStopReason || isStopReason(reason))
	switch {
	case loss:
		m.dailyLosses++
		if m.dailyLosses >= m.cfg.MaxDailyLosses {
			m.transition(models.StateHaltedForDay, fmt.Sprintf("max daily losses reached (%d)", m.dailyLosses))
		} else if m.state != models.StateHaltedForDay {
			m.lockUntil = m.now().Add(m.cfg.LockDuration)
			m.transition(models.StateLockedAfterLoss, fmt.Sprintf("loss on %s (%.2f)", p.Symbol, pnl))
		}
	case m.state == models.StatePositionOpen && m.openCount() == 0:
		m.transition(models.StateIdle, "all positions closed")
	}

	return &models.ClosedTrade{Position: *p, PnL: pnl, NetPnL: pnl, IsLoss: loss}
}

// ExitResult pairs a closed trade with its log line.
type ExitResult struct {
	Trade       models.ClosedTrade
	Description string
}

// CheckExits closes every open position whose stop or target was crossed.
func (m *Machine) CheckExits(prices map[string]float64) []ExitResult {
	var out []ExitResult
	for _, p := range m.openPositions() {
		price, ok := prices[p.Symbol]
		if !ok || price <= 0 {
			continue
		}
		reason := exitReason(p, price)
		if reason == "" {
			continue
		}
		if t := m.ClosePosition(p.ID, price, reason); t != nil {
			out = append(out, ExitResult{Trade: *t, Description: t.Description()})
		}
	}
	return out
}

// CloseAll closes every open position at its mapped price, or at its last
// marked price when the map has none.
func (m *Machine) CloseAll(prices map[string]float64, reason string) []models.ClosedTrade {
	var out []models.ClosedTrade
	for _, p := range m.openPositions() {
		price, ok := prices[p.Symbol]
		if !ok || price <= 0 {
			price = p.CurrentPrice
		}
		if t := m.ClosePosition(p.ID, price, reason); t != nil {
			out = append(out, *t)
		}
	}
	return out
}

func exitReason(p *models.ManagedPosition, price float64) string {
	if p.Side == models.SideShort {
		switch {
		case p.StopLoss > 0 && price >= p.StopLoss:
			return "stop loss"
		case p.Target > 0 && price <= p.Target:
			return "take profit"
		}
		return ""
	}
	switch {
	case p.StopLoss > 0 && price <= p.StopLoss:
		return "stop loss"
	case p.Target > 0 && price >= p.Target:
		return "take profit"
	}
	return ""
}

func (m *Machine) ActivateKillSwitch(reason string) {
	m.killSwitch = true
	m.killReason = reason
	m.transition(models.StateHaltedForDay, "kill switch: "+reason)
}

func (m *Machine) DeactivateKillSwitch() {
	if !m.killSwitch {
		return
	}
	m.killSwitch = false
	m.killReason = ""
	m.transition(m.restingState(), "kill switch deactivated")
}

// ResetForNewDay starts a new trading day. Open positions carry over.
func (m *Machine) ResetForNewDay() {
	m.dailyLosses = 0
	m.lockUntil = time.Time{}
	m.killSwitch = false
	m.killReason = ""

	kept := m.positions[:0]
	for _, p := range m.positions {
		if p.Status != models.PositionClosed {
			kept = append(kept, p)
		}
	}
	for i := len(kept); i < len(m.positions); i++ {
		m.positions[i] = nil
	}
	m.positions = kept

	m.transitions = nil
	if m.state == models.StateHaltedForDay || m.state == models.StateLockedAfterLoss {
		m.transition(m.restingState(), "new trading day")
	}
}

func (m *Machine) transition(to models.TradingState, trigger string) {
	if to == m.state {
		return
	}
	m.transitions = append(m.transitions, models.StateTransition{
		From:      m.state,
		To:        to,
		Trigger:   trigger,
		Timestamp: m.now(),
	})
	if len(m.transitions) > transitionLimit {
		m.transitions = append([]models.StateTransition(nil), m.transitions[len(m.transitions)-transitionLimit:]...)
	}
	m.state = to
}

func (m *Machine) find(id string) *models.ManagedPosition {
	for _, p := range m.positions {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (m *Machine) openPositions() []*models.ManagedPosition {
	var out []*models.ManagedPosition
	for _, p := range m.positions {
		if p.IsOpen() {
			out = append(out, p)
		}
	}
	return out
}

func (m *Machine) openCount() int {
	n := 0
	for _, p := range m.positions {
		if p.IsOpen() {
			n++
		}
	}
	return n
}

func computePnL(side models.Side, entry, exit float64, qty int) float64 {
	raw := (exit - entry) * float64(qty) * side.Direction()
	return decimal.NewFromFloat(raw).Round(2).InexactFloat64()
}

func isStopReason(reason string) bool {
	r := strings.ToLower(reason)
	return strings.Contains(r, "stop") || strings.Contains(r, "loss") || strings.Contains(r, "trail")
}
