package statemachine

import (
	"time"

	"TickPilot/internal/domain/models"
)

// Positions returns copies of every tracked position, open and closed.
func (m *Machine) Positions() []models.ManagedPosition {
	out := make([]models.ManagedPosition, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, *p)
	}
	return out
}

func (m *Machine) OpenPositions() []models.ManagedPosition {
	var out []models.ManagedPosition
	for _, p := range m.openPositions() {
		out = append(out, *p)
	}
	return out
}

// OpenPositionFor returns the open position on symbol, if any.
func (m *Machine) OpenPositionFor(symbol string) (models.ManagedPosition, bool) {
	for _, p := range m.positions {
		if p.IsOpen() && p.Symbol == symbol {
			return *p, true
		}
	}
	return models.ManagedPosition{}, false
}

func (m *Machine) Position(id string) (models.ManagedPosition, bool) {
	if p := m.find(id); p != nil {
		return *p, true
	}
	return models.ManagedPosition{}, false
}

func (m *Machine) OpenCount() int { return m.openCount() }

func (m *Machine) DailyLosses() int { return m.dailyLosses }

// LockUntil is zero when no lock is pending.
func (m *Machine) LockUntil() time.Time { return m.lockUntil }

func (m *Machine) KillSwitch() (bool, string) { return m.killSwitch, m.killReason }

func (m *Machine) Watch() *Watch {
	if m.watch == nil {
		return nil
	}
	w := *m.watch
	return &w
}

func (m *Machine) Transitions() []models.StateTransition {
	return append([]models.StateTransition(nil), m.transitions...)
}

// UnrealizedPnL sums the marked PnL of open positions.
func (m *Machine) UnrealizedPnL() float64 {
	sum := 0.0
	for _, p := range m.positions {
		if p.IsOpen() {
			sum += p.PnL
		}
	}
	return sum
}

// RealizedPnL sums the PnL of positions closed since the last reset.
func (m *Machine) RealizedPnL() float64 {
	sum := 0.0
	for _, p := range m.positions {
		if p.Status == models.PositionClosed {
			sum += p.PnL
		}
	}
	return sum
}
