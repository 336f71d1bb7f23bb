package statemachine

import (
	"errors"
	"fmt"
	"time"

	"TickPilot/internal/domain/models"
)

const SnapshotVersion = 1

var ErrSnapshotVersion = errors.New("statemachine: unsupported snapshot version")

// Snapshot is the persisted form of a Machine.
type Snapshot struct {
	Version     int                      `json:"version"`
	State       models.TradingState      `json:"state"`
	Positions   []models.ManagedPosition `json:"positions"`
	DailyLosses int                      `json:"daily_losses"`
	LockUntil   time.Time                `json:"lock_until"`
	KillSwitch  bool                     `json:"kill_switch"`
	KillReason  string                   `json:"kill_reason,omitempty"`
	Watch       *Watch                   `json:"watch,omitempty"`
	Transitions []models.StateTransition `json:"transitions"`
}

func (m *Machine) Export() Snapshot {
	return Snapshot{
		Version:     SnapshotVersion,
		State:       m.state,
		Positions:   m.Positions(),
		DailyLosses: m.dailyLosses,
		LockUntil:   m.lockUntil,
		KillSwitch:  m.killSwitch,
		KillReason:  m.killReason,
		Watch:       m.Watch(),
		Transitions: m.Transitions(),
	}
}

// Import replaces the machine state with s.
func (m *Machine) Import(s Snapshot) error {
	if s.Version != SnapshotVersion {
		return fmt.Errorf("%w: %d", ErrSnapshotVersion, s.Version)
	}
	switch s.State {
	case models.StateIdle, models.StateWaitingForTrigger, models.StatePositionOpen,
		models.StateLockedAfterLoss, models.StateHaltedForDay:
	default:
		return fmt.Errorf("statemachine snapshot: unknown state %q", s.State)
	}
	positions := make([]*models.ManagedPosition, 0, len(s.Positions))
	for i := range s.Positions {
		p := s.Positions[i]
		positions = append(positions, &p)
	}
	transitions := s.Transitions
	if len(transitions) > transitionLimit {
		transitions = transitions[len(transitions)-transitionLimit:]
	}

	m.state = s.State
	m.positions = positions
	m.dailyLosses = s.DailyLosses
	m.lockUntil = s.LockUntil
	m.killSwitch = s.KillSwitch
	m.killReason = s.KillReason
	m.watch = nil
	if s.Watch != nil {
		w := *s.Watch
		m.watch = &w
	}
	m.transitions = append([]models.StateTransition(nil), transitions...)
	return nil
}
