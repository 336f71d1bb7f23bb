package regime

import (
	"fmt"
	"time"

	"TickPilot/internal/domain/models"
)

// Snapshot is the persisted form of a Detector.
type Snapshot struct {
	Version       int                `json:"version"`
	ShiftCount    int                `json:"shift_count"`
	LastShiftDate time.Time          `json:"last_shift_date"`
	LastUpdate    time.Time          `json:"last_update"`
	LastSession   time.Time          `json:"last_session"`
	History       []models.RegimeDay `json:"history"`
	Override      *models.Regime     `json:"override,omitempty"`
}

func (d *Detector) Export() Snapshot {
	s := Snapshot{
		Version:       SnapshotVersion,
		ShiftCount:    d.shiftCount,
		LastShiftDate: d.lastShiftDate,
		LastUpdate:    d.lastUpdate,
		LastSession:   d.lastSession,
		History:       d.History(),
	}
	if d.override != nil {
		r := *d.override
		s.Override = &r
	}
	return s
}

// Import replaces the detector state with s.
func (d *Detector) Import(s Snapshot) error {
	if s.Version != SnapshotVersion {
		return fmt.Errorf("%w: %d", ErrSnapshotVersion, s.Version)
	}
	if s.ShiftCount < 0 {
		return fmt.Errorf("regime snapshot: negative shift count %d", s.ShiftCount)
	}
	history := s.History
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	d.shiftCount = s.ShiftCount
	d.lastShiftDate = s.LastShiftDate
	d.lastUpdate = s.LastUpdate
	d.lastSession = s.LastSession
	if d.lastSession.IsZero() && len(history) > 0 {
		d.lastSession = history[len(history)-1].Date
	}
	d.history = append([]models.RegimeDay(nil), history...)
	d.override = nil
	if s.Override != nil {
		r := *s.Override
		d.override = &r
	}
	return nil
}
