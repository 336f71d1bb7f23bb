// Package regime classifies the market by counting recent trend-shift days.
package regime

import (
	"errors"
	"fmt"
	"time"

	"TickPilot/internal/domain/models"
)

const (
	SnapshotVersion = 1
	historyLimit    = 30
)

var ErrSnapshotVersion = errors.New("regime: unsupported snapshot version")

type Config struct {
	ThresholdA int
	ThresholdB int
}

func DefaultConfig() Config {
	return Config{ThresholdA: 3, ThresholdB: 7}
}

// Detector owns the decaying shift counter. It is not safe for concurrent use;
// the engine serializes ticks.
type Detector struct {
	cfg           Config
	now           func() time.Time
	shiftCount    int
	lastShiftDate time.Time
	lastUpdate    time.Time
	lastSession   time.Time
	history       []models.RegimeDay
	override      *models.Regime
}

type Option func(*Detector)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

func NewDetector(cfg Config, opts ...Option) (*Detector, error) {
	if cfg.ThresholdA <= 0 || cfg.ThresholdA >= cfg.ThresholdB {
		return nil, fmt.Errorf("regime thresholds must satisfy 0 < A < B, got A=%d B=%d", cfg.ThresholdA, cfg.ThresholdB)
	}
	d := &Detector{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// UpdateDailyCount applies one day stamped with the current clock.
func (d *Detector) UpdateDailyCount(isShiftDay bool) int {
	return d.UpdateDailyCountOn(d.now(), isShiftDay)
}

// UpdateDailyCountOn applies the session held on date: a shift day
// increments the counter, any other day decays it by one, never below zero.
// It clears a manual override.
func (d *Detector) UpdateDailyCountOn(date time.Time, isShiftDay bool) int {
	day := startOfDay(date)
	if isShiftDay {
		d.shiftCount++
		d.lastShiftDate = day
	} else if d.shiftCount > 0 {
		d.shiftCount--
	}
	d.override = nil
	d.lastUpdate = d.now()
	d.lastSession = day

	d.history = append(d.history, models.RegimeDay{
		Date:       day,
		ShiftDay:   isShiftDay,
		ShiftCount: d.shiftCount,
		Regime:     d.DetermineRegime(d.shiftCount),
	})
	if len(d.history) > historyLimit {
		d.history = append([]models.RegimeDay(nil), d.history[len(d.history)-historyLimit:]...)
	}
	return d.shiftCount
}

// DetermineRegime maps a count onto the ordered regimes using the configured thresholds.
func (d *Detector) DetermineRegime(count int) models.Regime {
	return DetermineRegime(count, d.cfg.ThresholdA, d.cfg.ThresholdB)
}

func DetermineRegime(count, a, b int) models.Regime {
	switch {
	case count < a:
		return models.RegimeRangeNeutral
	case count < b:
		return models.RegimeEmergingTrend
	default:
		return models.RegimeEstablishedTrend
	}
}

// PermissionsFor returns the fixed permissions of a regime.
func PermissionsFor(r models.Regime) models.RegimePermissions {
	switch r {
	case models.RegimeEmergingTrend:
		return models.RegimePermissions{
			AllowMeanReversion:  true,
			AllowTrendFollowing: true,
			SizeMultiplier:      0.5,
			MaxConcurrentTrades: 2,
			Frequency:           models.FrequencyReduced,
		}
	case models.RegimeEstablishedTrend:
		return models.RegimePermissions{
			AllowMeanReversion:  false,
			AllowTrendFollowing: true,
			SizeMultiplier:      0.25,
			MaxConcurrentTrades: 1,
			Frequency:           models.FrequencyHalted,
		}
	default:
		return models.RegimePermissions{
			AllowMeanReversion:  true,
			AllowTrendFollowing: false,
			SizeMultiplier:      1.0,
			MaxConcurrentTrades: 4,
			Frequency:           models.FrequencyNormal,
		}
	}
}

// Override pins the regime until the next UpdateDailyCount.
func (d *Detector) Override(r models.Regime) {
	d.override = &r
}

func (d *Detector) Regime() models.Regime {
	if d.override != nil {
		return *d.override
	}
	return d.DetermineRegime(d.shiftCount)
}

func (d *Detector) Info() models.RegimeInfo {
	r := d.Regime()
	return models.RegimeInfo{
		Regime:      r,
		ShiftCount:  d.shiftCount,
		Overridden:  d.override != nil,
		Permissions: PermissionsFor(r),
	}
}

func (d *Detector) ShiftCount() int { return d.shiftCount }

func (d *Detector) LastShiftDate() time.Time { return d.lastShiftDate }

// Scored reports whether the session on date, or a later one, was already applied.
func (d *Detector) Scored(date time.Time) bool {
	if d.lastSession.IsZero() {
		return false
	}
	return !startOfDay(date.In(d.lastSession.Location())).After(d.lastSession)
}

func (d *Detector) History() []models.RegimeDay {
	return append([]models.RegimeDay(nil), d.history...)
}

func startOfDay(t time.Time) time.Time {
	y, m, day := t.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, t.Location())
}

