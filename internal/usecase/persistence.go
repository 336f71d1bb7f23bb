package usecase

import (
	"context"
	"fmt"
	"time"

	"TickPilot/internal/domain/models"
	"TickPilot/internal/services/exits"
	"TickPilot/internal/services/regime"
	"TickPilot/internal/services/statemachine"
	applogger "TickPilot/pkg/logger"
)

const EngineSnapshotVersion = 1

// EngineSnapshot is the persisted form of the engine's trading state. The
// regime detector is stored separately under its own key.
type EngineSnapshot struct {
	Version       int                   `json:"version"`
	TradingDate   string                `json:"trading_date"`
	SavedAt       time.Time             `json:"saved_at"`
	Machine       statemachine.Snapshot `json:"machine"`
	Trails        []exits.Trail         `json:"trails"`
	RealizedToday float64               `json:"realized_today"`
	RealizedTotal float64               `json:"realized_total"`
	PeakEquity    float64               `json:"peak_equity"`
	TradesToday   int                   `json:"trades_today"`
	Expectancy    models.Expectancy     `json:"expectancy"`
	ShiftDay      bool                  `json:"shift_day"`
}

func (e *Engine) snapshot() EngineSnapshot {
	return EngineSnapshot{
		Version:       EngineSnapshotVersion,
		TradingDate:   e.tradingDate,
		SavedAt:       e.now(),
		Machine:       e.sm.Export(),
		Trails:        e.trails.Trails(),
		RealizedToday: e.realizedToday,
		RealizedTotal: e.realizedTotal,
		PeakEquity:    e.peakEquity,
		TradesToday:   e.tradesToday,
		Expectancy:    e.expectancy,
		ShiftDay:      e.shiftToday,
	}
}

// Snapshot returns the state that would be persisted now.
func (e *Engine) Snapshot() EngineSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot()
}

// persist writes both snapshots and waits for the store to confirm.
func (e *Engine) persist(ctx context.Context) error {
	if err := e.store.Save(ctx, e.cfg.RegimeKey, e.detector.Export()); err != nil {
		return fmt.Errorf("save regime: %w", err)
	}
	if err := e.store.Save(ctx, e.cfg.StateKey, e.snapshot()); err != nil {
		return fmt.Errorf("save engine state: %w", err)
	}
	return nil
}

// Restore loads persisted state and warms candle history. A missing
// snapshot is a cold start. A snapshot from an earlier trading date keeps
// only the cumulative figures; its day-scoped state is dropped.
func (e *Engine) Restore(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var rs regime.Snapshot
	ok, err := e.store.Load(ctx, e.cfg.RegimeKey, &rs)
	if err != nil {
		return fmt.Errorf("load regime: %w", err)
	}
	if ok {
		if err := e.detector.Import(rs); err != nil {
			return err
		}
		e.l.Info("regime restored",
			applogger.String("regime", string(e.detector.Regime())),
			applogger.Int("shift_count", e.detector.ShiftCount()),
		)
	}

	var snap EngineSnapshot
	ok, err = e.store.Load(ctx, e.cfg.StateKey, &snap)
	if err != nil {
		return fmt.Errorf("load engine state: %w", err)
	}
	if ok {
		if err := e.apply(snap); err != nil {
			return err
		}
	}

	if e.candles != nil {
		e.warmUp(ctx)
	}
	return nil
}

func (e *Engine) apply(snap EngineSnapshot) error {
	if snap.Version != EngineSnapshotVersion {
		return fmt.Errorf("engine snapshot: unsupported version %d", snap.Version)
	}
	today := e.cfg.Session.TradingDate(e.now())

	e.realizedTotal = snap.RealizedTotal
	e.expectancy = snap.Expectancy
	if snap.PeakEquity > 0 {
		e.peakEquity = snap.PeakEquity
	}
	// the first tick rolls the day and applies yesterday's shift flag
	e.tradingDate = snap.TradingDate
	e.shiftToday = snap.ShiftDay

	if snap.TradingDate != today {
		if n := countOpen(snap.Machine.Positions); n > 0 {
			e.l.Warn("dropping positions from stale snapshot",
				applogger.String("snapshot_date", snap.TradingDate),
				applogger.Int("open_positions", n),
			)
		}
		e.l.Info("stale engine snapshot, starting a fresh day", applogger.String("snapshot_date", snap.TradingDate))
		return nil
	}

	if err := e.sm.Import(snap.Machine); err != nil {
		return err
	}
	e.trails.Restore(snap.Trails)
	e.trails.Sync(e.sm.OpenPositions())
	e.realizedToday = snap.RealizedToday
	e.tradesToday = snap.TradesToday
	e.l.Info("engine state restored",
		applogger.String("trading_date", snap.TradingDate),
		applogger.String("state", string(e.sm.State())),
		applogger.Int("open_positions", e.sm.OpenCount()),
		applogger.Int("trades_today", e.tradesToday),
	)
	return nil
}

// warmUp seeds history from the candle store. Failures only cost warm-up.
func (e *Engine) warmUp(ctx context.Context) {
	for _, sym := range e.cfg.Symbols {
		bars, err := e.candles.LatestCandles(ctx, sym, e.cfg.HistorySize)
		if err != nil {
			e.l.Warn("history warm-up failed", applogger.String("symbol", sym), applogger.Error(err))
			continue
		}
		n := 0
		for _, c := range bars {
			c.Symbol = sym
			if e.history.Append(c) {
				n++
			}
		}
		e.l.Debug("history warmed", applogger.String("symbol", sym), applogger.Int("bars", n))
	}
}

func countOpen(ps []models.ManagedPosition) int {
	n := 0
	for _, p := range ps {
		if p.IsOpen() {
			n++
		}
	}
	return n
}
