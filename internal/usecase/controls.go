package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"TickPilot/internal/domain/models"
	"TickPilot/internal/services/exits"
	applogger "TickPilot/pkg/logger"

	"github.com/shopspring/decimal"
)

var ErrUnknownRegime = errors.New("unknown regime")

// EngineState is the detailed view served by the API.
type EngineState struct {
	Summary     models.TickSummary       `json:"summary"`
	Regime      models.RegimeInfo        `json:"regime"`
	RegimeDays  []models.RegimeDay       `json:"regime_days"`
	Positions   []models.ManagedPosition `json:"positions"`
	Trails      []exits.Trail            `json:"trails"`
	KillReason  string                   `json:"kill_reason,omitempty"`
	PeakEquity  float64                  `json:"peak_equity"`
	Realized    float64                  `json:"realized_total"`
	HistoryBars map[string]int           `json:"history_bars"`
}

// Summary returns the summary of the last completed tick.
func (e *Engine) Summary() models.TickSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

func (e *Engine) State() EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()

	bars := make(map[string]int, len(e.cfg.Symbols))
	for _, s := range e.cfg.Symbols {
		bars[s] = e.history.Len(s)
	}
	_, reason := e.sm.KillSwitch()
	return EngineState{
		Summary:     e.last,
		Regime:      e.detector.Info(),
		RegimeDays:  e.detector.History(),
		Positions:   e.sm.OpenPositions(),
		Trails:      e.trails.Trails(),
		KillReason:  reason,
		PeakEquity:  round2(e.peakEquity),
		Realized:    round2(e.realizedTotal),
		HistoryBars: bars,
	}
}

// RegimeInfo returns the current regime and its permissions.
func (e *Engine) RegimeInfo() models.RegimeInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.detector.Info()
}

// LatestCandles serves the live history, oldest first.
func (e *Engine) LatestCandles(_ context.Context, symbol string, n int) ([]models.Candle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	bars := e.history.Candles(symbol)
	if n > 0 && len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	return bars, nil
}

// Transitions returns up to limit of the most recent state transitions.
func (e *Engine) Transitions(limit int) []models.StateTransition {
	e.mu.Lock()
	defer e.mu.Unlock()
	all := e.sm.Transitions()
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all
}

// ActivateKillSwitch halts new entries for the rest of the day. Open
// positions stay managed by their exits.
func (e *Engine) ActivateKillSwitch(ctx context.Context, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if strings.TrimSpace(reason) == "" {
		reason = "manual"
	}
	e.sm.ActivateKillSwitch(reason)
	e.l.Warn("kill switch activated", applogger.String("reason", reason))
	return e.persist(ctx)
}

// DeactivateKillSwitch resumes trading. The drawdown peak restarts from
// current equity so the switch does not trip again on the next tick.
func (e *Engine) DeactivateKillSwitch(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sm.DeactivateKillSwitch()
	e.peakEquity = e.cfg.Capital + e.realizedTotal + e.sm.UnrealizedPnL()
	e.l.Info("kill switch deactivated", applogger.Float64("peak_equity", e.peakEquity))
	return e.persist(ctx)
}

// OverrideRegime pins the regime until the next daily update.
func (e *Engine) OverrideRegime(ctx context.Context, name string) error {
	r, err := parseRegime(name)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.detector.Override(r)
	e.l.Info("regime overridden", applogger.String("regime", string(r)))
	return e.persist(ctx)
}

func parseRegime(name string) (models.Regime, error) {
	r := models.Regime(strings.ToUpper(strings.TrimSpace(name)))
	switch r {
	case models.RegimeRangeNeutral, models.RegimeEmergingTrend, models.RegimeEstablishedTrend:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRegime, name)
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

type nopMetrics struct{}

func (nopMetrics) RecordTick(string, float64) {}
func (nopMetrics) RecordQuoteSource(string, string) {}
func (nopMetrics) RecordGateRejection(string) {}
func (nopMetrics) RecordEntry(string, string) {}
func (nopMetrics) RecordExit(string, float64) {}
func (nopMetrics) RecordState(models.Regime, models.TradingState, int) {}
func (nopMetrics) RecordEquity(float64, float64) {}
func (nopMetrics) RecordError(string) {}
func (nopMetrics) RecordLastPrice(string, float64) {}
