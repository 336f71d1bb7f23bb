// Package risk implements the pre-trade risk gate. The gate only advises; it
// never mutates positions or trading state.
package risk

import (
	"fmt"
	"math"
	"strings"

	"TickPilot/internal/domain/models"
)

type Config struct {
	MaxRiskPerTrade        float64
	MaxDailyDrawdown       float64
	MaxDailyLoss           float64
	MaxConcurrentPositions int
	MaxSectorPositions     int
	MaxSymbolExposure      float64
	Sectors                map[string]string
}

func DefaultConfig() Config {
	return Config{
		MaxRiskPerTrade:        0.01,
		MaxDailyDrawdown:       0.02,
		MaxDailyLoss:           5000,
		MaxConcurrentPositions: 4,
		MaxSectorPositions:     2,
		MaxSymbolExposure:      0.25,
	}
}

// Permit is the state machine's answer to "may a position be opened now".
type Permit interface {
	CanOpenPosition() bool
}

type TradeRequest struct {
	Signal        models.Signal
	Capital       float64
	DailyPnL      float64
	Regime        models.RegimeInfo
	OpenPositions []models.ManagedPosition
	Permit        Permit
}

type Gate struct {
	cfg     Config
	sectors map[string]string
}

// NewGate copies cfg; the built-in sector table is extended by cfg.Sectors.
func NewGate(cfg Config) *Gate {
	sectors := make(map[string]string, len(defaultSectors)+len(cfg.Sectors))
	for s, sec := range defaultSectors {
		sectors[s] = sec
	}
	for s, sec := range cfg.Sectors {
		sectors[strings.ToUpper(s)] = strings.ToUpper(sec)
	}
	cfg.Sectors = nil
	return &Gate{cfg: cfg, sectors: sectors}
}

func (g *Gate) Config() Config { return g.cfg }

// SectorOf returns the sector for symbol, or "" when unmapped.
func (g *Gate) SectorOf(symbol string) string {
	return g.sectors[strings.ToUpper(symbol)]
}

// RiskAmount is the currency amount one trade may lose.
func (g *Gate) RiskAmount(capital float64) float64 {
	return capital * g.cfg.MaxRiskPerTrade
}

// PositionSize returns the base size floor(risk/stopDistance) and the size
// after the regime multiplier. The adjusted size is never below 1.
func (g *Gate) PositionSize(sig models.Signal, capital, multiplier float64) (base, adjusted int) {
	dist := sig.StopDistance()
	if dist > 0 && capital > 0 {
		base = int(math.Floor(g.RiskAmount(capital) / dist))
	}
	adjusted = int(math.Floor(float64(base) * multiplier))
	if adjusted < 1 {
		adjusted = 1
	}
	return base, adjusted
}

// ValidateTrade runs every check regardless of earlier failures.
func (g *Gate) ValidateTrade(req TradeRequest) models.RiskCheckResult {
	sig := req.Signal
	base, size := g.PositionSize(sig, req.Capital, req.Regime.Permissions.SizeMultiplier)
	res := models.RiskCheckResult{
		RiskAmount:   g.RiskAmount(req.Capital),
		BaseSize:     base,
		AdjustedSize: size,
	}

	open := make([]models.ManagedPosition, 0, len(req.OpenPositions))
	for _, p := range req.OpenPositions {
		if p.IsOpen() {
			open = append(open, p)
		}
	}

	res.Checks = []models.RiskCheck{
		g.checkPerTradeRisk(sig, req.Capital, size),
		g.checkDailyDrawdown(req.DailyPnL, req.Capital),
		g.checkDailyLoss(req.DailyPnL),
		g.checkMaxPositions(len(open), req.Regime),
		g.checkSector(sig.Symbol, open),
		g.checkSymbolExposure(sig, size, req.Capital, open),
		checkPermit(req.Permit),
		checkRegime(sig.TradeType, req.Regime),
	}
	res.Passed = true
	for _, c := range res.Checks {
		if !c.Passed {
			res.Passed = false
		}
	}
	return res
}

func pass(name, reason string) models.RiskCheck {
	return models.RiskCheck{Name: name, Passed: true, Reason: reason}
}

func fail(name, reason string) models.RiskCheck {
	return models.RiskCheck{Name: name, Passed: false, Reason: reason}
}

func (g *Gate) checkPerTradeRisk(sig models.Signal, capital float64, qty int) models.RiskCheck {
	name := models.CheckPerTradeRisk
	if capital <= 0 {
		return fail(name, "capital must be positive")
	}
	dist := sig.StopDistance()
	if dist <= 0 {
		return fail(name, "stop distance is zero")
	}
	risk := dist * float64(qty)
	limit := g.RiskAmount(capital)
	if risk > limit {
		return fail(name, fmt.Sprintf("trade risk %.2f exceeds limit %.2f", risk, limit))
	}
	return pass(name, fmt.Sprintf("trade risk %.2f within %.2f", risk, limit))
}

func (g *Gate) checkDailyDrawdown(pnl, capital float64) models.RiskCheck {
	name := models.CheckDailyDrawdown
	if pnl >= 0 {
		return pass(name, "no drawdown today")
	}
	if capital <= 0 {
		return fail(name, "capital must be positive")
	}
	dd := math.Abs(pnl) / capital
	if dd >= g.cfg.MaxDailyDrawdown {
		return fail(name, fmt.Sprintf("daily drawdown %.2f%% at or above %.2f%%", dd*100, g.cfg.MaxDailyDrawdown*100))
	}
	return pass(name, fmt.Sprintf("daily drawdown %.2f%%", dd*100))
}

func (g *Gate) checkDailyLoss(pnl float64) models.RiskCheck {
	name := models.CheckDailyLossLimit
	if g.cfg.MaxDailyLoss <= 0 || pnl >= 0 {
		return pass(name, "within daily loss limit")
	}
	if -pnl >= g.cfg.MaxDailyLoss {
		return fail(name, fmt.Sprintf("daily loss %.2f reached limit %.2f", -pnl, g.cfg.MaxDailyLoss))
	}
	return pass(name, fmt.Sprintf("daily loss %.2f below %.2f", -pnl, g.cfg.MaxDailyLoss))
}

func (g *Gate) checkMaxPositions(open int, regime models.RegimeInfo) models.RiskCheck {
	name := models.CheckMaxPositions
	limit := g.cfg.MaxConcurrentPositions
	if rc := regime.Permissions.MaxConcurrentTrades; rc > 0 && rc < limit {
		limit = rc
	}
	if open >= limit {
		return fail(name, fmt.Sprintf("%d open positions, limit %d", open, limit))
	}
	return pass(name, fmt.Sprintf("%d of %d positions", open, limit))
}

func (g *Gate) checkSector(symbol string, open []models.ManagedPosition) models.RiskCheck {
	name := models.CheckSectorExposure
	sector := g.SectorOf(symbol)
	if sector == "" {
		return pass(name, "no sector mapping")
	}
	n := 0
	for _, p := range open {
		if g.SectorOf(p.Symbol) == sector {
			n++
		}
	}
	if n >= g.cfg.MaxSectorPositions {
		return fail(name, fmt.Sprintf("%d open positions in %s, limit %d", n, sector, g.cfg.MaxSectorPositions))
	}
	return pass(name, fmt.Sprintf("%d open positions in %s", n, sector))
}

func (g *Gate) checkSymbolExposure(sig models.Signal, qty int, capital float64, open []models.ManagedPosition) models.RiskCheck {
	name := models.CheckSymbolExposure
	existing := 0.0
	for _, p := range open {
		if strings.EqualFold(p.Symbol, sig.Symbol) {
			existing += p.Notional()
		}
	}
	total := existing + sig.Entry*float64(qty)
	limit := capital * g.cfg.MaxSymbolExposure
	if total > limit {
		return fail(name, fmt.Sprintf("%s exposure %.2f exceeds %.2f", sig.Symbol, total, limit))
	}
	return pass(name, fmt.Sprintf("%s exposure %.2f within %.2f", sig.Symbol, total, limit))
}

func checkPermit(p Permit) models.RiskCheck {
	name := models.CheckStateMachine
	if p == nil || !p.CanOpenPosition() {
		return fail(name, "state machine does not permit new positions")
	}
	return pass(name, "state machine permits entry")
}

func checkRegime(t models.TradeType, regime models.RegimeInfo) models.RiskCheck {
	name := models.CheckRegimePermission
	if !regime.Permissions.Allows(t) {
		return fail(name, fmt.Sprintf("%s not allowed in %s", t, regime.Regime))
	}
	return pass(name, fmt.Sprintf("%s allowed in %s", t, regime.Regime))
}
