// Package strategy turns candle history into entry signals.
package strategy

import (
	"fmt"

	"TickPilot/internal/domain/models"
	"TickPilot/internal/services/indicators"
)

type Config struct {
	FastEMA   int
	SlowEMA   int
	ATRPeriod int

	// Trend following pullback.
	PullbackATR     float64
	MinPullbackFrac float64
	SwingWindow     int
	StopBufferATR   float64
	RewardRatio     float64

	// Mean reversion.
	BollingerPeriod int
	BollingerK      float64
	RSIPeriod       int
	RSIOversold     float64
	RSIOverbought   float64
	MRStopATR       float64
}

func DefaultConfig() Config {
	return Config{
		FastEMA:         13,
		SlowEMA:         34,
		ATRPeriod:       14,
		PullbackATR:     2.0,
		MinPullbackFrac: 0.3,
		SwingWindow:     10,
		StopBufferATR:   0.5,
		RewardRatio:     2.0,
		BollingerPeriod: 20,
		BollingerK:      2.0,
		RSIPeriod:       14,
		RSIOversold:     30,
		RSIOverbought:   70,
		MRStopATR:       1.5,
	}
}

type Generator struct {
	cfg Config
}

func New(cfg Config) *Generator {
	return &Generator{cfg: cfg}
}

// Generate returns every signal the regime permissions allow for the latest candle.
func (g *Generator) Generate(candles []models.Candle, perms models.RegimePermissions) []models.Signal {
	var out []models.Signal
	if perms.AllowTrendFollowing {
		if s, ok := g.TrendPullback(candles); ok {
			out = append(out, s)
		}
	}
	if perms.AllowMeanReversion {
		if s, ok := g.MeanReversion(candles); ok {
			out = append(out, s)
		}
	}
	return out
}

// TrendPullback fires when the fast EMA leads the slow EMA and the latest
// close has dipped back toward the fast EMA by a bounded number of ATRs.
func (g *Generator) TrendPullback(candles []models.Candle) (models.Signal, bool) {
	if len(candles) < g.cfg.SlowEMA+5 {
		return models.Signal{}, false
	}
	closes := indicators.Closes(candles)
	fast, _ := indicators.EMA(closes, g.cfg.FastEMA)
	slow, _ := indicators.EMA(closes, g.cfg.SlowEMA)
	atr, ok := indicators.ATR(candles, g.cfg.ATRPeriod)
	if !ok || atr <= 0 {
		return models.Signal{}, false
	}
	last := candles[len(candles)-1]
	swingHigh, swingLow, _ := indicators.SwingRange(candles, g.cfg.SwingWindow)

	maxDip := atr * g.cfg.PullbackATR
	minDip := maxDip * g.cfg.MinPullbackFrac

	var side models.Side
	var stop float64
	switch {
	case fast > slow && last.Close > slow:
		dip := fast - last.Close
		if dip <= minDip || dip >= maxDip {
			return models.Signal{}, false
		}
		side, stop = models.SideLong, swingLow-atr*g.cfg.StopBufferATR
	case fast < slow && last.Close < slow:
		rally := last.Close - fast
		if rally <= minDip || rally >= maxDip {
			return models.Signal{}, false
		}
		side, stop = models.SideShort, swingHigh+atr*g.cfg.StopBufferATR
	default:
		return models.Signal{}, false
	}

	entry := last.Close
	risk := (entry - stop) * side.Direction()
	if risk <= 0 {
		return models.Signal{}, false
	}
	return models.Signal{
		Symbol:    last.Symbol,
		Side:      side,
		TradeType: models.TradeTypeTrendFollowing,
		Entry:     entry,
		Stop:      stop,
		Target:    entry + side.Direction()*g.cfg.RewardRatio*risk,
		ATR:       atr,
		Reason:    fmt.Sprintf("pullback fast=%.2f slow=%.2f atr=%.2f", fast, slow, atr),
		CreatedAt: last.Timestamp,
	}, true
}

// MeanReversion fires on a close outside the Bollinger band confirmed by an RSI extreme.
func (g *Generator) MeanReversion(candles []models.Candle) (models.Signal, bool) {
	closes := indicators.Closes(candles)
	bands, ok := indicators.Bollinger(closes, g.cfg.BollingerPeriod, g.cfg.BollingerK)
	if !ok {
		return models.Signal{}, false
	}
	rsi, ok := indicators.RSI(closes, g.cfg.RSIPeriod)
	if !ok {
		return models.Signal{}, false
	}
	atr, ok := indicators.ATR(candles, g.cfg.ATRPeriod)
	if !ok || atr <= 0 {
		return models.Signal{}, false
	}
	last := candles[len(candles)-1]

	var side models.Side
	switch {
	case last.Close < bands.Lower && rsi < g.cfg.RSIOversold:
		side = models.SideLong
	case last.Close > bands.Upper && rsi > g.cfg.RSIOverbought:
		side = models.SideShort
	default:
		return models.Signal{}, false
	}
	entry := last.Close
	return models.Signal{
		Symbol:    last.Symbol,
		Side:      side,
		TradeType: models.TradeTypeMeanReversion,
		Entry:     entry,
		Stop:      entry - side.Direction()*g.cfg.MRStopATR*atr,
		Target:    bands.Middle,
		ATR:       atr,
		Reason:    fmt.Sprintf("band pierce rsi=%.1f mid=%.2f", rsi, bands.Middle),
		CreatedAt: last.Timestamp,
	}, true
}
