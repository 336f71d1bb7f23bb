package market

import (
	"math"
	"time"

	"TickPilot/internal/domain/models"
	"TickPilot/internal/services/indicators"
	"TickPilot/internal/services/quality"
)

type MetricsConfig struct {
	// BaseSessions is how many completed sessions feed the base range.
	BaseSessions int
	// ShiftThreshold is the session move, in base ranges, that marks a trend-shift day.
	ShiftThreshold float64
	FirstHour      time.Duration
}

func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{BaseSessions: 5, ShiftThreshold: 0.7, FirstHour: time.Hour}
}

// ComputeMetrics derives SessionMetrics from candles, oldest first. Values
// that need more history than is available are left at zero.
func ComputeMetrics(symbol string, candles []models.Candle, cfg MetricsConfig) models.SessionMetrics {
	m := models.SessionMetrics{Symbol: symbol, Bars: len(candles)}
	if len(candles) == 0 {
		return m
	}
	closes := indicators.Closes(candles)
	m.LastClose = closes[len(closes)-1]
	m.EMA200, _ = indicators.EMA(closes, 200)
	m.ATR14, _ = indicators.ATR(candles, 14)
	m.RSI14, _ = indicators.RSI(closes, 14)
	m.ADX14, _ = indicators.ADX(candles, 14)
	m.FirstHourRange, _ = quality.FirstHourRange(candles, cfg.FirstHour)

	sessions := splitSessions(candles)
	latest := sessions[len(sessions)-1]
	prior := sessions[:len(sessions)-1]
	if cfg.BaseSessions > 0 && len(prior) > cfg.BaseSessions {
		prior = prior[len(prior)-cfg.BaseSessions:]
	}
	if len(prior) > 0 {
		sum := 0.0
		for _, s := range prior {
			sum += sessionRange(s)
		}
		m.BaseRange = sum / float64(len(prior))
	}
	if m.BaseRange > 0 {
		m.TrendShiftValue = math.Abs(m.LastClose-latest[0].Open) / m.BaseRange
		m.IsTrendShiftDay = m.TrendShiftValue >= cfg.ShiftThreshold
	}
	return m
}

// splitSessions groups consecutive candles by calendar date in the zone of
// each candle's timestamp. candles must be non-empty.
func splitSessions(candles []models.Candle) [][]models.Candle {
	var out [][]models.Candle
	start := 0
	for i := 1; i <= len(candles); i++ {
		if i == len(candles) || !sameDate(candles[i-1].Timestamp, candles[i].Timestamp) {
			out = append(out, candles[start:i])
			start = i
		}
	}
	return out
}

func sameDate(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func sessionRange(bars []models.Candle) float64 {
	high, low := bars[0].High, bars[0].Low
	for _, c := range bars[1:] {
		high = math.Max(high, c.High)
		low = math.Min(low, c.Low)
	}
	return high - low
}
