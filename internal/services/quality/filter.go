// Package quality screens a symbol's recent bars before a signal is acted on.
package quality

import (
	"fmt"
	"math"
	"time"

	"TickPilot/internal/domain/models"
	"TickPilot/internal/services/indicators"
)

type Weights struct {
	Trend    float64
	Pullback float64
	Volume   float64
}

type Config struct {
	MinFirstHourATR float64
	MinSlope        float64
	MinScore        float64
	FirstHour       time.Duration
	ATRPeriod       int
	SlopePeriod     int
	SlopeLookback   int
	FastEMA         int
	SlowEMA         int
	PullbackWindow  int
	VolumeWindow    int
	Weights         Weights
}

func DefaultConfig() Config {
	return Config{
		MinFirstHourATR: 0.3,
		MinSlope:        0.003,
		MinScore:        0.5,
		FirstHour:       time.Hour,
		ATRPeriod:       14,
		SlopePeriod:     25,
		SlopeLookback:   10,
		FastEMA:         13,
		SlowEMA:         34,
		PullbackWindow:  10,
		VolumeWindow:    20,
		Weights:         Weights{Trend: 0.4, Pullback: 0.4, Volume: 0.2},
	}
}

type Components struct {
	Trend    float64 `json:"trend"`
	Pullback float64 `json:"pullback"`
	Volume   float64 `json:"volume"`
}

// Result carries every sub-check outcome; Reasons lists all failures.
type Result struct {
	VolatilityOK   bool       `json:"volatility_ok"`
	TrendStrong    bool       `json:"trend_strong"`
	ScoreOK        bool       `json:"score_ok"`
	FirstHourRatio float64    `json:"first_hour_ratio"`
	Slope          float64    `json:"slope"`
	Score          float64    `json:"score"`
	Components     Components `json:"components"`
	Reasons        []string   `json:"reasons,omitempty"`
}

// Passed is true only when all three checks pass.
func (r Result) Passed() bool {
	return r.VolatilityOK && r.TrendStrong && r.ScoreOK
}

// PassesFor applies the checks that gate the given trade type. Mean reversion
// ignores trend strength; trend following requires it.
func (r Result) PassesFor(t models.TradeType) bool {
	if t == models.TradeTypeTrendFollowing {
		return r.Passed()
	}
	return r.VolatilityOK && r.ScoreOK
}

type Filter struct {
	cfg Config
}

func New(cfg Config) *Filter {
	return &Filter{cfg: cfg}
}

func (f *Filter) Config() Config { return f.cfg }

// WithProfile returns a filter using the profile's thresholds.
func (f *Filter) WithProfile(p Profile) *Filter {
	cfg := f.cfg
	cfg.MinSlope = p.MinSlope
	cfg.MinScore = p.MinScore
	cfg.MinFirstHourATR = p.MinFirstHourATR
	return &Filter{cfg: cfg}
}

// Evaluate runs all three checks against candles (oldest first).
func (f *Filter) Evaluate(candles []models.Candle) Result {
	var res Result

	ratio, ok := f.firstHourRatio(candles)
	res.FirstHourRatio = ratio
	switch {
	case !ok:
		res.Reasons = append(res.Reasons, "insufficient data for volatility floor")
	case ratio < f.cfg.MinFirstHourATR:
		res.Reasons = append(res.Reasons, fmt.Sprintf("first-hour range %.2f ATR below minimum %.2f", ratio, f.cfg.MinFirstHourATR))
	default:
		res.VolatilityOK = true
	}

	slope, ok := indicators.Slope(indicators.Closes(candles), f.cfg.SlopePeriod, f.cfg.SlopeLookback)
	res.Slope = slope
	switch {
	case !ok:
		res.Reasons = append(res.Reasons, "insufficient data for trend strength")
	case math.Abs(slope) < f.cfg.MinSlope:
		res.Reasons = append(res.Reasons, fmt.Sprintf("trend slope %.4f below minimum %.4f", math.Abs(slope), f.cfg.MinSlope))
	default:
		res.TrendStrong = true
	}

	comp, ok := f.components(candles)
	res.Components = comp
	if !ok {
		res.Reasons = append(res.Reasons, "insufficient data for quality score")
	} else {
		w := f.cfg.Weights
		res.Score = comp.Trend*w.Trend + comp.Pullback*w.Pullback + comp.Volume*w.Volume
		if res.Score >= f.cfg.MinScore {
			res.ScoreOK = true
		} else {
			res.Reasons = append(res.Reasons, fmt.Sprintf("quality score %.2f below minimum %.2f", res.Score, f.cfg.MinScore))
		}
	}
	return res
}

// firstHourRatio divides the first-hour range of the latest session by ATR.
func (f *Filter) firstHourRatio(candles []models.Candle) (float64, bool) {
	if len(candles) < f.cfg.ATRPeriod+1 {
		return 0, false
	}
	rng, ok := FirstHourRange(candles, f.cfg.FirstHour)
	if !ok {
		return 0, false
	}
	atr, ok := indicators.ATR(candles, f.cfg.ATRPeriod)
	if !ok || atr <= 0 {
		return 0, false
	}
	return rng / atr, true
}

func (f *Filter) components(candles []models.Candle) (Components, bool) {
	if len(candles) < f.cfg.SlowEMA+5 {
		return Components{}, false
	}
	closes := indicators.Closes(candles)
	fast, _ := indicators.EMA(closes, f.cfg.FastEMA)
	slow, _ := indicators.EMA(closes, f.cfg.SlowEMA)

	var c Components
	if slow > 0 {
		c.Trend = indicators.Clamp01(math.Abs(fast-slow) / slow * 100)
	}

	high, low, _ := indicators.SwingRange(candles, f.cfg.PullbackWindow)
	if span := high - low; span > 0 {
		last := closes[len(closes)-1]
		depth := math.Max((high-last)/span, (last-low)/span)
		if depth <= 0.5 {
			c.Pullback = depth * 2
		} else {
			c.Pullback = 1 - (depth-0.5)*2
		}
		c.Pullback = indicators.Clamp01(c.Pullback)
	}

	c.Volume = 0.5
	if n := f.cfg.VolumeWindow; n > 1 && len(candles) >= n {
		prior := candles[len(candles)-n : len(candles)-1]
		sum := 0.0
		for _, k := range prior {
			sum += k.Volume
		}
		ratio := 1.0
		if avg := sum / float64(len(prior)); avg > 0 {
			ratio = candles[len(candles)-1].Volume / avg
		}
		c.Volume = indicators.Clamp01(ratio / 2)
	}
	return c, true
}

// FirstHourRange returns max(high)-min(low) over the bars within window of the
// first bar of the latest calendar day in candles.
func FirstHourRange(candles []models.Candle, window time.Duration) (float64, bool) {
	if len(candles) == 0 {
		return 0, false
	}
	last := candles[len(candles)-1].Timestamp
	y, m, d := last.Date()
	start := -1
	for i := len(candles) - 1; i >= 0; i-- {
		cy, cm, cd := candles[i].Timestamp.In(last.Location()).Date()
		if cy != y || cm != m || cd != d {
			break
		}
		start = i
	}
	if start < 0 {
		return 0, false
	}
	open := candles[start].Timestamp
	high, low := candles[start].High, candles[start].Low
	for _, c := range candles[start+1:] {
		if !c.Timestamp.Before(open.Add(window)) {
			break
		}
		high = math.Max(high, c.High)
		low = math.Min(low, c.Low)
	}
	return high - low, true
}
