package models

import "time"

type Regime string

const (
	RegimeRangeNeutral     Regime = "RANGE_NEUTRAL"
	RegimeEmergingTrend    Regime = "EMERGING_TREND"
	RegimeEstablishedTrend Regime = "ESTABLISHED_TREND"
)

// Rank orders regimes from calm to strongly trending.
func (r Regime) Rank() int {
	switch r {
	case RegimeRangeNeutral:
		return 0
	case RegimeEmergingTrend:
		return 1
	case RegimeEstablishedTrend:
		return 2
	default:
		return -1
	}
}

type Frequency string

const (
	FrequencyNormal  Frequency = "NORMAL"
	FrequencyReduced Frequency = "REDUCED"
	FrequencyHalted  Frequency = "HALTED"
)

// RegimePermissions are the fixed trading permissions attached to a regime.
type RegimePermissions struct {
	AllowMeanReversion  bool      `json:"allow_mean_reversion"`
	AllowTrendFollowing bool      `json:"allow_trend_following"`
	SizeMultiplier      float64   `json:"size_multiplier"`
	MaxConcurrentTrades int       `json:"max_concurrent_trades"`
	Frequency           Frequency `json:"frequency"`
}

// Allows reports whether the trade type may be taken under these permissions.
func (p RegimePermissions) Allows(t TradeType) bool {
	switch t {
	case TradeTypeMeanReversion:
		return p.AllowMeanReversion
	case TradeTypeTrendFollowing:
		return p.AllowTrendFollowing
	default:
		return false
	}
}

type RegimeInfo struct {
	Regime      Regime            `json:"regime"`
	ShiftCount  int               `json:"shift_count"`
	Overridden  bool              `json:"overridden"`
	Permissions RegimePermissions `json:"permissions"`
}

// RegimeDay is one entry in the regime detector's daily history.
type RegimeDay struct {
	Date       time.Time `json:"date"`
	ShiftDay   bool      `json:"shift_day"`
	ShiftCount int       `json:"shift_count"`
	Regime     Regime    `json:"regime"`
}
