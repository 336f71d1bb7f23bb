package quality

// Profile is a set of filter thresholds tuned to the prevailing ADX.
type Profile struct {
	Name            string  `json:"name"`
	MinSlope        float64 `json:"min_slope"`
	MinScore        float64 `json:"min_score"`
	MinFirstHourATR float64 `json:"min_first_hour_atr"`
	Tradable        bool    `json:"tradable"`
}

const (
	ProfileTrending = "TRENDING"
	ProfileNormal   = "NORMAL"
	ProfileChoppy   = "CHOPPY"
)

// ProfileForADX picks thresholds from ADX: >= 25 trending, >= 15 normal,
// otherwise choppy (no trading).
func ProfileForADX(adx float64) Profile {
	switch {
	case adx >= 25:
		return Profile{Name: ProfileTrending, MinSlope: 0.01, MinScore: 0.7, MinFirstHourATR: 0.4, Tradable: true}
	case adx >= 15:
		return Profile{Name: ProfileNormal, MinSlope: 0.003, MinScore: 0.5, MinFirstHourATR: 0.3, Tradable: true}
	default:
		return Profile{Name: ProfileChoppy, MinSlope: 0.005, MinScore: 0.8, MinFirstHourATR: 0.5, Tradable: false}
	}
}
