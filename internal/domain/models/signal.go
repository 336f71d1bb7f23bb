package models

import "time"

// Signal is an entry candidate produced by a strategy.
type Signal struct {
	Symbol    string    `json:"symbol"`
	Side      Side      `json:"side"`
	TradeType TradeType `json:"trade_type"`
	Entry     float64   `json:"entry"`
	Stop      float64   `json:"stop"`
	Target    float64   `json:"target"`
	ATR       float64   `json:"atr"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// StopDistance is the absolute distance between entry and stop.
func (s Signal) StopDistance() float64 {
	d := s.Entry - s.Stop
	if d < 0 {
		return -d
	}
	return d
}

type Trend string

const (
	TrendUp      Trend = "UP"
	TrendDown    Trend = "DOWN"
	TrendNeutral Trend = "NEUTRAL"
)

// Advice is what the optional advisory collaborator returns. Confidence is 0..100.
type Advice struct {
	Trend      Trend   `json:"trend"`
	Confidence float64 `json:"confidence"`
}

type AdviceAction string

const (
	AdviceIgnored AdviceAction = "IGNORED"
	AdviceProceed AdviceAction = "PROCEED"
	AdviceHalve   AdviceAction = "HALVE"
	AdviceSkip    AdviceAction = "SKIP"
)

type AdviceDecision struct {
	Action AdviceAction `json:"action"`
	Reason string       `json:"reason"`
}
