// Package advisory applies optional trend advice from an external classifier
// to entry signals.
package advisory

import (
	"fmt"

	"TickPilot/internal/domain/models"
)

// Policy decides what a piece of advice does to a signal.
type Policy struct {
	// MinConfidence is the floor below which advice is ignored.
	MinConfidence float64
	// SkipConfidence is the level at which disagreeing advice vetoes the trade.
	SkipConfidence float64
}

func DefaultPolicy() Policy {
	return Policy{MinConfidence: 40, SkipConfidence: 70}
}

// Resolve maps advice for a signal on side to an action. nil advice is ignored.
func (p Policy) Resolve(side models.Side, advice *models.Advice) models.AdviceDecision {
	if advice == nil {
		return models.AdviceDecision{Action: models.AdviceIgnored, Reason: "no advice"}
	}
	if advice.Confidence < p.MinConfidence {
		return models.AdviceDecision{Action: models.AdviceIgnored, Reason: fmt.Sprintf("low confidence %.0f", advice.Confidence)}
	}
	if advice.Trend == models.TrendNeutral || advice.Trend == "" {
		return models.AdviceDecision{Action: models.AdviceHalve, Reason: "neutral advice"}
	}
	agrees := (side == models.SideLong && advice.Trend == models.TrendUp) ||
		(side == models.SideShort && advice.Trend == models.TrendDown)
	if agrees {
		return models.AdviceDecision{Action: models.AdviceProceed, Reason: fmt.Sprintf("advice agrees %s %.0f", advice.Trend, advice.Confidence)}
	}
	if advice.Confidence >= p.SkipConfidence {
		return models.AdviceDecision{Action: models.AdviceSkip, Reason: fmt.Sprintf("advice disagrees %s %.0f", advice.Trend, advice.Confidence)}
	}
	return models.AdviceDecision{Action: models.AdviceHalve, Reason: fmt.Sprintf("advice disagrees %s %.0f", advice.Trend, advice.Confidence)}
}

// ApplySize returns the quantity after the decision; halving never goes below 1.
func ApplySize(d models.AdviceDecision, qty int) int {
	switch d.Action {
	case models.AdviceSkip:
		return 0
	case models.AdviceHalve:
		if qty/2 < 1 {
			return 1
		}
		return qty / 2
	}
	return qty
}
