package models

const (
	CheckPerTradeRisk     = "per_trade_risk"
	CheckDailyDrawdown    = "daily_drawdown"
	CheckDailyLossLimit   = "daily_loss_limit"
	CheckMaxPositions     = "max_positions"
	CheckSectorExposure   = "sector_correlation"
	CheckSymbolExposure   = "symbol_exposure"
	CheckStateMachine     = "state_machine"
	CheckRegimePermission = "regime_permission"
)

type RiskCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Reason string `json:"reason"`
}

// RiskCheckResult is a value object; producing it has no side effects.
type RiskCheckResult struct {
	Passed       bool        `json:"passed"`
	Checks       []RiskCheck `json:"checks"`
	RiskAmount   float64     `json:"risk_amount"`
	BaseSize     int         `json:"base_size"`
	AdjustedSize int         `json:"adjusted_size"`
}

// FailedChecks returns the names of every failed check in evaluation order.
func (r RiskCheckResult) FailedChecks() []string {
	var out []string
	for _, c := range r.Checks {
		if !c.Passed {
			out = append(out, c.Name)
		}
	}
	return out
}

// Check returns the named check, if present.
func (r RiskCheckResult) Check(name string) (RiskCheck, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return RiskCheck{}, false
}
