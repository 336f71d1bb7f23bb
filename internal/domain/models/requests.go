package models

// Requests for the engine HTTP endpoints.

type KillSwitchRequest struct {
	Reason string `json:"reason" validate:"required,max=200"`
}

type RegimeOverrideRequest struct {
	Regime string `json:"regime" validate:"required,oneof=RANGE_NEUTRAL EMERGING_TREND ESTABLISHED_TREND"`
}

type TransitionsRequest struct {
	Limit int `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=50"`
	// Since is RFC3339 or unix seconds; transitions at or before it are skipped.
	Since string `query:"since" json:"since"`
}

type CandlesRequest struct {
	Symbol  string `param:"symbol" validate:"required,max=32"`
	Limit   int    `query:"limit" default:"300" validate:"gte=1,lte=5000"`
	Archive bool   `query:"archive"`
}
