package advisory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"TickPilot/internal/domain/models"
	domsvc "TickPilot/internal/domain/service"
)

// HTTPAdvisor asks a remote classifier for the trend of a symbol.
type HTTPAdvisor struct {
	base     *HTTPServiceBase
	attempts int
	maxBars  int
}

func NewHTTPAdvisor(baseURL, token string, timeout time.Duration, attempts, maxBars int) *HTTPAdvisor {
	base := NewHTTPServiceBase(baseURL, timeout)
	base.SetAuthToken(token)
	if maxBars <= 0 {
		maxBars = 60
	}
	return &HTTPAdvisor{base: base, attempts: attempts, maxBars: maxBars}
}

type bar struct {
	T int64   `json:"t"`
	O float64 `json:"o"`
	H float64 `json:"h"`
	L float64 `json:"l"`
	C float64 `json:"c"`
	V float64 `json:"v"`
}

type classifyRequest struct {
	Symbol string `json:"symbol"`
	Bars   []bar  `json:"bars"`
}

type classifyResponse struct {
	Trend      string  `json:"trend"`
	Confidence float64 `json:"confidence"`
}

func (a *HTTPAdvisor) Classify(ctx context.Context, symbol string, candles []models.Candle) (models.Advice, error) {
	if len(candles) > a.maxBars {
		candles = candles[len(candles)-a.maxBars:]
	}
	req := classifyRequest{Symbol: symbol, Bars: make([]bar, 0, len(candles))}
	for _, c := range candles {
		req.Bars = append(req.Bars, bar{T: c.Timestamp.Unix(), O: c.Open, H: c.High, L: c.Low, C: c.Close, V: c.Volume})
	}
	var resp classifyResponse
	if err := a.base.PostJSONWithRetry(ctx, "/classify", req, &resp, a.attempts); err != nil {
		return models.Advice{}, fmt.Errorf("classify %s: %w", symbol, err)
	}
	return models.Advice{Trend: parseTrend(resp.Trend), Confidence: clampConfidence(resp.Confidence)}, nil
}

func parseTrend(s string) models.Trend {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "UP", "BULLISH":
		return models.TrendUp
	case "DOWN", "BEARISH":
		return models.TrendDown
	default:
		return models.TrendNeutral
	}
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

var _ domsvc.Advisor = (*HTTPAdvisor)(nil)
