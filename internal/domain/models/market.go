package models

import "time"

// Candle is one OHLCV bar. Bars are immutable once appended to history.
type Candle struct {
	Symbol    string    `json:"symbol"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// Quote is the OHLCV payload a quote source returns for one symbol.
type Quote struct {
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
	// Cached marks a repeat of an earlier answer; it carries no new bar.
	Cached bool `json:"-"`
}

// Valid reports whether the quote carries a usable price.
func (q Quote) Valid() bool {
	return q.Close > 0 && q.High >= q.Low
}

// ToCandle stamps the quote as a candle.
func (q Quote) ToCandle(symbol string, ts time.Time) Candle {
	return Candle{
		Symbol:    symbol,
		Open:      q.Open,
		High:      q.High,
		Low:       q.Low,
		Close:     q.Close,
		Volume:    q.Volume,
		Timestamp: ts,
	}
}

// SessionMetrics is derived from candle history every tick and never persisted.
type SessionMetrics struct {
	Symbol          string  `json:"symbol"`
	Bars            int     `json:"bars"`
	LastClose       float64 `json:"last_close"`
	BaseRange       float64 `json:"base_range"`
	TrendShiftValue float64 `json:"trend_shift_value"`
	EMA200          float64 `json:"ema200"`
	ATR14           float64 `json:"atr14"`
	RSI14           float64 `json:"rsi14"`
	ADX14           float64 `json:"adx14"`
	FirstHourRange  float64 `json:"first_hour_range"`
	IsTrendShiftDay bool    `json:"is_trend_shift_day"`
}
