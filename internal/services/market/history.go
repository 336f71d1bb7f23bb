// Package market keeps per-symbol candle history and derives session metrics.
package market

import (
	"sort"

	"TickPilot/internal/domain/models"
)

const DefaultCapacity = 300

// History is a bounded per-symbol candle ring; the oldest bar is evicted first.
// Not safe for concurrent use.
type History struct {
	capacity int
	bars     map[string][]models.Candle
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &History{capacity: capacity, bars: make(map[string][]models.Candle)}
}

// Append records c. Bars not newer than the latest one for the symbol are dropped.
func (h *History) Append(c models.Candle) bool {
	bars := h.bars[c.Symbol]
	if n := len(bars); n > 0 && !c.Timestamp.After(bars[n-1].Timestamp) {
		return false
	}
	bars = append(bars, c)
	if len(bars) > h.capacity {
		bars = append(bars[:0:0], bars[len(bars)-h.capacity:]...)
	}
	h.bars[c.Symbol] = bars
	return true
}

// Candles returns a copy of the bars for symbol, oldest first.
func (h *History) Candles(symbol string) []models.Candle {
	return append([]models.Candle(nil), h.bars[symbol]...)
}

func (h *History) Len(symbol string) int { return len(h.bars[symbol]) }

func (h *History) Last(symbol string) (models.Candle, bool) {
	bars := h.bars[symbol]
	if len(bars) == 0 {
		return models.Candle{}, false
	}
	return bars[len(bars)-1], true
}

// LastPrices maps every symbol to its latest close.
func (h *History) LastPrices() map[string]float64 {
	out := make(map[string]float64, len(h.bars))
	for sym, bars := range h.bars {
		if n := len(bars); n > 0 {
			out[sym] = bars[n-1].Close
		}
	}
	return out
}

func (h *History) Symbols() []string {
	out := make([]string, 0, len(h.bars))
	for sym := range h.bars {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
