package indicators

import (
	"math"
	"testing"
	"time"

	"TickPilot/internal/domain/models"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func risingCandles(n int) []models.Candle {
	base := time.Date(2024, 3, 4, 9, 15, 0, 0, time.UTC)
	out := make([]models.Candle, n)
	for i := range out {
		p := 100 + float64(i)
		out[i] = models.Candle{Symbol: "X", Open: p - 0.5, High: p + 1, Low: p - 1, Close: p, Volume: 1000, Timestamp: base.Add(time.Duration(i) * time.Minute)}
	}
	return out
}

func TestSMA(t *testing.T) {
	got, ok := SMA([]float64{1, 2, 3, 4, 5}, 2)
	if !ok || !near(got, 4.5) {
		t.Fatalf("expected 4.5, got %v %v", got, ok)
	}
	if _, ok := SMA([]float64{1}, 2); ok {
		t.Fatalf("expected insufficient data")
	}
}

func TestEMASeededWithSMA(t *testing.T) {
	got, ok := EMA([]float64{1, 2, 3, 4, 5}, 3)
	if !ok || !near(got, 4) {
		t.Fatalf("expected 4, got %v", got)
	}
}

func TestATRFallsBackToAvailableRanges(t *testing.T) {
	c := risingCandles(5)
	got, ok := ATR(c, 14)
	// each true range is max(2, |101-99|...) = 2
	if !ok || !near(got, 2) {
		t.Fatalf("expected 2, got %v", got)
	}
	if _, ok := ATR(c[:1], 14); ok {
		t.Fatalf("single candle must be insufficient")
	}
}

func TestRSIExtremes(t *testing.T) {
	up := Closes(risingCandles(30))
	got, ok := RSI(up, 14)
	if !ok || got != 100 {
		t.Fatalf("expected 100 for monotonic rise, got %v", got)
	}
	flat := make([]float64, 20)
	for i := range flat {
		flat[i] = 50
	}
	got, _ = RSI(flat, 14)
	if got != 50 {
		t.Fatalf("expected neutral 50 on flat series, got %v", got)
	}
}

func TestADXStrongTrend(t *testing.T) {
	got, ok := ADX(risingCandles(60), 14)
	if !ok || got < 25 {
		t.Fatalf("expected trending ADX, got %v %v", got, ok)
	}
	if _, ok := ADX(risingCandles(20), 14); ok {
		t.Fatalf("expected insufficient data")
	}
}

func TestBollingerFlatSeries(t *testing.T) {
	b, ok := Bollinger([]float64{10, 10, 10, 10}, 4, 2)
	if !ok || b.Upper != 10 || b.Lower != 10 || b.Middle != 10 {
		t.Fatalf("unexpected bands %+v", b)
	}
}

func TestSlope(t *testing.T) {
	closes := Closes(risingCandles(40))
	s, ok := Slope(closes, 25, 10)
	if !ok || s <= 0 {
		t.Fatalf("expected positive slope, got %v", s)
	}
	if _, ok := Slope(closes[:30], 25, 10); ok {
		t.Fatalf("expected insufficient data")
	}
}

func TestSwingRangeAndClamp(t *testing.T) {
	h, l, ok := SwingRange(risingCandles(20), 10)
	if !ok || h != 120 || l != 109 {
		t.Fatalf("unexpected swing %v %v", h, l)
	}
	if Clamp01(-1) != 0 || Clamp01(2) != 1 || Clamp01(math.NaN()) != 0 {
		t.Fatalf("clamp failed")
	}
}
