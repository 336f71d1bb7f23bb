package quality

import (
	"strings"
	"testing"
	"time"

	"TickPilot/internal/domain/models"
)

var open = time.Date(2024, 6, 3, 9, 15, 0, 0, time.UTC)

func trendCandles(n int) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		c := 100 + 0.2*float64(i)
		out[i] = models.Candle{Symbol: "T", Open: c, High: c + 0.5, Low: c - 0.5, Close: c, Volume: 1000, Timestamp: open.Add(time.Duration(i) * time.Minute)}
	}
	out[n-1].Volume = 2000
	return out
}

func TestInsufficientDataFailsEveryCheck(t *testing.T) {
	res := New(DefaultConfig()).Evaluate(trendCandles(10))
	if res.VolatilityOK || res.TrendStrong || res.ScoreOK || res.Passed() {
		t.Fatalf("short history must never pass: %+v", res)
	}
	if len(res.Reasons) != 3 {
		t.Fatalf("expected a reason per check, got %v", res.Reasons)
	}
}

func TestTrendingSeriesPasses(t *testing.T) {
	res := New(DefaultConfig()).Evaluate(trendCandles(60))
	if !res.Passed() {
		t.Fatalf("expected pass, got %+v", res)
	}
	if res.Components.Trend != 1 || res.Components.Volume != 1 {
		t.Fatalf("unexpected components %+v", res.Components)
	}
	if !res.PassesFor(models.TradeTypeTrendFollowing) || !res.PassesFor(models.TradeTypeMeanReversion) {
		t.Fatalf("both modes should pass")
	}
}

func TestFlatSeriesIsNotStrong(t *testing.T) {
	c := trendCandles(60)
	for i := range c {
		c[i].Open, c[i].Close, c[i].High, c[i].Low = 100, 100, 100.5, 99.5
		c[i].Volume = 1000
	}
	res := New(DefaultConfig()).Evaluate(c)
	if res.TrendStrong {
		t.Fatalf("flat series cannot be strong")
	}
	found := false
	for _, r := range res.Reasons {
		if strings.HasPrefix(r, "trend slope") {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing trend reason: %v", res.Reasons)
	}
	if res.PassesFor(models.TradeTypeTrendFollowing) {
		t.Fatalf("trend following requires trend strength")
	}
	if res.PassesFor(models.TradeTypeMeanReversion) != (res.VolatilityOK && res.ScoreOK) {
		t.Fatalf("mean reversion must ignore the trend gate")
	}
}

func TestVolatilityFloor(t *testing.T) {
	var c []models.Candle
	prevDay := open.Add(-24 * time.Hour)
	for i := 0; i < 40; i++ {
		c = append(c, models.Candle{Open: 100, High: 102, Low: 98, Close: 100, Volume: 1000, Timestamp: prevDay.Add(time.Duration(i) * time.Minute)})
	}
	for i := 0; i < 5; i++ {
		c = append(c, models.Candle{Open: 100, High: 100.1, Low: 99.9, Close: 100, Volume: 1000, Timestamp: open.Add(time.Duration(i) * time.Minute)})
	}
	res := New(DefaultConfig()).Evaluate(c)
	if res.VolatilityOK {
		t.Fatalf("tight first hour should fail the floor, ratio %.3f", res.FirstHourRatio)
	}
	if !strings.Contains(strings.Join(res.Reasons, ";"), "first-hour range") {
		t.Fatalf("missing volatility reason: %v", res.Reasons)
	}
}

func TestFirstHourRangeWindow(t *testing.T) {
	c := []models.Candle{
		{High: 200, Low: 10, Timestamp: open.Add(-24 * time.Hour)},
		{High: 101, Low: 99, Timestamp: open},
		{High: 103, Low: 100, Timestamp: open.Add(30 * time.Minute)},
		{High: 150, Low: 90, Timestamp: open.Add(61 * time.Minute)},
	}
	got, ok := FirstHourRange(c, time.Hour)
	if !ok || got != 4 {
		t.Fatalf("expected 4, got %v", got)
	}
}

func TestProfileForADX(t *testing.T) {
	if p := ProfileForADX(30); p.Name != ProfileTrending || p.MinScore != 0.7 {
		t.Fatalf("unexpected %+v", p)
	}
	if p := ProfileForADX(20); p.Name != ProfileNormal || !p.Tradable {
		t.Fatalf("unexpected %+v", p)
	}
	if p := ProfileForADX(10); p.Tradable {
		t.Fatalf("choppy market must not be tradable")
	}
	f := New(DefaultConfig()).WithProfile(ProfileForADX(30))
	if f.Config().MinSlope != 0.01 {
		t.Fatalf("profile thresholds not applied")
	}
}
