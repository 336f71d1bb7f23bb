package advisory

import (
	"context"
	"errors"
	"testing"
	"time"

	"TickPilot/internal/domain/models"
	icache "TickPilot/internal/service/cache"
	"TickPilot/internal/service/ratelimit"
)

func TestResolve(t *testing.T) {
	p := DefaultPolicy()
	cases := []struct {
		name   string
		side   models.Side
		advice *models.Advice
		want   models.AdviceAction
	}{
		{"nil", models.SideLong, nil, models.AdviceIgnored},
		{"low confidence", models.SideLong, &models.Advice{Trend: models.TrendDown, Confidence: 39}, models.AdviceIgnored},
		{"agree long", models.SideLong, &models.Advice{Trend: models.TrendUp, Confidence: 40}, models.AdviceProceed},
		{"agree short", models.SideShort, &models.Advice{Trend: models.TrendDown, Confidence: 90}, models.AdviceProceed},
		{"neutral", models.SideLong, &models.Advice{Trend: models.TrendNeutral, Confidence: 80}, models.AdviceHalve},
		{"mild disagree", models.SideLong, &models.Advice{Trend: models.TrendDown, Confidence: 69}, models.AdviceHalve},
		{"strong disagree", models.SideShort, &models.Advice{Trend: models.TrendUp, Confidence: 70}, models.AdviceSkip},
	}
	for _, tc := range cases {
		if got := p.Resolve(tc.side, tc.advice); got.Action != tc.want {
			t.Fatalf("%s: action=%s want %s", tc.name, got.Action, tc.want)
		}
	}
}

func TestApplySize(t *testing.T) {
	if ApplySize(models.AdviceDecision{Action: models.AdviceHalve}, 9) != 4 {
		t.Fatalf("halve 9 should give 4")
	}
	if ApplySize(models.AdviceDecision{Action: models.AdviceHalve}, 1) != 1 {
		t.Fatalf("halve keeps at least 1")
	}
	if ApplySize(models.AdviceDecision{Action: models.AdviceSkip}, 10) != 0 {
		t.Fatalf("skip gives 0")
	}
	if ApplySize(models.AdviceDecision{Action: models.AdviceIgnored}, 10) != 10 {
		t.Fatalf("ignored keeps size")
	}
}

type countingAdvisor struct {
	calls  int
	advice models.Advice
}

func (c *countingAdvisor) Classify(context.Context, string, []models.Candle) (models.Advice, error) {
	c.calls++
	return c.advice, nil
}

func TestGuardedCachesPerBarAndLimits(t *testing.T) {
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	inner := &countingAdvisor{advice: models.Advice{Trend: models.TrendUp, Confidence: 80}}
	g := NewGuarded(inner, ratelimit.New(ratelimit.WithClock(clock)), icache.NewTTLCache().WithClock(clock), time.Minute, 1, 0)

	bars := []models.Candle{{Symbol: "AAPL", Close: 1, Timestamp: now}}
	for i := 0; i < 3; i++ {
		adv, err := g.Classify(context.Background(), "AAPL", bars)
		if err != nil || adv.Trend != models.TrendUp {
			t.Fatalf("classify: %+v %v", adv, err)
		}
	}
	if inner.calls != 1 {
		t.Fatalf("calls=%d want 1", inner.calls)
	}
	next := []models.Candle{{Symbol: "AAPL", Close: 2, Timestamp: now.Add(time.Minute)}}
	if _, err := g.Classify(context.Background(), "AAPL", next); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err=%v want ErrRateLimited", err)
	}
}
