package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"TickPilot/internal/domain/models"
)

type stubSource struct {
	calls int
	err   error
	q     map[string]models.Quote
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) FetchQuotes(context.Context, []string) (map[string]models.Quote, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.q, nil
}

func TestSourceGuardBacksOffAfterFailure(t *testing.T) {
	now := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)
	src := &stubSource{err: errors.New("boom")}
	g := NewSourceGuard(src, nil,
		WithGuardClock(func() time.Time { return now }),
		WithBackoff(10*time.Second, 15*time.Second),
	)
	ctx := context.Background()

	if _, err := g.FetchQuotes(ctx, []string{"AAA"}); err == nil {
		t.Fatal("expected upstream error")
	}
	if _, err := g.FetchQuotes(ctx, []string{"AAA"}); !errors.Is(err, ErrCoolingDown) {
		t.Fatalf("expected cooling down, got %v", err)
	}
	if src.calls != 1 {
		t.Fatalf("upstream called %d times during cool-down", src.calls)
	}

	// second failure doubles, capped at 15s
	now = now.Add(11 * time.Second)
	_, _ = g.FetchQuotes(ctx, []string{"AAA"})
	now = now.Add(14 * time.Second)
	if _, err := g.FetchQuotes(ctx, []string{"AAA"}); !errors.Is(err, ErrCoolingDown) {
		t.Fatalf("expected cooling down at 14s, got %v", err)
	}
	now = now.Add(2 * time.Second)
	src.err = nil
	src.q = map[string]models.Quote{"AAA": {Open: 1, High: 2, Low: 1, Close: 2}}
	got, err := g.FetchQuotes(ctx, []string{"AAA"})
	if err != nil || len(got) != 1 {
		t.Fatalf("recovered fetch: %v %v", got, err)
	}
}

func TestSourceGuardThrottlesAndDropsInvalid(t *testing.T) {
	now := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)
	src := &stubSource{q: map[string]models.Quote{
		"AAA": {Open: 100, High: 101, Low: 99, Close: 100},
		"BBB": {Close: 0},
	}}
	g := NewSourceGuard(src, nil,
		WithGuardClock(func() time.Time { return now }),
		WithMinInterval(30*time.Second),
	)
	ctx := context.Background()

	got, err := g.FetchQuotes(ctx, []string{"AAA", "BBB"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if _, ok := got["BBB"]; ok || len(got) != 1 || got["AAA"].Cached {
		t.Fatalf("invalid quote kept: %v", got)
	}

	now = now.Add(10 * time.Second)
	cached, err := g.FetchQuotes(ctx, []string{"AAA"})
	if err != nil || src.calls != 1 {
		t.Fatalf("expected cached result, calls=%d err=%v", src.calls, err)
	}
	if q := cached["AAA"]; !q.Cached || q.Close != 100 {
		t.Fatalf("throttled quote not marked: %+v", q)
	}
	// BBB was never valid, so the cache cannot answer for it
	if _, err := g.FetchQuotes(ctx, []string{"AAA", "BBB"}); err != nil || src.calls != 2 {
		t.Fatalf("expected upstream call, calls=%d err=%v", src.calls, err)
	}
}
