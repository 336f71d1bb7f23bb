package exits

import (
	"math"
	"testing"

	"TickPilot/internal/domain/models"
)

func bar(symbol string, high, low, close float64) models.Candle {
	return models.Candle{Symbol: symbol, Open: close, High: high, Low: low, Close: close}
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultConfig())
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return e
}

func TestLongTrailActivatesAndNeverLoosens(t *testing.T) {
	e := newEngine(t)
	e.Sync([]models.ManagedPosition{{ID: "p1", Symbol: "AAPL", Side: models.SideLong, EntryPrice: 100, StopLoss: 97}})

	// not activated: high 102 <= 100 + 1.5*2
	if _, hit := e.Update(bar("AAPL", 102, 99, 101), 2); hit {
		t.Fatalf("unexpected breach")
	}
	if s, _ := e.Stop("AAPL"); s != 97 {
		t.Fatalf("stop=%v want 97", s)
	}

	e.Update(bar("AAPL", 110, 108, 109), 2)
	if s, _ := e.Stop("AAPL"); s != 107 {
		t.Fatalf("stop=%v want 107", s)
	}
	// a lower high must not loosen the stop
	e.Update(bar("AAPL", 109, 107.5, 108), 2)
	if s, _ := e.Stop("AAPL"); s != 107 {
		t.Fatalf("stop loosened to %v", s)
	}

	b, hit := e.Update(bar("AAPL", 108, 106, 106.5), 2)
	if !hit {
		t.Fatalf("expected breach")
	}
	if b.PositionID != "p1" || b.ExitPrice != 106.5 || b.Reason != ReasonTrailExit {
		t.Fatalf("breach=%+v", b)
	}
}

func TestBreachBeforeActivationIsStopLoss(t *testing.T) {
	e := newEngine(t)
	e.Sync([]models.ManagedPosition{
		{ID: "l", Symbol: "AAPL", Side: models.SideLong, EntryPrice: 100, StopLoss: 97},
		{ID: "s", Symbol: "TSLA", Side: models.SideShort, EntryPrice: 200, StopLoss: 204},
	})

	b, hit := e.Update(bar("AAPL", 100, 96.5, 97.5), 2)
	if !hit || b.Reason != ReasonStopLoss || b.ExitPrice != 97 {
		t.Fatalf("long breach=%+v hit=%v", b, hit)
	}
	b, hit = e.Update(bar("TSLA", 205, 201, 203), 2)
	if !hit || b.Reason != ReasonStopLoss || b.ExitPrice != 204 {
		t.Fatalf("short breach=%+v hit=%v", b, hit)
	}
}

func TestShortTrailMirrored(t *testing.T) {
	e := newEngine(t)
	e.Sync([]models.ManagedPosition{{ID: "s1", Symbol: "TSLA", Side: models.SideShort, EntryPrice: 200, StopLoss: 204}})

	e.Update(bar("TSLA", 192, 190, 191), 2)
	if s, _ := e.Stop("TSLA"); s != 193 {
		t.Fatalf("stop=%v want 193", s)
	}
	e.Update(bar("TSLA", 192, 191, 191.5), 2)
	if s, _ := e.Stop("TSLA"); s != 193 {
		t.Fatalf("stop loosened to %v", s)
	}
	b, hit := e.Update(bar("TSLA", 193.5, 191, 192), 2)
	if !hit || b.ExitPrice != 193 {
		t.Fatalf("breach=%+v hit=%v", b, hit)
	}
}

func TestSyncDropsClosedPositions(t *testing.T) {
	e := newEngine(t)
	e.Sync([]models.ManagedPosition{
		{ID: "a", Symbol: "AAPL", Side: models.SideLong, EntryPrice: 100, StopLoss: 95},
		{ID: "b", Symbol: "MSFT", Side: models.SideLong, EntryPrice: 300, StopLoss: 290},
	})
	e.Sync([]models.ManagedPosition{{ID: "b", Symbol: "MSFT", Side: models.SideLong, EntryPrice: 300, StopLoss: 290}})
	if _, ok := e.Stop("AAPL"); ok {
		t.Fatalf("closed trail should be dropped")
	}
	if len(e.Trails()) != 1 {
		t.Fatalf("trails=%d want 1", len(e.Trails()))
	}
}

func TestSyncKeepsRatchetedStop(t *testing.T) {
	e := newEngine(t)
	pos := models.ManagedPosition{ID: "p", Symbol: "AAPL", Side: models.SideLong, EntryPrice: 100, StopLoss: 95}
	e.Sync([]models.ManagedPosition{pos})
	e.Update(bar("AAPL", 110, 108, 109), 2)
	e.Sync([]models.ManagedPosition{pos})
	if s, _ := e.Stop("AAPL"); s != 107 {
		t.Fatalf("stop=%v want 107", s)
	}
}

func TestRestore(t *testing.T) {
	e := newEngine(t)
	e.Restore([]Trail{{PositionID: "p", Symbol: "AAPL", Side: models.SideLong, Entry: 100, Stop: 104, Activated: true}})
	if _, hit := e.Update(bar("AAPL", 105, 103.9, 104.5), 2); !hit {
		t.Fatalf("restored stop should breach")
	}
}

func TestInvalidConfig(t *testing.T) {
	if _, err := NewEngine(Config{ActivationATR: 1, DistanceATR: 0}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSettle(t *testing.T) {
	c := DefaultCostModel()
	tr := models.ClosedTrade{PnL: 1000}
	c.Settle(&tr, 1500)
	if tr.Costs != 41 {
		t.Fatalf("costs=%v want 41", tr.Costs)
	}
	if tr.NetPnL != 959 {
		t.Fatalf("net=%v want 959", tr.NetPnL)
	}
	if math.Abs(tr.RMultiple-959.0/1500) > 1e-9 {
		t.Fatalf("r=%v", tr.RMultiple)
	}
	c.Settle(&tr, 0)
	if tr.RMultiple != 0 {
		t.Fatalf("zero risk unit should give R 0")
	}
}

func TestFillPrice(t *testing.T) {
	c := CostModel{Slippage: 0.01}
	if got := c.FillPrice(100, true); math.Abs(got-101) > 1e-9 {
		t.Fatalf("buy fill=%v", got)
	}
	if got := c.FillPrice(100, false); math.Abs(got-99) > 1e-9 {
		t.Fatalf("sell fill=%v", got)
	}
}
