package statemachine

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"TickPilot/internal/domain/models"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestMachine(cfg Config) (*Machine, *fakeClock) {
	clk := &fakeClock{t: time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)}
	n := 0
	m := New(cfg,
		WithClock(clk.Now),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("pos-%d", n) }),
	)
	return m, clk
}

func longReq(symbol string, entry float64, qty int) OpenRequest {
	return OpenRequest{
		Symbol:     symbol,
		Side:       models.SideLong,
		TradeType:  models.TradeTypeTrendFollowing,
		EntryPrice: entry,
		Quantity:   qty,
		StopLoss:   entry - 5,
		Target:     entry + 10,
	}
}

func mustOpen(t *testing.T, m *Machine, req OpenRequest) models.ManagedPosition {
	t.Helper()
	p, err := m.OpenPosition(req)
	if err != nil {
		t.Fatalf("open %s: %v", req.Symbol, err)
	}
	return p
}

func TestOpenAndCloseLongPnL(t *testing.T) {
	m, _ := newTestMachine(DefaultConfig())
	p := mustOpen(t, m, longReq("AAPL", 100, 10))
	if p.Status != models.PositionFilled || m.State() != models.StatePositionOpen {
		t.Fatalf("unexpected status=%s state=%s", p.Status, m.State())
	}
	tr := m.ClosePosition(p.ID, 105, "take profit")
	if tr == nil {
		t.Fatalf("expected a closed trade")
	}
	if tr.PnL != 50.00 {
		t.Fatalf("pnl=%v want 50.00", tr.PnL)
	}
	if tr.IsLoss || m.DailyLosses() != 0 {
		t.Fatalf("winning close must not count as a loss")
	}
	if m.State() != models.StateIdle {
		t.Fatalf("state=%s want IDLE", m.State())
	}
}

func TestShortPnLIsInverted(t *testing.T) {
	m, _ := newTestMachine(DefaultConfig())
	req := longReq("TSLA", 200, 3)
	req.Side = models.SideShort
	p := mustOpen(t, m, req)
	tr := m.ClosePosition(p.ID, 190.333, "take profit")
	if tr.PnL != 29.0 {
		t.Fatalf("pnl=%v want 29.00", tr.PnL)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	m, _ := newTestMachine(DefaultConfig())
	p := mustOpen(t, m, longReq("AAPL", 100, 10))
	if m.ClosePosition(p.ID, 95, "stop loss") == nil {
		t.Fatalf("first close returned nil")
	}
	losses, state := m.DailyLosses(), m.State()
	if m.ClosePosition(p.ID, 90, "stop loss") != nil {
		t.Fatalf("second close must return nil")
	}
	if m.DailyLosses() != losses || m.State() != state {
		t.Fatalf("second close changed state: losses=%d state=%s", m.DailyLosses(), m.State())
	}
	if m.ClosePosition("missing", 1, "x") != nil {
		t.Fatalf("unknown id must return nil")
	}
}

func TestLossLocksThenTickStartExpires(t *testing.T) {
	m, clk := newTestMachine(DefaultConfig())
	p := mustOpen(t, m, longReq("AAPL", 100, 10))
	tr := m.ClosePosition(p.ID, 99, "manual")
	if !tr.IsLoss {
		t.Fatalf("negative pnl must count as loss by default")
	}
	if m.State() != models.StateLockedAfterLoss {
		t.Fatalf("state=%s want LOCKED", m.State())
	}
	if m.CanOpenPosition() {
		t.Fatalf("locked machine must deny opens")
	}
	if _, err := m.OpenPosition(longReq("MSFT", 50, 1)); !errors.Is(err, ErrCannotOpen) {
		t.Fatalf("err=%v want ErrCannotOpen", err)
	}

	clk.Advance(29 * time.Minute)
	if m.TickStart() != models.StateLockedAfterLoss {
		t.Fatalf("lock expired early")
	}
	clk.Advance(2 * time.Minute)
	if m.State() != models.StateLockedAfterLoss {
		t.Fatalf("getter must not apply expiry")
	}
	if !m.CanOpenPosition() {
		t.Fatalf("elapsed lock should permit opens")
	}
	if m.TickStart() != models.StateIdle {
		t.Fatalf("state=%s want IDLE after expiry", m.State())
	}
	if !m.LockUntil().IsZero() {
		t.Fatalf("lock should be cleared")
	}
}

func TestLockExpiryWithOpenPositionReturnsToPositionOpen(t *testing.T) {
	m, clk := newTestMachine(DefaultConfig())
	a := mustOpen(t, m, longReq("AAPL", 100, 10))
	mustOpen(t, m, longReq("MSFT", 300, 1))
	m.ClosePosition(a.ID, 98, "stop loss")
	if m.State() != models.StateLockedAfterLoss {
		t.Fatalf("state=%s want LOCKED", m.State())
	}
	clk.Advance(31 * time.Minute)
	if m.TickStart() != models.StatePositionOpen {
		t.Fatalf("state=%s want POSITION_OPEN", m.State())
	}
}

func TestHaltAfterMaxLosses(t *testing.T) {
	m, clk := newTestMachine(DefaultConfig())
	a := mustOpen(t, m, longReq("AAPL", 100, 10))
	m.ClosePosition(a.ID, 95, "stop loss")
	clk.Advance(time.Hour)
	m.TickStart()
	b := mustOpen(t, m, longReq("MSFT", 100, 10))
	m.ClosePosition(b.ID, 95, "stop loss")

	if m.State() != models.StateHaltedForDay {
		t.Fatalf("state=%s want HALTED", m.State())
	}
	if m.DailyLosses() != 2 {
		t.Fatalf("losses=%d want 2", m.DailyLosses())
	}
	clk.Advance(2 * time.Hour)
	m.TickStart()
	if m.CanOpenPosition() || m.State() != models.StateHaltedForDay {
		t.Fatalf("halted machine must stay halted")
	}
}

func TestLossRequiresStopReason(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LossRequiresStopReason = true
	m, _ := newTestMachine(cfg)
	p := mustOpen(t, m, longReq("AAPL", 100, 10))
	tr := m.ClosePosition(p.ID, 99, "square off")
	if tr.IsLoss || m.DailyLosses() != 0 || m.State() != models.StateIdle {
		t.Fatalf("non-stop close should not count: loss=%v state=%s", tr.IsLoss, m.State())
	}
	q := mustOpen(t, m, longReq("AAPL", 100, 10))
	if tr := m.ClosePosition(q.ID, 99, "trail exit"); !tr.IsLoss {
		t.Fatalf("trail exit at a loss should count")
	}
}

func TestMaxConcurrentPositions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConcurrentPositions = 2
	m, _ := newTestMachine(cfg)
	mustOpen(t, m, longReq("A", 10, 1))
	mustOpen(t, m, longReq("B", 10, 1))
	if m.CanOpenPosition() {
		t.Fatalf("expected deny at max positions")
	}
	if _, err := m.OpenPosition(longReq("C", 10, 1)); !errors.Is(err, ErrCannotOpen) {
		t.Fatalf("err=%v want ErrCannotOpen", err)
	}
}

func TestOpenRejectsInvalidRequest(t *testing.T) {
	m, _ := newTestMachine(DefaultConfig())
	if _, err := m.OpenPosition(longReq("AAPL", 100, 0)); !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("err=%v want ErrInvalidOrder", err)
	}
	if m.State() != models.StateIdle || m.OpenCount() != 0 {
		t.Fatalf("invalid request must not mutate")
	}
}

func TestWatchTransitions(t *testing.T) {
	m, _ := newTestMachine(DefaultConfig())
	if err := m.CancelWatch(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("cancel from IDLE: err=%v", err)
	}
	if err := m.ArmWatch("AAPL", "pullback forming"); err != nil {
		t.Fatalf("arm: %v", err)
	}
	if m.State() != models.StateWaitingForTrigger || m.Watch() == nil {
		t.Fatalf("state=%s want WAITING", m.State())
	}
	if err := m.ArmWatch("MSFT", "again"); err == nil {
		t.Fatalf("arming twice should fail")
	}
	mustOpen(t, m, longReq("AAPL", 100, 1))
	if m.State() != models.StatePositionOpen || m.Watch() != nil {
		t.Fatalf("open should consume the watch")
	}
}

func TestCheckExits(t *testing.T) {
	m, _ := newTestMachine(DefaultConfig())
	a := mustOpen(t, m, longReq("AAPL", 100, 10)) // stop 95 target 110
	short := longReq("TSLA", 200, 2)
	short.Side = models.SideShort
	short.StopLoss, short.Target = 210, 180
	b := mustOpen(t, m, short)
	mustOpen(t, m, longReq("MSFT", 300, 1))

	prices := map[string]float64{"AAPL": 111, "TSLA": 212, "MSFT": 301}
	m.UpdatePositionPrices(prices)
	exits := m.CheckExits(prices)
	if len(exits) != 2 {
		t.Fatalf("exits=%d want 2", len(exits))
	}
	got := map[string]string{}
	for _, e := range exits {
		got[e.Trade.Position.ID] = e.Trade.Position.ExitReason
		if e.Description == "" {
			t.Fatalf("missing description")
		}
	}
	if got[a.ID] != "take profit" || got[b.ID] != "stop loss" {
		t.Fatalf("reasons=%v", got)
	}
	if m.OpenCount() != 1 {
		t.Fatalf("open=%d want 1", m.OpenCount())
	}
}

func TestUpdatePositionPricesMarksPnL(t *testing.T) {
	m, _ := newTestMachine(DefaultConfig())
	mustOpen(t, m, longReq("AAPL", 100, 10))
	m.UpdatePositionPrices(map[string]float64{"AAPL": 102.5, "MSFT": 1})
	p, ok := m.OpenPositionFor("AAPL")
	if !ok || p.CurrentPrice != 102.5 || p.PnL != 25 {
		t.Fatalf("position=%+v", p)
	}
	if m.UnrealizedPnL() != 25 {
		t.Fatalf("unrealized=%v", m.UnrealizedPnL())
	}
}

func TestKillSwitch(t *testing.T) {
	m, _ := newTestMachine(DefaultConfig())
	mustOpen(t, m, longReq("AAPL", 100, 1))
	m.ActivateKillSwitch("drawdown")
	if m.State() != models.StateHaltedForDay || m.CanOpenPosition() {
		t.Fatalf("kill switch should halt")
	}
	if on, reason := m.KillSwitch(); !on || reason != "drawdown" {
		t.Fatalf("kill switch=%v %q", on, reason)
	}
	m.DeactivateKillSwitch()
	if m.State() != models.StatePositionOpen {
		t.Fatalf("state=%s want POSITION_OPEN", m.State())
	}
}

func TestResetForNewDayKeepsOpenPositions(t *testing.T) {
	m, _ := newTestMachine(DefaultConfig())
	a := mustOpen(t, m, longReq("AAPL", 100, 10))
	mustOpen(t, m, longReq("MSFT", 100, 10))
	m.ClosePosition(a.ID, 95, "stop loss")
	m.ActivateKillSwitch("manual")

	m.ResetForNewDay()
	if m.State() != models.StatePositionOpen {
		t.Fatalf("state=%s want POSITION_OPEN", m.State())
	}
	if m.DailyLosses() != 0 || !m.LockUntil().IsZero() {
		t.Fatalf("counters not reset")
	}
	if on, _ := m.KillSwitch(); on {
		t.Fatalf("kill switch not cleared")
	}
	if len(m.Positions()) != 1 {
		t.Fatalf("closed positions should be dropped, got %d", len(m.Positions()))
	}
	if tr := m.Transitions(); len(tr) != 1 || tr[0].Trigger != "new trading day" {
		t.Fatalf("transitions=%+v", tr)
	}
}

func TestResetForNewDayAfterHaltWithOneOpen(t *testing.T) {
	m, _ := newTestMachine(DefaultConfig())
	a := mustOpen(t, m, longReq("AAPL", 100, 10))
	b := mustOpen(t, m, longReq("MSFT", 100, 10))
	c := mustOpen(t, m, longReq("NVDA", 100, 10))
	m.ClosePosition(a.ID, 95, "stop loss")
	m.ClosePosition(b.ID, 94, "stop loss")
	if m.State() != models.StateHaltedForDay {
		t.Fatalf("state=%s want HALTED_FOR_DAY", m.State())
	}

	m.ResetForNewDay()
	if m.State() != models.StatePositionOpen {
		t.Fatalf("state=%s want POSITION_OPEN", m.State())
	}
	ps := m.Positions()
	if len(ps) != 1 || ps[0].ID != c.ID || m.OpenCount() != 1 {
		t.Fatalf("positions after reset %+v", ps)
	}
	if !m.CanOpenPosition() {
		t.Fatalf("new day should allow entries")
	}
}

func TestTransitionLogIsBounded(t *testing.T) {
	m, _ := newTestMachine(DefaultConfig())
	for i := 0; i < 40; i++ {
		if err := m.ArmWatch("AAPL", "x"); err != nil {
			t.Fatalf("arm: %v", err)
		}
		if err := m.CancelWatch(); err != nil {
			t.Fatalf("cancel: %v", err)
		}
	}
	if n := len(m.Transitions()); n != transitionLimit {
		t.Fatalf("transitions=%d want %d", n, transitionLimit)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	m, clk := newTestMachine(DefaultConfig())
	a := mustOpen(t, m, longReq("AAPL", 100, 10))
	mustOpen(t, m, longReq("MSFT", 300, 2))
	m.ClosePosition(a.ID, 97, "stop loss")

	raw, err := json.Marshal(m.Export())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	restored := New(DefaultConfig(), WithClock(clk.Now))
	if err := restored.Import(snap); err != nil {
		t.Fatalf("import: %v", err)
	}
	if restored.State() != models.StateLockedAfterLoss || restored.DailyLosses() != 1 {
		t.Fatalf("state=%s losses=%d", restored.State(), restored.DailyLosses())
	}
	if !restored.LockUntil().Equal(m.LockUntil()) {
		t.Fatalf("lock=%v want %v", restored.LockUntil(), m.LockUntil())
	}
	if restored.OpenCount() != 1 || len(restored.Transitions()) != len(m.Transitions()) {
		t.Fatalf("positions or transitions lost")
	}
	if restored.ClosePosition(a.ID, 90, "stop loss") != nil {
		t.Fatalf("closed position must stay closed after import")
	}
}

func TestImportRejectsUnknownVersion(t *testing.T) {
	m, _ := newTestMachine(DefaultConfig())
	if err := m.Import(Snapshot{Version: 99, State: models.StateIdle}); !errors.Is(err, ErrSnapshotVersion) {
		t.Fatalf("err=%v want ErrSnapshotVersion", err)
	}
}
