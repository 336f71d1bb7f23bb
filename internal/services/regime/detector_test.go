package regime

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"TickPilot/internal/domain/models"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newDetector(t *testing.T) (*Detector, *fakeClock) {
	t.Helper()
	clk := &fakeClock{t: time.Date(2024, 5, 6, 9, 30, 0, 0, time.UTC)}
	d, err := NewDetector(DefaultConfig(), WithClock(clk.now))
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	return d, clk
}

func TestCounterSequence(t *testing.T) {
	d, clk := newDetector(t)
	days := []bool{true, true, true, false}
	wantCounts := []int{1, 2, 3, 2}
	wantRegimes := []models.Regime{
		models.RegimeRangeNeutral,
		models.RegimeRangeNeutral,
		models.RegimeEmergingTrend,
		models.RegimeRangeNeutral,
	}
	for i, shift := range days {
		got := d.UpdateDailyCount(shift)
		if got != wantCounts[i] {
			t.Fatalf("day %d: count %d, want %d", i, got, wantCounts[i])
		}
		if r := d.Regime(); r != wantRegimes[i] {
			t.Fatalf("day %d: regime %s, want %s", i, r, wantRegimes[i])
		}
		clk.t = clk.t.Add(24 * time.Hour)
	}
}

func TestCounterNeverNegative(t *testing.T) {
	d, _ := newDetector(t)
	for i := 0; i < 5; i++ {
		if got := d.UpdateDailyCount(false); got != 0 {
			t.Fatalf("expected floor at 0, got %d", got)
		}
	}
}

func TestDetermineRegimeMonotonic(t *testing.T) {
	if DetermineRegime(0, 3, 7) != models.RegimeRangeNeutral {
		t.Fatalf("count 0 must be RANGE_NEUTRAL")
	}
	prev := -1
	for c := 0; c < 20; c++ {
		rank := DetermineRegime(c, 3, 7).Rank()
		if rank < prev {
			t.Fatalf("regime rank decreased at count %d", c)
		}
		prev = rank
	}
	if DetermineRegime(7, 3, 7) != models.RegimeEstablishedTrend {
		t.Fatalf("count 7 must be ESTABLISHED_TREND")
	}
}

func TestPermissions(t *testing.T) {
	cases := []struct {
		r    models.Regime
		mult float64
		max  int
		freq models.Frequency
	}{
		{models.RegimeRangeNeutral, 1.0, 4, models.FrequencyNormal},
		{models.RegimeEmergingTrend, 0.5, 2, models.FrequencyReduced},
		{models.RegimeEstablishedTrend, 0.25, 1, models.FrequencyHalted},
	}
	for _, tc := range cases {
		p := PermissionsFor(tc.r)
		if p.SizeMultiplier != tc.mult || p.MaxConcurrentTrades != tc.max || p.Frequency != tc.freq {
			t.Fatalf("%s: unexpected permissions %+v", tc.r, p)
		}
	}
	if PermissionsFor(models.RegimeEstablishedTrend).Allows(models.TradeTypeMeanReversion) {
		t.Fatalf("mean reversion must be denied in an established trend")
	}
}

func TestOverrideUntilNextUpdate(t *testing.T) {
	d, _ := newDetector(t)
	d.Override(models.RegimeEstablishedTrend)
	if d.Regime() != models.RegimeEstablishedTrend || !d.Info().Overridden {
		t.Fatalf("override not applied")
	}
	d.UpdateDailyCount(false)
	if d.Regime() != models.RegimeRangeNeutral {
		t.Fatalf("override should clear on the next daily update")
	}
}

func TestHistoryBounded(t *testing.T) {
	d, clk := newDetector(t)
	for i := 0; i < 45; i++ {
		d.UpdateDailyCount(i%2 == 0)
		clk.t = clk.t.Add(24 * time.Hour)
	}
	if n := len(d.History()); n != historyLimit {
		t.Fatalf("history length %d, want %d", n, historyLimit)
	}
}

func TestSnapshotRoundTripKeepsDates(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	clk := &fakeClock{t: time.Date(2024, 1, 31, 23, 59, 59, 123456789, ist)}
	d, err := NewDetector(DefaultConfig(), WithClock(clk.now))
	if err != nil {
		t.Fatal(err)
	}
	d.UpdateDailyCount(true)
	clk.t = clk.t.Add(24 * time.Hour)
	d.UpdateDailyCount(true)

	raw, err := json.Marshal(d.Export())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	restored, _ := NewDetector(DefaultConfig(), WithClock(clk.now))
	if err := restored.Import(snap); err != nil {
		t.Fatalf("import: %v", err)
	}
	if restored.ShiftCount() != 2 {
		t.Fatalf("shift count %d", restored.ShiftCount())
	}
	if !restored.LastShiftDate().Equal(d.LastShiftDate()) {
		t.Fatalf("last shift date changed: %v vs %v", restored.LastShiftDate(), d.LastShiftDate())
	}
	a, b := d.History(), restored.History()
	if len(a) != len(b) {
		t.Fatalf("history length mismatch")
	}
	for i := range a {
		if !a[i].Date.Equal(b[i].Date) || a[i].ShiftCount != b[i].ShiftCount {
			t.Fatalf("history entry %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
	if !restored.Scored(clk.t) {
		t.Fatalf("last scored session lost")
	}
}

func TestUpdateDailyCountOnStampsSessionDate(t *testing.T) {
	d, clk := newDetector(t)
	wed := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	clk.t = time.Date(2026, 10, 15, 9, 16, 0, 0, time.UTC)

	if got := d.UpdateDailyCountOn(wed, true); got != 1 {
		t.Fatalf("count %d", got)
	}
	if !d.LastShiftDate().Equal(wed) {
		t.Fatalf("last shift date %v, want %v", d.LastShiftDate(), wed)
	}
	h := d.History()
	if len(h) != 1 || !h[0].Date.Equal(wed) {
		t.Fatalf("history %+v", h)
	}
	if !d.Scored(wed) || d.Scored(clk.t) {
		t.Fatalf("scored wed=%v thu=%v", d.Scored(wed), d.Scored(clk.t))
	}
	if !d.Scored(wed.Add(-24 * time.Hour)) {
		t.Fatalf("earlier sessions count as scored")
	}
}

func TestImportDerivesLastSessionFromHistory(t *testing.T) {
	d, _ := newDetector(t)
	day := time.Date(2026, 10, 13, 0, 0, 0, 0, time.UTC)
	err := d.Import(Snapshot{
		Version:    SnapshotVersion,
		ShiftCount: 1,
		History:    []models.RegimeDay{{Date: day, ShiftDay: true, ShiftCount: 1}},
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !d.Scored(day) || d.Scored(day.Add(24*time.Hour)) {
		t.Fatalf("last session not derived from history")
	}
}

func TestImportRejectsUnknownVersion(t *testing.T) {
	d, _ := newDetector(t)
	err := d.Import(Snapshot{Version: 99})
	if !errors.Is(err, ErrSnapshotVersion) {
		t.Fatalf("expected version error, got %v", err)
	}
}

func TestInvalidThresholds(t *testing.T) {
	if _, err := NewDetector(Config{ThresholdA: 5, ThresholdB: 5}); err == nil {
		t.Fatalf("expected error for A >= B")
	}
}
