package metrics

import (
	"testing"

	"TickPilot/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderStateGaugesAreExclusive(t *testing.T) {
	r := NewWithRegisterer(prometheus.NewRegistry())

	r.RecordState(models.RegimeEmergingTrend, models.StatePositionOpen, 2)
	r.RecordState(models.RegimeRangeNeutral, models.StateIdle, 0)

	if v := testutil.ToFloat64(r.regime.WithLabelValues(string(models.RegimeRangeNeutral))); v != 1 {
		t.Fatalf("range gauge=%v want 1", v)
	}
	if v := testutil.ToFloat64(r.regime.WithLabelValues(string(models.RegimeEmergingTrend))); v != 0 {
		t.Fatalf("emerging gauge=%v want 0", v)
	}
	if v := testutil.ToFloat64(r.state.WithLabelValues(string(models.StatePositionOpen))); v != 0 {
		t.Fatalf("position_open gauge=%v want 0", v)
	}
	if v := testutil.ToFloat64(r.openPositions); v != 0 {
		t.Fatalf("open positions=%v want 0", v)
	}
}

func TestRecorderExitOnlyCountsProfit(t *testing.T) {
	r := NewWithRegisterer(prometheus.NewRegistry())

	r.RecordExit("stop loss", -120)
	r.RecordExit("take profit", 300)

	if v := testutil.ToFloat64(r.realizedPnL); v != 300 {
		t.Fatalf("realized=%v want 300", v)
	}
	if v := testutil.ToFloat64(r.exits.WithLabelValues("stop loss")); v != 1 {
		t.Fatalf("stop loss exits=%v want 1", v)
	}
}
