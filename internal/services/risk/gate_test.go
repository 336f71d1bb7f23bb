package risk

import (
	"testing"

	"TickPilot/internal/domain/models"
	"TickPilot/internal/services/regime"
)

type permit bool

func (p permit) CanOpenPosition() bool { return bool(p) }

func neutral() models.RegimeInfo {
	return models.RegimeInfo{Regime: models.RegimeRangeNeutral, Permissions: regime.PermissionsFor(models.RegimeRangeNeutral)}
}

func established() models.RegimeInfo {
	return models.RegimeInfo{Regime: models.RegimeEstablishedTrend, Permissions: regime.PermissionsFor(models.RegimeEstablishedTrend)}
}

func signal(symbol string) models.Signal {
	return models.Signal{Symbol: symbol, Side: models.SideLong, TradeType: models.TradeTypeMeanReversion, Entry: 100, Stop: 98, Target: 106}
}

func wideConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxSymbolExposure = 0.6
	return cfg
}

func TestBaseSizeScenario(t *testing.T) {
	g := NewGate(DefaultConfig())
	res := g.ValidateTrade(TradeRequest{Signal: signal("AAPL"), Capital: 100000, Regime: neutral(), Permit: permit(true)})
	if res.BaseSize != 500 || res.AdjustedSize != 500 {
		t.Fatalf("expected 500/500, got %d/%d", res.BaseSize, res.AdjustedSize)
	}
	if res.RiskAmount != 1000 {
		t.Fatalf("risk amount %v", res.RiskAmount)
	}
	if len(res.Checks) != 8 {
		t.Fatalf("expected 8 checks, got %d", len(res.Checks))
	}
}

func TestAllChecksPass(t *testing.T) {
	g := NewGate(wideConfig())
	res := g.ValidateTrade(TradeRequest{Signal: signal("AAPL"), Capital: 100000, Regime: neutral(), Permit: permit(true)})
	if !res.Passed {
		t.Fatalf("expected pass, failed: %v", res.FailedChecks())
	}
}

func TestAdjustedSizeAtLeastOne(t *testing.T) {
	g := NewGate(DefaultConfig())
	sig := signal("AAPL")
	sig.Stop = 50
	res := g.ValidateTrade(TradeRequest{Signal: sig, Capital: 1000, Regime: established(), Permit: permit(true)})
	if res.BaseSize != 0 || res.AdjustedSize != 1 {
		t.Fatalf("expected base 0 adjusted 1, got %d/%d", res.BaseSize, res.AdjustedSize)
	}
	if c, _ := res.Check(models.CheckPerTradeRisk); c.Passed {
		t.Fatalf("one share at a 50 stop exceeds a 10 risk budget")
	}
	sig.Stop = sig.Entry
	if _, adj := g.PositionSize(sig, 1000, 1); adj != 1 {
		t.Fatalf("zero stop distance must still size to 1")
	}
}

func TestRegimeMultiplierAndPermission(t *testing.T) {
	g := NewGate(wideConfig())
	res := g.ValidateTrade(TradeRequest{Signal: signal("AAPL"), Capital: 100000, Regime: established(), Permit: permit(true)})
	if res.AdjustedSize != 125 {
		t.Fatalf("expected 125, got %d", res.AdjustedSize)
	}
	if c, _ := res.Check(models.CheckRegimePermission); c.Passed {
		t.Fatalf("mean reversion must be denied in an established trend")
	}
	tf := signal("AAPL")
	tf.TradeType = models.TradeTypeTrendFollowing
	res = g.ValidateTrade(TradeRequest{Signal: tf, Capital: 100000, Regime: established(), Permit: permit(true)})
	if !res.Passed {
		t.Fatalf("trend following should pass: %v", res.FailedChecks())
	}
}

func TestSymbolExposureFailsAlone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSymbolExposure = 0.6
	g := NewGate(cfg)
	open := []models.ManagedPosition{{Symbol: "AAPL", EntryPrice: 100, Quantity: 200, Status: models.PositionFilled}}
	res := g.ValidateTrade(TradeRequest{Signal: signal("AAPL"), Capital: 100000, Regime: neutral(), OpenPositions: open, Permit: permit(true)})
	failed := res.FailedChecks()
	if len(failed) != 1 || failed[0] != models.CheckSymbolExposure {
		t.Fatalf("expected only symbol exposure to fail, got %v", failed)
	}
	if res.Passed {
		t.Fatalf("overall must fail")
	}
}

func TestDailyDrawdownOnlyWhenNegative(t *testing.T) {
	g := NewGate(wideConfig())
	res := g.ValidateTrade(TradeRequest{Signal: signal("AAPL"), Capital: 100000, DailyPnL: 50000, Regime: neutral(), Permit: permit(true)})
	if c, _ := res.Check(models.CheckDailyDrawdown); !c.Passed {
		t.Fatalf("positive pnl cannot be a drawdown")
	}
	res = g.ValidateTrade(TradeRequest{Signal: signal("AAPL"), Capital: 100000, DailyPnL: -2500, Regime: neutral(), Permit: permit(true)})
	if c, _ := res.Check(models.CheckDailyDrawdown); c.Passed {
		t.Fatalf("2.5%% drawdown must fail a 2%% cap")
	}
	if c, _ := res.Check(models.CheckDailyLossLimit); !c.Passed {
		t.Fatalf("2500 loss is under the 5000 cap")
	}
	res = g.ValidateTrade(TradeRequest{Signal: signal("AAPL"), Capital: 1000000, DailyPnL: -6000, Regime: neutral(), Permit: permit(true)})
	if c, _ := res.Check(models.CheckDailyLossLimit); c.Passed {
		t.Fatalf("6000 loss must breach the absolute cap")
	}
}

func TestSectorAndPositionCaps(t *testing.T) {
	g := NewGate(wideConfig())
	open := []models.ManagedPosition{
		{Symbol: "HDFCBANK", EntryPrice: 10, Quantity: 1, Status: models.PositionFilled},
		{Symbol: "ICICIBANK", EntryPrice: 10, Quantity: 1, Status: models.PositionFilled},
		{Symbol: "TCS", EntryPrice: 10, Quantity: 1, Status: models.PositionClosed},
	}
	res := g.ValidateTrade(TradeRequest{Signal: signal("SBIN"), Capital: 100000, Regime: neutral(), OpenPositions: open, Permit: permit(true)})
	if c, _ := res.Check(models.CheckSectorExposure); c.Passed {
		t.Fatalf("third banking position must fail")
	}
	if c, _ := res.Check(models.CheckMaxPositions); !c.Passed {
		t.Fatalf("closed positions must not count: %s", c.Reason)
	}
	emerging := models.RegimeInfo{Regime: models.RegimeEmergingTrend, Permissions: regime.PermissionsFor(models.RegimeEmergingTrend)}
	res = g.ValidateTrade(TradeRequest{Signal: signal("AAPL"), Capital: 100000, Regime: emerging, OpenPositions: open, Permit: permit(true)})
	if c, _ := res.Check(models.CheckMaxPositions); c.Passed {
		t.Fatalf("regime cap of 2 must bind")
	}
}

func TestPermitDenied(t *testing.T) {
	g := NewGate(wideConfig())
	res := g.ValidateTrade(TradeRequest{Signal: signal("AAPL"), Capital: 100000, Regime: neutral(), Permit: permit(false)})
	if c, _ := res.Check(models.CheckStateMachine); c.Passed || res.Passed {
		t.Fatalf("denied permit must fail")
	}
	res = g.ValidateTrade(TradeRequest{Signal: signal("AAPL"), Capital: 100000, Regime: neutral()})
	if c, _ := res.Check(models.CheckStateMachine); c.Passed {
		t.Fatalf("missing permit must fail")
	}
}

func TestConfiguredSectorsExtendDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sectors = map[string]string{"zomato": "consumer"}
	g := NewGate(cfg)
	if g.SectorOf("ZOMATO") != "CONSUMER" || g.SectorOf("TCS") != "IT" {
		t.Fatalf("sector table not merged")
	}
}
