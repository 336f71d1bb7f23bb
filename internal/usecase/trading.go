package usecase

import (
	"context"
	"fmt"
	"strings"

	"TickPilot/internal/domain/models"
	"TickPilot/internal/services/advisory"
	"TickPilot/internal/services/indicators"
	"TickPilot/internal/services/quality"
	"TickPilot/internal/services/risk"
	"TickPilot/internal/services/statemachine"
	applogger "TickPilot/pkg/logger"

	"github.com/shopspring/decimal"
)

const atrPeriod = 14

// trailExits ratchets every trail with this tick's bar and closes breaches.
func (e *Engine) trailExits(ctx context.Context, t *tickState) {
	e.trails.Sync(e.sm.OpenPositions())
	for _, sym := range sortedSymbols(t.fresh) {
		bar := t.fresh[sym]
		atr, _ := indicators.ATR(e.history.Candles(sym), atrPeriod)
		b, hit := e.trails.Update(bar, atr)
		if !hit {
			continue
		}
		if tr := e.sm.ClosePosition(b.PositionID, b.ExitPrice, b.Reason); tr != nil {
			e.settle(ctx, t, *tr)
		}
		e.trails.Forget(sym)
	}
}

// settle prices costs into a closed trade and fans it out: exit order,
// journal, event stream, metrics.
func (e *Engine) settle(ctx context.Context, t *tickState, tr models.ClosedTrade) {
	e.cfg.Costs.Settle(&tr, e.riskUnit())
	e.realizedToday += tr.NetPnL
	e.realizedTotal += tr.NetPnL
	e.expectancy.Add(tr.RMultiple)
	e.trails.Forget(tr.Position.Symbol)
	if t.exited == nil {
		t.exited = make(map[string]bool)
	}
	t.exited[tr.Position.Symbol] = true
	t.exits = append(t.exits, tr.Description())

	p := tr.Position
	ack, err := e.broker.PlaceOrder(ctx, models.OrderRequest{
		Symbol: p.Symbol,
		Side:   p.Side,
		Qty:    p.Quantity,
		Type:   models.OrderMarket,
		Price:  p.ExitPrice,
		Exit:   true,
	})
	if err != nil || !ack.Success {
		e.metrics.RecordError("exit_order")
		e.l.Error("exit order failed",
			applogger.String("symbol", p.Symbol),
			applogger.String("position_id", p.ID),
			applogger.String("message", ack.Message),
			applogger.Error(err),
		)
		t.errorf("exit order %s: %v %s", p.Symbol, err, ack.Message)
	}

	if e.journal != nil {
		if err := e.journal.Record(ctx, tr); err != nil {
			e.metrics.RecordError("journal")
			e.l.Warn("journal record failed", applogger.String("position_id", p.ID), applogger.Error(err))
		}
	}
	if e.publisher != nil {
		if err := e.publisher.PublishTradeClosed(ctx, tr); err != nil {
			e.metrics.RecordError("publish")
		}
	}
	e.metrics.RecordExit(p.ExitReason, tr.NetPnL)
	e.l.Info("position closed",
		applogger.String("symbol", p.Symbol),
		applogger.String("reason", p.ExitReason),
		applogger.Float64("pnl", tr.PnL),
		applogger.Float64("net_pnl", tr.NetPnL),
		applogger.Float64("r", tr.RMultiple),
		applogger.Bool("loss", tr.IsLoss),
		applogger.String("state", string(e.sm.State())),
		applogger.Float64("win_rate", e.expectancy.WinRate()),
		applogger.Float64("avg_r", e.expectancy.AverageR()),
	)
}

// enter evaluates every symbol with a fresh bar, at most one position per
// symbol. A symbol closed during this tick is not re-entered until the next.
func (e *Engine) enter(ctx context.Context, t *tickState) {
	info := e.detector.Info()
	for _, sym := range sortedSymbols(t.fresh) {
		if !e.sm.CanOpenPosition() {
			return
		}
		if !e.tradeCapLeft() {
			t.reject("%s: max trades per day (%d) reached", sym, e.cfg.MaxTradesPerDay)
			e.metrics.RecordGateRejection("max_trades_per_day")
			return
		}
		if t.exited[sym] {
			continue
		}
		if _, open := e.sm.OpenPositionFor(sym); open {
			continue
		}

		candles := e.history.Candles(sym)
		signals := e.generate(candles, info.Permissions)
		if len(signals) == 0 {
			continue
		}

		filter := e.filter
		if e.cfg.AdaptiveADX {
			adx, ok := indicators.ADX(candles, atrPeriod)
			if !ok {
				t.reject("%s: insufficient data for ADX profile", sym)
				e.metrics.RecordGateRejection("quality")
				continue
			}
			prof := quality.ProfileForADX(adx)
			if !prof.Tradable {
				t.reject("%s: %s market (adx %.1f)", sym, strings.ToLower(prof.Name), adx)
				e.metrics.RecordGateRejection("quality")
				continue
			}
			filter = filter.WithProfile(prof)
		}
		q := filter.Evaluate(candles)

		for _, sig := range signals {
			if e.tryEntry(ctx, t, sig, q, info, candles) {
				break
			}
		}
	}
}

func (e *Engine) tryEntry(ctx context.Context, t *tickState, sig models.Signal, q quality.Result, info models.RegimeInfo, candles []models.Candle) bool {
	if !q.PassesFor(sig.TradeType) {
		t.reject("%s %s: quality %s", sig.Symbol, sig.TradeType, strings.Join(q.Reasons, "; "))
		e.metrics.RecordGateRejection("quality")
		return false
	}

	check := e.gate.ValidateTrade(risk.TradeRequest{
		Signal:        sig,
		Capital:       e.cfg.Capital,
		DailyPnL:      e.realizedToday + e.sm.UnrealizedPnL(),
		Regime:        info,
		OpenPositions: e.sm.OpenPositions(),
		Permit:        e.sm,
	})
	if !check.Passed {
		failed := check.FailedChecks()
		for _, name := range failed {
			e.metrics.RecordGateRejection(name)
		}
		t.reject("%s %s: risk %s", sig.Symbol, sig.TradeType, strings.Join(failed, ","))
		e.l.Info("risk gate rejected",
			applogger.String("symbol", sig.Symbol),
			applogger.String("trade_type", string(sig.TradeType)),
			applogger.Strings("failed", failed),
		)
		return false
	}

	qty := check.AdjustedSize
	decision := e.advise(ctx, sig, candles)
	qty = advisory.ApplySize(decision, qty)
	if qty <= 0 {
		t.reject("%s %s: advisory %s", sig.Symbol, sig.TradeType, decision.Reason)
		e.metrics.RecordGateRejection("advisory")
		return false
	}

	ack, err := e.broker.PlaceOrder(ctx, models.OrderRequest{
		Symbol: sig.Symbol,
		Side:   sig.Side,
		Qty:    qty,
		Type:   models.OrderMarket,
		Price:  sig.Entry,
	})
	if err != nil || !ack.Success {
		e.metrics.RecordError("order")
		e.l.Error("entry order failed",
			applogger.String("symbol", sig.Symbol),
			applogger.String("message", ack.Message),
			applogger.Error(err),
		)
		t.errorf("order %s: %v %s", sig.Symbol, err, ack.Message)
		return false
	}

	fill := ack.FillPrice
	if fill <= 0 {
		fill = e.cfg.Costs.FillPrice(sig.Entry, sig.Side == models.SideLong)
	}
	pos, err := e.sm.OpenPosition(statemachine.OpenRequest{
		Symbol:     sig.Symbol,
		Side:       sig.Side,
		TradeType:  sig.TradeType,
		EntryPrice: decimal.NewFromFloat(fill).Round(2).InexactFloat64(),
		Quantity:   qty,
		StopLoss:   sig.Stop,
		Target:     sig.Target,
		OrderID:    ack.OrderID,
	})
	if err != nil {
		// the broker filled but the machine refused; surface loudly
		e.metrics.RecordError("open_position")
		e.l.Error("open position rejected after fill",
			applogger.String("symbol", sig.Symbol),
			applogger.String("order_id", ack.OrderID),
			applogger.Error(err),
		)
		t.errorf("open %s: %v", sig.Symbol, err)
		return false
	}

	e.tradesToday++
	e.trails.Sync(e.sm.OpenPositions())
	t.entries = append(t.entries, fmt.Sprintf("%s %s x%d @ %.2f (%s, advice %s)",
		pos.Side, pos.Symbol, pos.Quantity, pos.EntryPrice, pos.TradeType, decision.Action))
	if e.publisher != nil {
		if err := e.publisher.PublishTradeOpened(ctx, pos); err != nil {
			e.metrics.RecordError("publish")
		}
	}
	e.metrics.RecordEntry(pos.Symbol, string(pos.TradeType))
	e.l.Info("position opened",
		applogger.String("symbol", pos.Symbol),
		applogger.String("side", string(pos.Side)),
		applogger.String("trade_type", string(pos.TradeType)),
		applogger.Int("qty", pos.Quantity),
		applogger.Float64("entry", pos.EntryPrice),
		applogger.Float64("stop", pos.StopLoss),
		applogger.Float64("target", pos.Target),
		applogger.String("advice", string(decision.Action)),
	)
	return true
}

// advise asks the optional advisor. Errors and rate limiting read as no advice.
func (e *Engine) advise(ctx context.Context, sig models.Signal, candles []models.Candle) models.AdviceDecision {
	if e.advisor == nil {
		return e.cfg.Advice.Resolve(sig.Side, nil)
	}
	adv, err := e.advisor.Classify(ctx, sig.Symbol, candles)
	if err != nil {
		e.l.Debug("advisor unavailable", applogger.String("symbol", sig.Symbol), applogger.Error(err))
		return e.cfg.Advice.Resolve(sig.Side, nil)
	}
	return e.cfg.Advice.Resolve(sig.Side, &adv)
}
