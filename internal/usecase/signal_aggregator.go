package usecase

import (
	"context"
	"errors"
	"fmt"

	"TickPilot/internal/domain/models"
	drepo "TickPilot/internal/domain/repository"
	domsvc "TickPilot/internal/domain/service"
	"TickPilot/internal/services/advisory"
	"TickPilot/internal/services/indicators"
	"TickPilot/internal/services/market"
	"TickPilot/internal/services/quality"
	"TickPilot/internal/services/strategy"
)

var (
	ErrNoAdvisor   = errors.New("advisor not configured")
	ErrNoCandles   = errors.New("no candles for symbol")
	errNotTradable = errors.New("market not tradable")
)

// RegimeReader exposes the live regime.
type RegimeReader interface {
	RegimeInfo() models.RegimeInfo
}

// SignalAggregator recomputes, read-only, what the engine sees for one symbol.
type SignalAggregator struct {
	candles     drepo.CandleStore
	regime      RegimeReader
	filter      *quality.Filter
	generator   *strategy.Generator
	advisor     domsvc.Advisor
	policy      advisory.Policy
	metrics     market.MetricsConfig
	adaptiveADX bool
}

type AggregatorConfig struct {
	Quality     quality.Config
	Strategy    strategy.Config
	Advice      advisory.Policy
	Metrics     market.MetricsConfig
	AdaptiveADX bool
}

// NewSignalAggregator accepts a nil advisor.
func NewSignalAggregator(candles drepo.CandleStore, regime RegimeReader, advisor domsvc.Advisor, cfg AggregatorConfig) *SignalAggregator {
	return &SignalAggregator{
		candles:     candles,
		regime:      regime,
		filter:      quality.New(cfg.Quality),
		generator:   strategy.New(cfg.Strategy),
		advisor:     advisor,
		policy:      cfg.Advice,
		metrics:     cfg.Metrics,
		adaptiveADX: cfg.AdaptiveADX,
	}
}

func (a *SignalAggregator) load(ctx context.Context, symbol string, n int) ([]models.Candle, error) {
	cs, err := a.candles.LatestCandles(ctx, symbol, n)
	if err != nil {
		return nil, err
	}
	if len(cs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoCandles, symbol)
	}
	return cs, nil
}

func (a *SignalAggregator) Metrics(ctx context.Context, symbol string, n int) (models.SessionMetrics, error) {
	cs, err := a.load(ctx, symbol, n)
	if err != nil {
		return models.SessionMetrics{}, err
	}
	return market.ComputeMetrics(symbol, cs, a.metrics), nil
}

// Quality applies the ADX profile first when adaptive thresholds are on.
func (a *SignalAggregator) Quality(ctx context.Context, symbol string, n int) (quality.Result, error) {
	cs, err := a.load(ctx, symbol, n)
	if err != nil {
		return quality.Result{}, err
	}
	f := a.filter
	if a.adaptiveADX {
		adx, ok := indicators.ADX(cs, atrPeriod)
		if !ok {
			return quality.Result{}, fmt.Errorf("adx: %w", ErrNoCandles)
		}
		p := quality.ProfileForADX(adx)
		if !p.Tradable {
			return quality.Result{}, fmt.Errorf("%w: %s (adx %.1f)", errNotTradable, p.Name, adx)
		}
		f = f.WithProfile(p)
	}
	return f.Evaluate(cs), nil
}

func (a *SignalAggregator) Signals(ctx context.Context, symbol string, n int) ([]models.Signal, error) {
	cs, err := a.load(ctx, symbol, n)
	if err != nil {
		return nil, err
	}
	return a.generator.Generate(cs, a.regime.RegimeInfo().Permissions), nil
}

// Advice returns the advisor's view and what the policy would do with a long.
func (a *SignalAggregator) Advice(ctx context.Context, symbol string, n int) (models.Advice, models.AdviceDecision, error) {
	if a.advisor == nil {
		return models.Advice{}, models.AdviceDecision{}, ErrNoAdvisor
	}
	cs, err := a.load(ctx, symbol, n)
	if err != nil {
		return models.Advice{}, models.AdviceDecision{}, err
	}
	adv, err := a.advisor.Classify(ctx, symbol, cs)
	if err != nil {
		return models.Advice{}, models.AdviceDecision{}, err
	}
	return adv, a.policy.Resolve(models.SideLong, &adv), nil
}
