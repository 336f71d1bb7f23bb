package usecase

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"TickPilot/internal/domain/models"
	drepo "TickPilot/internal/domain/repository"
	domsvc "TickPilot/internal/domain/service"
	"TickPilot/internal/services/advisory"
	"TickPilot/internal/services/exits"
	"TickPilot/internal/services/market"
	"TickPilot/internal/services/quality"
	"TickPilot/internal/services/regime"
	"TickPilot/internal/services/risk"
	"TickPilot/internal/services/statemachine"
	"TickPilot/internal/services/strategy"
	applogger "TickPilot/pkg/logger"
)

// EngineConfig carries every tunable the engine composes.
type EngineConfig struct {
	Symbols []string
	// RegimeSymbol drives the daily trend-shift count; defaults to Symbols[0].
	RegimeSymbol string
	HistorySize  int
	StateKey     string
	RegimeKey    string

	Capital            float64
	KillSwitchDrawdown float64
	MaxTradesPerDay    int
	AdaptiveADX        bool

	Session      *market.Session
	Metrics      market.MetricsConfig
	Regime       regime.Config
	Quality      quality.Config
	Risk         risk.Config
	StateMachine statemachine.Config
	Trailing     exits.Config
	Costs        exits.CostModel
	Strategy     strategy.Config
	Advice       advisory.Policy
}

// Engine runs one decision cycle per Tick. Ticks are serialized by mu; every
// exported method takes it.
type Engine struct {
	mu sync.Mutex

	cfg       EngineConfig
	sources   []drepo.QuoteSource
	broker    drepo.Broker
	store     drepo.StateStore
	candles   drepo.CandleStore
	advisor   domsvc.Advisor
	publisher drepo.EventPublisher
	journal   drepo.TradeJournal
	metrics   drepo.Metrics
	l         *applogger.Logger
	now       func() time.Time

	history   *market.History
	detector  *regime.Detector
	filter    *quality.Filter
	gate      *risk.Gate
	sm        *statemachine.Machine
	trails    *exits.Engine
	generate  func([]models.Candle, models.RegimePermissions) []models.Signal
	sessionMx models.SessionMetrics

	tradingDate   string
	shiftToday    bool
	realizedToday float64
	realizedTotal float64
	peakEquity    float64
	tradesToday   int
	expectancy    models.Expectancy
	last          models.TickSummary
}

type Option func(*Engine)

func WithAdvisor(a domsvc.Advisor) Option {
	return func(e *Engine) { e.advisor = a }
}

func WithPublisher(p drepo.EventPublisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func WithJournal(j drepo.TradeJournal) Option {
	return func(e *Engine) { e.journal = j }
}

func WithMetrics(m drepo.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithCandleStore enables history warm-up in Restore.
func WithCandleStore(s drepo.CandleStore) Option {
	return func(e *Engine) { e.candles = s }
}

func WithLogger(l *applogger.Logger) Option {
	return func(e *Engine) { e.l = l }
}

// WithClock replaces time.Now for the engine and its state machine.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine wires the decision components. sources are tried in order on
// every tick; the first non-empty answer wins.
func NewEngine(cfg EngineConfig, sources []drepo.QuoteSource, broker drepo.Broker, store drepo.StateStore, opts ...Option) (*Engine, error) {
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("engine: no symbols configured")
	}
	if cfg.Session == nil {
		return nil, fmt.Errorf("engine: session calendar is required")
	}
	if broker == nil || store == nil {
		return nil, fmt.Errorf("engine: broker and state store are required")
	}
	if cfg.Capital <= 0 {
		return nil, fmt.Errorf("engine: capital must be positive")
	}
	if cfg.RegimeSymbol == "" {
		cfg.RegimeSymbol = cfg.Symbols[0]
	}
	if cfg.StateKey == "" {
		cfg.StateKey = "engine"
	}
	if cfg.RegimeKey == "" {
		cfg.RegimeKey = "regime"
	}

	e := &Engine{
		cfg:     cfg,
		sources: sources,
		broker:  broker,
		store:   store,
		metrics: nopMetrics{},
		l:       applogger.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.l = e.l.With(applogger.String("component", "engine"))

	det, err := regime.NewDetector(cfg.Regime, regime.WithClock(e.now))
	if err != nil {
		return nil, err
	}
	trails, err := exits.NewEngine(cfg.Trailing)
	if err != nil {
		return nil, err
	}
	gen := strategy.New(cfg.Strategy)

	e.history = market.NewHistory(cfg.HistorySize)
	e.detector = det
	e.filter = quality.New(cfg.Quality)
	e.gate = risk.NewGate(cfg.Risk)
	e.sm = statemachine.New(cfg.StateMachine, statemachine.WithClock(e.now))
	e.trails = trails
	e.generate = gen.Generate
	e.peakEquity = cfg.Capital
	return e, nil
}

// Tick runs one full cycle. It never returns an error: failures are reported
// in the result and a panic becomes status error.
func (e *Engine) Tick(ctx context.Context) (res models.TickResult) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	res.Status = models.TickOK
	defer func() {
		if r := recover(); r != nil {
			e.l.Error("tick panic", applogger.Any("panic", r), applogger.String("stack", string(debug.Stack())))
			e.metrics.RecordError("panic")
			res.Status = models.TickError
			res.Errors = append(res.Errors, fmt.Sprintf("panic: %v", r))
			res.Summary = e.last
		}
		e.metrics.RecordTick(string(res.Status), time.Since(start).Seconds())
	}()

	now := e.now()
	t := &tickState{now: now}

	if !e.cfg.Session.IsTradingDay(now) {
		res.Status = models.TickClosed
		e.markEquity(t)
		e.last = e.summarize(t)
		res.Summary = e.last
		return res
	}

	e.rollDay(now)
	e.sm.TickStart()

	quotes, source := e.fetch(ctx, t)
	t.source = source
	if len(quotes) == 0 {
		res.Status = models.TickDegraded
		t.errorf("no quotes from any source")
	}
	t.fresh = e.ingest(quotes, now)

	// cached prices keep marking positions when a source is down
	prices := e.history.LastPrices()
	e.sm.UpdatePositionPrices(prices)

	for _, x := range e.sm.CheckExits(prices) {
		e.settle(ctx, t, x.Trade)
	}
	e.trailExits(ctx, t)
	if e.cfg.Session.AfterSquareOff(now) && e.sm.OpenCount() > 0 {
		for _, tr := range e.sm.CloseAll(prices, "square off") {
			e.settle(ctx, t, tr)
		}
	}
	e.trails.Sync(e.sm.OpenPositions())

	e.updateEquity(t)

	if len(t.fresh) > 0 && e.entryWindowOpen(now) {
		e.enter(ctx, t)
	}
	e.updateEquity(t)

	summary := e.summarize(t)
	e.last = summary

	if err := e.persist(ctx); err != nil {
		e.l.Error("persist state failed", applogger.Error(err))
		e.metrics.RecordError("persist")
		t.errorf("persist: %v", err)
	}
	if e.publisher != nil {
		if err := e.publisher.PublishTick(ctx, summary); err != nil {
			e.l.Warn("publish tick failed", applogger.Error(err))
			e.metrics.RecordError("publish")
		}
	}

	info := e.detector.Info()
	e.metrics.RecordState(info.Regime, e.sm.State(), e.sm.OpenCount())
	e.metrics.RecordEquity(summary.Equity, summary.DailyPnL)

	res.Summary = summary
	res.Errors = append(res.Errors, t.errors...)
	e.l.Debug("tick done",
		applogger.String("status", string(res.Status)),
		applogger.String("source", source),
		applogger.String("state", string(summary.State)),
		applogger.Int("open", summary.OpenPositions),
		applogger.Float64("equity", summary.Equity),
	)
	return res
}

// tickState collects what happened during one tick.
type tickState struct {
	now        time.Time
	source     string
	fresh      map[string]models.Candle
	exited     map[string]bool
	equity     float64
	dailyPnL   float64
	entries    []string
	exits      []string
	rejections []string
	errors     []string
}

func (t *tickState) errorf(format string, args ...interface{}) {
	t.errors = append(t.errors, fmt.Sprintf(format, args...))
}

func (t *tickState) reject(format string, args ...interface{}) {
	t.rejections = append(t.rejections, fmt.Sprintf(format, args...))
}

// rollDay starts a new trading day on the first tick of a new date: the
// regime counter scores the session that just ended, the machine resets and
// the drawdown peak is rebased so the kill switch is per-day.
func (e *Engine) rollDay(now time.Time) {
	date := e.cfg.Session.TradingDate(now)
	if e.tradingDate == date {
		return
	}
	if e.tradingDate != "" {
		e.scoreSession()
		e.sm.ResetForNewDay()
		e.trails.Sync(e.sm.OpenPositions())
		e.peakEquity = e.cfg.Capital + e.realizedTotal + e.sm.UnrealizedPnL()
	}
	e.tradingDate = date
	e.shiftToday = false
	e.realizedToday = 0
	e.tradesToday = 0
}

// scoreSession feeds the shift flag of e.tradingDate to the regime counter,
// once per session.
func (e *Engine) scoreSession() {
	day, err := e.cfg.Session.ParseDate(e.tradingDate)
	if err != nil {
		e.l.Warn("bad trading date, regime not updated", applogger.String("date", e.tradingDate), applogger.Error(err))
		return
	}
	if e.detector.Scored(day) {
		return
	}
	count := e.detector.UpdateDailyCountOn(day, e.shiftToday)
	e.l.Info("regime updated",
		applogger.String("date", e.tradingDate),
		applogger.Bool("shift_day", e.shiftToday),
		applogger.Int("shift_count", count),
		applogger.String("regime", string(e.detector.Regime())),
	)
}

// fetch tries each source in order. Errors are recorded and the next source
// is tried; an empty answer also falls through.
func (e *Engine) fetch(ctx context.Context, t *tickState) (map[string]models.Quote, string) {
	for _, src := range e.sources {
		quotes, err := src.FetchQuotes(ctx, e.cfg.Symbols)
		if err != nil {
			e.metrics.RecordQuoteSource(src.Name(), "error")
			e.l.Warn("quote source failed", applogger.String("source", src.Name()), applogger.Error(err))
			t.errorf("source %s: %v", src.Name(), err)
			continue
		}
		valid := make(map[string]models.Quote, len(quotes))
		for sym, q := range quotes {
			if q.Valid() {
				valid[sym] = q
			}
		}
		if len(valid) == 0 {
			e.metrics.RecordQuoteSource(src.Name(), "empty")
			continue
		}
		e.metrics.RecordQuoteSource(src.Name(), "ok")
		return valid, src.Name()
	}
	return nil, ""
}

// ingest stamps quotes with the tick time and appends them to history. It
// returns the bars that were accepted. Cached quotes repeat a bar already
// seen and are skipped.
func (e *Engine) ingest(quotes map[string]models.Quote, now time.Time) map[string]models.Candle {
	fresh := make(map[string]models.Candle, len(quotes))
	for sym, q := range quotes {
		if q.Cached {
			continue
		}
		c := q.ToCandle(sym, now)
		if !e.history.Append(c) {
			continue
		}
		fresh[sym] = c
		e.metrics.RecordLastPrice(sym, c.Close)
	}
	if _, ok := fresh[e.cfg.RegimeSymbol]; ok {
		e.sessionMx = market.ComputeMetrics(e.cfg.RegimeSymbol, e.history.Candles(e.cfg.RegimeSymbol), e.cfg.Metrics)
		if e.sessionMx.IsTrendShiftDay {
			e.shiftToday = true
		}
	}
	return fresh
}

func (e *Engine) entryWindowOpen(now time.Time) bool {
	s := e.cfg.Session
	return s.IsOpen(now) && !s.AfterSquareOff(now)
}

func (e *Engine) riskUnit() float64 {
	return e.gate.RiskAmount(e.cfg.Capital)
}

func (e *Engine) markEquity(t *tickState) {
	unrealized := e.sm.UnrealizedPnL()
	t.equity = e.cfg.Capital + e.realizedTotal + unrealized
	t.dailyPnL = e.realizedToday + unrealized
}

// updateEquity marks equity and trips the kill switch on a drawdown from the
// day's peak.
func (e *Engine) updateEquity(t *tickState) {
	e.markEquity(t)
	if t.equity > e.peakEquity {
		e.peakEquity = t.equity
	}
	if e.cfg.KillSwitchDrawdown <= 0 || e.peakEquity <= 0 {
		return
	}
	dd := (e.peakEquity - t.equity) / e.peakEquity
	if on, _ := e.sm.KillSwitch(); !on && dd >= e.cfg.KillSwitchDrawdown {
		reason := fmt.Sprintf("drawdown %.2f%% from peak %.2f", dd*100, e.peakEquity)
		e.sm.ActivateKillSwitch(reason)
		e.l.Warn("kill switch activated", applogger.String("reason", reason))
	}
}

func (e *Engine) summarize(t *tickState) models.TickSummary {
	info := e.detector.Info()
	on, _ := e.sm.KillSwitch()
	s := models.TickSummary{
		Time:          t.now,
		TradingDate:   e.tradingDate,
		Regime:        info.Regime,
		ShiftCount:    info.ShiftCount,
		State:         e.sm.State(),
		DailyLosses:   e.sm.DailyLosses(),
		KillSwitch:    on,
		OpenPositions: e.sm.OpenCount(),
		CanTrade:      e.sm.CanOpenPosition() && e.tradeCapLeft(),
		QuoteSource:   t.source,
		Equity:        round2(t.equity),
		DailyPnL:      round2(t.dailyPnL),
		TradesToday:   e.tradesToday,
		Exits:         t.exits,
		Entries:       t.entries,
		Rejections:    t.rejections,
		Expectancy:    e.expectancy,
	}
	if lu := e.sm.LockUntil(); !lu.IsZero() {
		s.LockUntil = &lu
	}
	return s
}

func (e *Engine) tradeCapLeft() bool {
	return e.cfg.MaxTradesPerDay <= 0 || e.tradesToday < e.cfg.MaxTradesPerDay
}

func sortedSymbols(m map[string]models.Candle) []string {
	out := make([]string, 0, len(m))
	for s := range m {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
