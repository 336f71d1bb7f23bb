package metrics

import (
	"TickPilot/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ticks          *prometheus.CounterVec
	tickDuration   prometheus.Histogram
	quoteSources   *prometheus.CounterVec
	gateRejections *prometheus.CounterVec
	entries        *prometheus.CounterVec
	exits          *prometheus.CounterVec
	realizedPnL    prometheus.Counter
	regime         *prometheus.GaugeVec
	state          *prometheus.GaugeVec
	openPositions  prometheus.Gauge
	equity         prometheus.Gauge
	dailyPnL       prometheus.Gauge
	errorsTotal    *prometheus.CounterVec
	lastPrice      *prometheus.GaugeVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers on reg, so tests can use a private registry.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		ticks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tickpilot_ticks_total",
				Help: "Total number of engine ticks by status",
			},
			[]string{"status"},
		),
		tickDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tickpilot_tick_duration_seconds",
				Help:    "Duration of a full engine tick",
				Buckets: prometheus.DefBuckets,
			},
		),
		quoteSources: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tickpilot_quote_source_total",
				Help: "Quote source attempts by source and result",
			},
			[]string{"source", "result"},
		),
		gateRejections: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tickpilot_gate_rejections_total",
				Help: "Entry candidates rejected, by failing check",
			},
			[]string{"check"},
		),
		entries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tickpilot_entries_total",
				Help: "Positions opened",
			},
			[]string{"symbol", "trade_type"},
		),
		exits: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tickpilot_exits_total",
				Help: "Positions closed, by exit reason",
			},
			[]string{"reason"},
		),
		realizedPnL: f.NewCounter(
			prometheus.CounterOpts{
				Name: "tickpilot_realized_profit_total",
				Help: "Sum of positive net PnL over closed trades",
			},
		),
		regime: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tickpilot_regime",
				Help: "1 for the current regime, 0 otherwise",
			},
			[]string{"regime"},
		),
		state: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tickpilot_trading_state",
				Help: "1 for the current trading state, 0 otherwise",
			},
			[]string{"state"},
		),
		openPositions: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "tickpilot_open_positions",
				Help: "Number of open positions",
			},
		),
		equity: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "tickpilot_equity",
				Help: "Current equity including unrealized PnL",
			},
		),
		dailyPnL: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "tickpilot_daily_pnl",
				Help: "PnL since the start of the trading day",
			},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tickpilot_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tickpilot_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
	}
}

// RecordTick records one tick and its duration.
func (r *Recorder) RecordTick(status string, seconds float64) {
	r.ticks.WithLabelValues(status).Inc()
	r.tickDuration.Observe(seconds)
}

func (r *Recorder) RecordQuoteSource(source, result string) {
	r.quoteSources.WithLabelValues(source, result).Inc()
}

func (r *Recorder) RecordGateRejection(check string) {
	r.gateRejections.WithLabelValues(check).Inc()
}

func (r *Recorder) RecordEntry(symbol string, tradeType string) {
	r.entries.WithLabelValues(symbol, tradeType).Inc()
}

// RecordExit counts the exit; only profits feed the monotonic PnL counter.
func (r *Recorder) RecordExit(reason string, pnl float64) {
	r.exits.WithLabelValues(reason).Inc()
	if pnl > 0 {
		r.realizedPnL.Add(pnl)
	}
}

var (
	allRegimes = []models.Regime{models.RegimeRangeNeutral, models.RegimeEmergingTrend, models.RegimeEstablishedTrend}
	allStates  = []models.TradingState{
		models.StateIdle,
		models.StateWaitingForTrigger,
		models.StatePositionOpen,
		models.StateLockedAfterLoss,
		models.StateHaltedForDay,
	}
)

func (r *Recorder) RecordState(regime models.Regime, state models.TradingState, openPositions int) {
	for _, g := range allRegimes {
		r.regime.WithLabelValues(string(g)).Set(boolGauge(g == regime))
	}
	for _, s := range allStates {
		r.state.WithLabelValues(string(s)).Set(boolGauge(s == state))
	}
	r.openPositions.Set(float64(openPositions))
}

func (r *Recorder) RecordEquity(equity, dailyPnL float64) {
	r.equity.Set(equity)
	r.dailyPnL.Set(dailyPnL)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
