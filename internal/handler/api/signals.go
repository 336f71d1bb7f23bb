package api

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	icache "TickPilot/internal/service/cache"
	"TickPilot/internal/service/metrics"
	"TickPilot/internal/service/ratelimit"
	"TickPilot/internal/usecase"
	applogger "TickPilot/pkg/logger"
	xutil "TickPilot/pkg/util"
)

const (
	signalsEndpoint = "signals"
	signalsTTL      = 15 * time.Second
	signalsBurst    = 5
	signalsRefill   = 1
)

// SignalsHandler serves the per-symbol diagnostics: session metrics, quality,
// candidate signals and advice. Responses are cached briefly per symbol and
// each client is rate limited.
type SignalsHandler struct {
	uc    *usecase.SignalsAggregateUseCase
	cache icache.Store
	rl    *ratelimit.Limiter
	l     *applogger.Logger
	ttl   time.Duration
}

func NewSignalsHandler(uc *usecase.SignalsAggregateUseCase, rl *ratelimit.Limiter) *SignalsHandler {
	metrics.Register()
	if rl == nil {
		rl = ratelimit.New()
	}
	return &SignalsHandler{uc: uc, rl: rl, l: applogger.NewNop(), ttl: signalsTTL}
}

func (h *SignalsHandler) SetCache(c icache.Store) { h.cache = c }

// SetLogger injects a structured logger.
func (h *SignalsHandler) SetLogger(l *applogger.Logger) {
	if l != nil {
		h.l = l
	}
}

func (h *SignalsHandler) Signals() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		defer func() {
			metrics.AnalyticsLatency.WithLabelValues(signalsEndpoint).Observe(time.Since(start).Seconds())
		}()

		symbol := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("symbol")))
		if symbol == "" {
			h.l.Warn("signals missing symbol")
			http.Error(w, "symbol required", http.StatusBadRequest)
			return
		}
		n := xutil.ParseIntDefault(r.URL.Query().Get("n"), 0)
		if !h.rl.Allow(clientKey(r)+":"+signalsEndpoint, signalsBurst, signalsRefill) {
			metrics.AnalyticsRateLimited.WithLabelValues(signalsEndpoint).Inc()
			h.l.Warn("signals rate_limited", applogger.String("remote", r.RemoteAddr))
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}

		cacheKey := signalsEndpoint + ":" + symbol + ":" + strconv.Itoa(n)
		if h.cache != nil {
			if v, ok := h.cache.Get(cacheKey); ok {
				if b, isBytes := v.([]byte); isBytes {
					metrics.AnalyticsCache.WithLabelValues(signalsEndpoint, "hit").Inc()
					h.l.Debug("signals cache_hit", applogger.String("key", cacheKey))
					w.Header().Set("Content-Type", "application/json")
					w.Header().Set("X-Cache", "hit")
					h.write(w, b)
					return
				}
			}
			metrics.AnalyticsCache.WithLabelValues(signalsEndpoint, "miss").Inc()
		}

		res, err := h.uc.GetSignals(r.Context(), usecase.GetSignalsParams{Symbol: symbol, N: n})
		if err != nil {
			metrics.AnalyticsErrors.WithLabelValues(signalsEndpoint).Inc()
			h.l.Error("signals error", applogger.String("symbol", symbol), applogger.Error(err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if res.Metrics == nil {
			metrics.AnalyticsErrors.WithLabelValues(signalsEndpoint).Inc()
			http.Error(w, usecase.ErrNoCandles.Error()+": "+symbol, http.StatusNotFound)
			return
		}
		b, err := json.Marshal(res)
		if err != nil {
			h.l.Error("signals marshal_error", applogger.Error(err))
			http.Error(w, "encode error", http.StatusInternalServerError)
			return
		}
		if h.cache != nil {
			h.cache.Set(cacheKey, b, h.ttl)
		}
		w.Header().Set("Content-Type", "application/json")
		h.write(w, b)
	}
}

func (h *SignalsHandler) write(w http.ResponseWriter, b []byte) {
	if _, err := w.Write(b); err != nil {
		h.l.Warn("signals write_error", applogger.Error(err))
	}
}

func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
