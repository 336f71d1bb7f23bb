package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"TickPilot/internal/domain/models"
	domrepo "TickPilot/internal/domain/repository"
)

var ErrCoolingDown = errors.New("quote source cooling down")

// SourceGuard sits between the engine and one quote source. It bounds each
// fetch with a timeout and drops invalid quotes. Fetches inside MinInterval
// are answered from the last result with Cached set. After a failure the
// source backs off exponentially so the engine falls through to the next
// source without waiting on a dead upstream.
type SourceGuard struct {
	next    domrepo.QuoteSource
	metrics domrepo.Metrics

	timeout     time.Duration
	minInterval time.Duration
	backoffMin  time.Duration
	backoffMax  time.Duration
	now         func() time.Time

	mu        sync.Mutex
	last      map[string]models.Quote
	lastAt    time.Time
	failures  int
	openUntil time.Time
}

type GuardOption func(*SourceGuard)

// WithTimeout bounds each upstream fetch.
func WithTimeout(d time.Duration) GuardOption {
	return func(g *SourceGuard) { g.timeout = d }
}

// WithMinInterval sets the shortest gap between two upstream fetches.
func WithMinInterval(d time.Duration) GuardOption {
	return func(g *SourceGuard) { g.minInterval = d }
}

// WithBackoff sets the cool-down after the first failure and its cap.
func WithBackoff(min, max time.Duration) GuardOption {
	return func(g *SourceGuard) {
		if min > 0 {
			g.backoffMin = min
		}
		if max >= min {
			g.backoffMax = max
		}
	}
}

func WithGuardClock(now func() time.Time) GuardOption {
	return func(g *SourceGuard) { g.now = now }
}

// NewSourceGuard accepts nil metrics.
func NewSourceGuard(next domrepo.QuoteSource, metrics domrepo.Metrics, opts ...GuardOption) *SourceGuard {
	g := &SourceGuard{
		next:       next,
		metrics:    metrics,
		timeout:    10 * time.Second,
		backoffMin: 5 * time.Second,
		backoffMax: 2 * time.Minute,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *SourceGuard) Name() string { return g.next.Name() }

func (g *SourceGuard) FetchQuotes(ctx context.Context, symbols []string) (map[string]models.Quote, error) {
	now := g.now()

	g.mu.Lock()
	if now.Before(g.openUntil) {
		until := g.openUntil
		g.mu.Unlock()
		g.record("cooling_down")
		return nil, fmt.Errorf("%s: %w until %s", g.Name(), ErrCoolingDown, until.Format(time.RFC3339))
	}
	if g.minInterval > 0 && !g.lastAt.IsZero() && now.Sub(g.lastAt) < g.minInterval && covers(g.last, symbols) {
		out := pick(g.last, symbols)
		for sym, q := range out {
			q.Cached = true
			out[sym] = q
		}
		g.mu.Unlock()
		g.record("throttled")
		return out, nil
	}
	g.mu.Unlock()

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	quotes, err := g.next.FetchQuotes(ctx, symbols)

	g.mu.Lock()
	defer g.mu.Unlock()
	if err != nil {
		g.failures++
		g.openUntil = now.Add(g.backoff())
		if g.metrics != nil {
			g.metrics.RecordError("source_" + g.Name())
		}
		return nil, err
	}
	g.failures = 0
	g.openUntil = time.Time{}

	valid := make(map[string]models.Quote, len(quotes))
	for sym, q := range quotes {
		if q.Valid() {
			valid[sym] = q
		}
	}
	if dropped := len(quotes) - len(valid); dropped > 0 {
		g.record("invalid")
	}
	g.last = valid
	g.lastAt = now
	return pick(valid, symbols), nil
}

// backoff doubles per consecutive failure; callers hold the mutex.
func (g *SourceGuard) backoff() time.Duration {
	d := g.backoffMin
	for i := 1; i < g.failures && d < g.backoffMax; i++ {
		d *= 2
	}
	if d > g.backoffMax {
		d = g.backoffMax
	}
	return d
}

func (g *SourceGuard) record(result string) {
	if g.metrics != nil {
		g.metrics.RecordQuoteSource(g.Name(), result)
	}
}

func covers(m map[string]models.Quote, symbols []string) bool {
	for _, s := range symbols {
		if _, ok := m[s]; !ok {
			return false
		}
	}
	return len(symbols) > 0
}

func pick(m map[string]models.Quote, symbols []string) map[string]models.Quote {
	out := make(map[string]models.Quote, len(symbols))
	for _, s := range symbols {
		if q, ok := m[s]; ok {
			out[s] = q
		}
	}
	return out
}

var _ domrepo.QuoteSource = (*SourceGuard)(nil)
