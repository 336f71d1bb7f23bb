// Package exits maintains ATR trailing stops for open positions and settles
// closed trades into net PnL and R-multiples.
package exits

import (
	"fmt"
	"math"

	"TickPilot/internal/domain/models"
)

const (
	ReasonTrailExit = "trail exit"
	// ReasonStopLoss labels a breach of a trail that never activated, which
	// still sits on the position's original stop.
	ReasonStopLoss = "stop loss"
)

type Config struct {
	// ActivationATR is how far price must run past entry, in ATRs, before the stop trails.
	ActivationATR float64
	// DistanceATR is the gap between the extreme and the trailed stop.
	DistanceATR float64
}

func DefaultConfig() Config {
	return Config{ActivationATR: 1.5, DistanceATR: 1.5}
}

// Trail is the trailing stop of one position.
type Trail struct {
	PositionID string      `json:"position_id"`
	Symbol     string      `json:"symbol"`
	Side       models.Side `json:"side"`
	Entry      float64     `json:"entry"`
	Stop       float64     `json:"stop"`
	Activated  bool        `json:"activated"`
}

// Breach is a trail whose stop was crossed this tick.
type Breach struct {
	PositionID string
	Symbol     string
	Stop       float64
	ExitPrice  float64
	Reason     string
}

// Engine keeps one trail per open symbol. Not safe for concurrent use.
type Engine struct {
	cfg    Config
	trails map[string]*Trail
}

func NewEngine(cfg Config) (*Engine, error) {
	if cfg.ActivationATR < 0 || cfg.DistanceATR <= 0 {
		return nil, fmt.Errorf("exits: invalid trailing config activation=%.2f distance=%.2f", cfg.ActivationATR, cfg.DistanceATR)
	}
	return &Engine{cfg: cfg, trails: make(map[string]*Trail)}, nil
}

// Sync starts trails for new positions and forgets trails whose position closed.
func (e *Engine) Sync(open []models.ManagedPosition) {
	live := make(map[string]struct{}, len(open))
	for _, p := range open {
		live[p.Symbol] = struct{}{}
		if t, ok := e.trails[p.Symbol]; ok && t.PositionID == p.ID {
			continue
		}
		e.trails[p.Symbol] = &Trail{
			PositionID: p.ID,
			Symbol:     p.Symbol,
			Side:       p.Side,
			Entry:      p.EntryPrice,
			Stop:       p.StopLoss,
		}
	}
	for sym := range e.trails {
		if _, ok := live[sym]; !ok {
			delete(e.trails, sym)
		}
	}
}

// Update ratchets the trail for bar.Symbol and reports a breach. The stop
// only ever tightens. A zero ATR leaves the stop where it is.
func (e *Engine) Update(bar models.Candle, atr float64) (Breach, bool) {
	t, ok := e.trails[bar.Symbol]
	if !ok {
		return Breach{}, false
	}
	dist := e.cfg.DistanceATR * atr
	act := e.cfg.ActivationATR * atr

	if t.Side == models.SideShort {
		if atr > 0 && bar.Low < t.Entry-act {
			t.Activated = true
			if next := bar.Low + dist; t.Stop <= 0 || next < t.Stop {
				t.Stop = next
			}
		}
		if t.Stop > 0 && bar.High >= t.Stop {
			return t.breach(math.Max(t.Stop, bar.Close)), true
		}
		return Breach{}, false
	}

	if atr > 0 && bar.High > t.Entry+act {
		t.Activated = true
		t.Stop = math.Max(t.Stop, bar.High-dist)
	}
	if t.Stop > 0 && bar.Low <= t.Stop {
		return t.breach(math.Min(t.Stop, bar.Close)), true
	}
	return Breach{}, false
}

func (t *Trail) breach(exit float64) Breach {
	reason := ReasonStopLoss
	if t.Activated {
		reason = ReasonTrailExit
	}
	return Breach{PositionID: t.PositionID, Symbol: t.Symbol, Stop: t.Stop, ExitPrice: exit, Reason: reason}
}

// Forget drops the trail of symbol.
func (e *Engine) Forget(symbol string) { delete(e.trails, symbol) }

func (e *Engine) Stop(symbol string) (float64, bool) {
	t, ok := e.trails[symbol]
	if !ok {
		return 0, false
	}
	return t.Stop, true
}

// Trails returns copies, for persistence and status output.
func (e *Engine) Trails() []Trail {
	out := make([]Trail, 0, len(e.trails))
	for _, t := range e.trails {
		out = append(out, *t)
	}
	return out
}

// Restore replaces all trails.
func (e *Engine) Restore(trails []Trail) {
	e.trails = make(map[string]*Trail, len(trails))
	for i := range trails {
		t := trails[i]
		e.trails[t.Symbol] = &t
	}
}
