package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"TickPilot/internal/domain/models"
	"TickPilot/internal/services/quality"
)

// SignalsAggregateUseCase fans out the per-symbol diagnostics.
type SignalsAggregateUseCase struct {
	agg     *SignalAggregator
	timeout time.Duration
	now     func() time.Time
}

func NewSignalsAggregateUseCase(agg *SignalAggregator) *SignalsAggregateUseCase {
	return &SignalsAggregateUseCase{agg: agg, timeout: 10 * time.Second, now: time.Now}
}

type GetSignalsParams struct {
	Symbol string
	N      int
}

// SymbolSignals is a read-only snapshot; a failed part is reported in Errors.
type SymbolSignals struct {
	Symbol    string                 `json:"symbol"`
	Timestamp time.Time              `json:"timestamp"`
	Regime    models.RegimeInfo      `json:"regime"`
	Metrics   *models.SessionMetrics `json:"metrics,omitempty"`
	Quality   *quality.Result        `json:"quality,omitempty"`
	Signals   []models.Signal        `json:"signals"`
	Advice    *models.Advice         `json:"advice,omitempty"`
	Decision  *models.AdviceDecision `json:"decision,omitempty"`
	Errors    map[string]string      `json:"errors,omitempty"`
}

func (uc *SignalsAggregateUseCase) GetSignals(ctx context.Context, p GetSignalsParams) (*SymbolSignals, error) {
	p.Symbol = strings.ToUpper(strings.TrimSpace(p.Symbol))
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if p.N <= 0 {
		p.N = defaultCandleLimit
	}

	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	res := &SymbolSignals{
		Symbol:    p.Symbol,
		Timestamp: uc.now(),
		Regime:    uc.agg.regime.RegimeInfo(),
		Signals:   []models.Signal{},
		Errors:    map[string]string{},
	}

	type item struct {
		name string
		val  interface{}
		err  error
	}
	type advice struct {
		adv models.Advice
		dec models.AdviceDecision
	}
	ch := make(chan item, 4)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		v, err := uc.agg.Metrics(ctx, p.Symbol, p.N)
		ch <- item{"metrics", v, err}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		v, err := uc.agg.Quality(ctx, p.Symbol, p.N)
		ch <- item{"quality", v, err}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		v, err := uc.agg.Signals(ctx, p.Symbol, p.N)
		ch <- item{"signals", v, err}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		adv, dec, err := uc.agg.Advice(ctx, p.Symbol, p.N)
		ch <- item{"advice", advice{adv, dec}, err}
	}()

	go func() { wg.Wait(); close(ch) }()

	for it := range ch {
		if it.err != nil {
			res.Errors[it.name] = it.err.Error()
			continue
		}
		switch it.name {
		case "metrics":
			v := it.val.(models.SessionMetrics)
			res.Metrics = &v
		case "quality":
			v := it.val.(quality.Result)
			res.Quality = &v
		case "signals":
			if v := it.val.([]models.Signal); v != nil {
				res.Signals = v
			}
		case "advice":
			v := it.val.(advice)
			res.Advice, res.Decision = &v.adv, &v.dec
		}
	}

	if len(res.Errors) == 0 {
		res.Errors = nil
	}
	return res, nil
}
