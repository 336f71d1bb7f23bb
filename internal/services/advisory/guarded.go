package advisory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"TickPilot/internal/domain/models"
	domsvc "TickPilot/internal/domain/service"
	icache "TickPilot/internal/service/cache"
	"TickPilot/internal/service/ratelimit"
)

var ErrRateLimited = errors.New("advisory: rate limited")

// Guarded throttles an Advisor per symbol and caches its answers per bar.
type Guarded struct {
	next     domsvc.Advisor
	limiter  *ratelimit.Limiter
	cache    icache.Store
	ttl      time.Duration
	capacity float64
	refill   float64
}

func NewGuarded(next domsvc.Advisor, limiter *ratelimit.Limiter, cache icache.Store, ttl time.Duration, capacity, refillPerSec float64) *Guarded {
	return &Guarded{next: next, limiter: limiter, cache: cache, ttl: ttl, capacity: capacity, refill: refillPerSec}
}

func (g *Guarded) Classify(ctx context.Context, symbol string, candles []models.Candle) (models.Advice, error) {
	key := cacheKey(symbol, candles)
	if g.cache != nil {
		if v, ok := g.cache.Get(key); ok {
			if adv, ok := v.(models.Advice); ok {
				return adv, nil
			}
		}
	}
	if g.limiter != nil && !g.limiter.Allow("advisor:"+symbol, g.capacity, g.refill) {
		return models.Advice{}, ErrRateLimited
	}
	adv, err := g.next.Classify(ctx, symbol, candles)
	if err != nil {
		return models.Advice{}, err
	}
	if g.cache != nil {
		g.cache.Set(key, adv, g.ttl)
	}
	return adv, nil
}

func cacheKey(symbol string, candles []models.Candle) string {
	if len(candles) == 0 {
		return "advice:" + symbol
	}
	return fmt.Sprintf("advice:%s:%d", symbol, candles[len(candles)-1].Timestamp.Unix())
}

var _ domsvc.Advisor = (*Guarded)(nil)
