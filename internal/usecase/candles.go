package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"TickPilot/internal/domain/models"
	drepo "TickPilot/internal/domain/repository"
)

const (
	defaultCandleLimit = 300
	maxCandleLimit     = 5000
)

var ErrArchiveDisabled = errors.New("candle archive is not configured")

// CandlesUseCase serves recent bars from the engine's live history or, when
// configured, from the candle archive.
type CandlesUseCase struct {
	live    drepo.CandleStore
	archive drepo.CandleStore
}

// NewCandlesUseCase accepts a nil archive.
func NewCandlesUseCase(live, archive drepo.CandleStore) *CandlesUseCase {
	return &CandlesUseCase{live: live, archive: archive}
}

type GetCandlesParams struct {
	Symbol  string
	Limit   int
	Archive bool
}

type GetCandlesResult struct {
	Symbol  string          `json:"symbol"`
	Source  string          `json:"source"`
	Count   int             `json:"count"`
	Candles []models.Candle `json:"candles"`
}

func (uc *CandlesUseCase) GetCandles(ctx context.Context, p GetCandlesParams) (*GetCandlesResult, error) {
	p.Symbol = strings.ToUpper(strings.TrimSpace(p.Symbol))
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if p.Limit <= 0 {
		p.Limit = defaultCandleLimit
	}
	if p.Limit > maxCandleLimit {
		p.Limit = maxCandleLimit
	}

	store, source := uc.live, "live"
	if p.Archive {
		if uc.archive == nil {
			return nil, ErrArchiveDisabled
		}
		store, source = uc.archive, "archive"
	}
	candles, err := store.LatestCandles(ctx, p.Symbol, p.Limit)
	if err != nil {
		return nil, fmt.Errorf("get candles: %w", err)
	}
	return &GetCandlesResult{
		Symbol:  p.Symbol,
		Source:  source,
		Count:   len(candles),
		Candles: candles,
	}, nil
}
