// Package quotes holds quote sources that need no broker account.
package quotes

import (
	"context"
	"fmt"
	"strings"

	"TickPilot/internal/domain/models"
	drepo "TickPilot/internal/domain/repository"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/quote"
)

// YahooSource reads regular-session quotes from Yahoo Finance. Suffix maps
// engine symbols to Yahoo tickers, for example ".NS" for NSE listings.
type YahooSource struct {
	suffix string
	list   func(symbols []string) ([]*finance.Quote, error)
}

func NewYahooSource(suffix string) *YahooSource {
	return &YahooSource{suffix: suffix, list: listQuotes}
}

func listQuotes(symbols []string) ([]*finance.Quote, error) {
	iter := quote.List(symbols)
	var out []*finance.Quote
	for iter.Next() {
		out = append(out, iter.Quote())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *YahooSource) Name() string { return "yahoo" }

func (s *YahooSource) FetchQuotes(ctx context.Context, symbols []string) (map[string]models.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tickers := make([]string, len(symbols))
	back := make(map[string]string, len(symbols))
	for i, sym := range symbols {
		tickers[i] = sym + s.suffix
		back[strings.ToUpper(tickers[i])] = sym
	}

	qs, err := s.list(tickers)
	if err != nil {
		return nil, fmt.Errorf("yahoo quotes: %w", err)
	}

	out := make(map[string]models.Quote, len(qs))
	for _, q := range qs {
		if q == nil {
			continue
		}
		sym, ok := back[strings.ToUpper(q.Symbol)]
		if !ok {
			continue
		}
		mq := models.Quote{
			Open:   q.RegularMarketOpen,
			High:   q.RegularMarketDayHigh,
			Low:    q.RegularMarketDayLow,
			Close:  q.RegularMarketPrice,
			Volume: float64(q.RegularMarketVolume),
		}
		if mq.Valid() {
			out[sym] = mq
		}
	}
	return out, nil
}

var _ drepo.QuoteSource = (*YahooSource)(nil)
