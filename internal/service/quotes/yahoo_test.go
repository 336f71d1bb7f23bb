package quotes

import (
	"context"
	"errors"
	"testing"

	finance "github.com/piquette/finance-go"
)

func TestYahooSourceMapsSuffixedTickers(t *testing.T) {
	s := NewYahooSource(".NS")
	var asked []string
	s.list = func(symbols []string) ([]*finance.Quote, error) {
		asked = symbols
		return []*finance.Quote{
			{Symbol: "TCS.NS", RegularMarketOpen: 3500, RegularMarketDayHigh: 3550, RegularMarketDayLow: 3490, RegularMarketPrice: 3540, RegularMarketVolume: 1200},
			{Symbol: "INFY.NS"},
			{Symbol: "OTHER.NS", RegularMarketPrice: 10, RegularMarketDayHigh: 10, RegularMarketDayLow: 10},
		}, nil
	}

	got, err := s.FetchQuotes(context.Background(), []string{"TCS", "INFY"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(asked) != 2 || asked[0] != "TCS.NS" {
		t.Fatalf("asked=%v", asked)
	}
	if len(got) != 1 {
		t.Fatalf("zero-price INFY and unknown OTHER must be dropped, got %+v", got)
	}
	if q := got["TCS"]; q.Close != 3540 || q.Volume != 1200 {
		t.Fatalf("TCS=%+v", q)
	}
}

func TestYahooSourceError(t *testing.T) {
	s := NewYahooSource("")
	s.list = func([]string) ([]*finance.Quote, error) { return nil, errors.New("boom") }
	if _, err := s.FetchQuotes(context.Background(), []string{"AAPL"}); err == nil {
		t.Fatalf("expected error")
	}
}
