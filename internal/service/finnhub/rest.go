package finnhub

import (
	"context"
	"fmt"
	"time"

	"TickPilot/internal/domain/models"
	drepo "TickPilot/internal/domain/repository"

	"github.com/go-resty/resty/v2"
)

// RESTSource polls the Finnhub /quote endpoint once per symbol.
type RESTSource struct {
	client *resty.Client
	apiKey string
}

func NewRESTSource(baseURL, apiKey string, timeout time.Duration) *RESTSource {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(timeout)
	return &RESTSource{client: client, apiKey: apiKey}
}

func (s *RESTSource) Name() string { return "finnhub" }

type fhQuote struct {
	C  float64 `json:"c"`
	H  float64 `json:"h"`
	L  float64 `json:"l"`
	O  float64 `json:"o"`
	PC float64 `json:"pc"`
	T  int64   `json:"t"`
}

// FetchQuotes skips symbols Finnhub returns zeros for; it fails only when no
// request succeeded at all.
func (s *RESTSource) FetchQuotes(ctx context.Context, symbols []string) (map[string]models.Quote, error) {
	out := make(map[string]models.Quote, len(symbols))
	var lastErr error
	for _, sym := range symbols {
		var q fhQuote
		resp, err := s.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{"symbol": sym, "token": s.apiKey}).
			SetResult(&q).
			Get("/quote")
		if err != nil {
			lastErr = fmt.Errorf("finnhub quote %s: %w", sym, err)
			continue
		}
		if resp.IsError() {
			lastErr = fmt.Errorf("finnhub quote %s: status %d", sym, resp.StatusCode())
			continue
		}
		quote := models.Quote{Open: q.O, High: q.H, Low: q.L, Close: q.C}
		if !quote.Valid() {
			continue
		}
		out[sym] = quote
	}
	if len(out) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

var _ drepo.QuoteSource = (*RESTSource)(nil)
