package broker

import (
	"context"
	"fmt"

	"TickPilot/internal/domain/models"
	drepo "TickPilot/internal/domain/repository"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
)

// Alpaca routes orders to Alpaca and reads latest bars from its data API.
type Alpaca struct {
	md    *marketdata.Client
	trade *alpaca.Client
	feed  string
}

func NewAlpaca(apiKey, apiSecret, baseURL, feed string) *Alpaca {
	return &Alpaca{
		md: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
		}),
		trade: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
		feed: feed,
	}
}

func (a *Alpaca) Name() string { return "alpaca" }

func (a *Alpaca) FetchQuotes(ctx context.Context, symbols []string) (map[string]models.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bars, err := a.md.GetLatestBars(symbols, marketdata.GetLatestBarRequest{Feed: a.feed})
	if err != nil {
		return nil, fmt.Errorf("alpaca latest bars: %w", err)
	}
	out := make(map[string]models.Quote, len(bars))
	for sym, b := range bars {
		q := models.Quote{Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: float64(b.Volume)}
		if q.Valid() {
			out[sym] = q
		}
	}
	return out, nil
}

func (a *Alpaca) PlaceOrder(ctx context.Context, req models.OrderRequest) (models.OrderAck, error) {
	if err := ctx.Err(); err != nil {
		return models.OrderAck{}, err
	}
	qty := decimal.NewFromInt(int64(req.Qty))
	side := alpaca.Sell
	if req.Buy() {
		side = alpaca.Buy
	}
	par := alpaca.PlaceOrderRequest{
		Symbol:      req.Symbol,
		Qty:         &qty,
		Side:        side,
		Type:        alpaca.Market,
		TimeInForce: alpaca.Day,
	}
	if req.Type == models.OrderLimit {
		limit := decimal.NewFromFloat(req.Price).Round(2)
		par.Type = alpaca.Limit
		par.LimitPrice = &limit
	}

	o, err := a.trade.PlaceOrder(par)
	if err != nil {
		return models.OrderAck{Success: false, Message: err.Error()}, fmt.Errorf("alpaca place order %s: %w", req.Symbol, err)
	}
	ack := models.OrderAck{Success: true, OrderID: o.ID, FillPrice: req.Price}
	if o.FilledAvgPrice != nil && !o.FilledAvgPrice.IsZero() {
		ack.FillPrice, _ = o.FilledAvgPrice.Float64()
	}
	return ack, nil
}

var _ drepo.Broker = (*Alpaca)(nil)
