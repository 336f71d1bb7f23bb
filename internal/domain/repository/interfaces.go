package repository

import (
	"context"

	"TickPilot/internal/domain/models"
)

// QuoteSource returns the latest OHLCV per symbol. An empty map means no data.
type QuoteSource interface {
	Name() string
	FetchQuotes(ctx context.Context, symbols []string) (map[string]models.Quote, error)
}

// Broker is the fixed capability set of an execution venue.
type Broker interface {
	QuoteSource
	PlaceOrder(ctx context.Context, req models.OrderRequest) (models.OrderAck, error)
}

// StateStore is a key-value snapshot store. Load reports false on a cold start.
type StateStore interface {
	Load(ctx context.Context, key string, dest interface{}) (bool, error)
	Save(ctx context.Context, key string, value interface{}) error
}

// EventPublisher streams engine events to downstream consumers.
type EventPublisher interface {
	PublishTick(ctx context.Context, summary models.TickSummary) error
	PublishTradeOpened(ctx context.Context, pos models.ManagedPosition) error
	PublishTradeClosed(ctx context.Context, trade models.ClosedTrade) error
	Close() error
}

// TradeJournal records closed trades.
type TradeJournal interface {
	Record(ctx context.Context, trade models.ClosedTrade) error
	Health(ctx context.Context) error
}

type Metrics interface {
	RecordTick(status string, seconds float64)
	RecordQuoteSource(source, result string)
	RecordGateRejection(check string)
	RecordEntry(symbol string, tradeType string)
	RecordExit(reason string, pnl float64)
	RecordState(regime models.Regime, state models.TradingState, openPositions int)
	RecordEquity(equity, dailyPnL float64)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
}
