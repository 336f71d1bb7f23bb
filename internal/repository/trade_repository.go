package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"TickPilot/internal/domain/models"
	"TickPilot/internal/domain/repository"
	pkgch "TickPilot/pkg/clickhouse"
	pkgkafka "TickPilot/pkg/kafka"
)

// ClickHouseJournal records closed trades in ClickHouse.
type ClickHouseJournal struct {
	db    *sql.DB
	table string
}

// NewClickHouseJournal creates the journal; call Init once to create the table.
func NewClickHouseJournal(ch *pkgch.Client, table string) (*ClickHouseJournal, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid journal table %q", table)
	}
	return &ClickHouseJournal{db: ch.DB(), table: table}, nil
}

// Schema returns the DDL for the journal table.
func (s *ClickHouseJournal) Schema() []string {
	return []string{fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            position_id String,
            symbol      LowCardinality(String),
            side        LowCardinality(String),
            trade_type  LowCardinality(String),
            quantity    Int32,
            entry_price Float64,
            exit_price  Float64,
            exit_reason String,
            opened_at   DateTime64(3),
            closed_at   DateTime64(3),
            pnl         Float64,
            costs       Float64,
            net_pnl     Float64,
            r_multiple  Float64,
            is_loss     UInt8
        ) ENGINE = ReplacingMergeTree
        ORDER BY (symbol, closed_at, position_id)
    `, s.table)}
}

func (s *ClickHouseJournal) Record(ctx context.Context, t models.ClosedTrade) error {
	p := t.Position
	q := fmt.Sprintf(`INSERT INTO %s (position_id, symbol, side, trade_type, quantity, entry_price, exit_price,
        exit_reason, opened_at, closed_at, pnl, costs, net_pnl, r_multiple, is_loss)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)
	isLoss := uint8(0)
	if t.IsLoss {
		isLoss = 1
	}
	closedAt := p.ClosedAt
	if closedAt.IsZero() {
		closedAt = time.Now()
	}
	if _, err := s.db.ExecContext(ctx, q,
		p.ID,
		p.Symbol,
		string(p.Side),
		string(p.TradeType),
		int32(p.Quantity),
		p.EntryPrice,
		p.ExitPrice,
		p.ExitReason,
		p.OpenedAt,
		closedAt,
		t.PnL,
		t.Costs,
		t.NetPnL,
		t.RMultiple,
		isLoss,
	); err != nil {
		return fmt.Errorf("journal insert %s: %w", p.ID, err)
	}
	return nil
}

func (s *ClickHouseJournal) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// KafkaEventPublisher streams engine events to Kafka. Tick summaries go to
// the ticks topic; trade events to the trades topic keyed by symbol.
type KafkaEventPublisher struct {
	producer    *pkgkafka.Producer
	tickTopic   string
	tradesTopic string
}

// NewKafkaEventPublisher creates Kafka publisher.
func NewKafkaEventPublisher(producer *pkgkafka.Producer, tickTopic, tradesTopic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, tickTopic: tickTopic, tradesTopic: tradesTopic}
}

// TradeEvent is the payload on the trades topic.
type TradeEvent struct {
	Type     string                  `json:"type"`
	Position *models.ManagedPosition `json:"position,omitempty"`
	Trade    *models.ClosedTrade     `json:"trade,omitempty"`
	At       time.Time               `json:"at"`
}

const (
	EventTradeOpened = "trade_opened"
	EventTradeClosed = "trade_closed"
)

func (p *KafkaEventPublisher) PublishTick(ctx context.Context, s models.TickSummary) error {
	return p.producer.Publish(ctx, p.tickTopic, []byte(s.TradingDate), s)
}

func (p *KafkaEventPublisher) PublishTradeOpened(ctx context.Context, pos models.ManagedPosition) error {
	return p.producer.Publish(ctx, p.tradesTopic, []byte(pos.Symbol), TradeEvent{
		Type:     EventTradeOpened,
		Position: &pos,
		At:       pos.OpenedAt,
	})
}

func (p *KafkaEventPublisher) PublishTradeClosed(ctx context.Context, t models.ClosedTrade) error {
	return p.producer.Publish(ctx, p.tradesTopic, []byte(t.Position.Symbol), TradeEvent{
		Type:  EventTradeClosed,
		Trade: &t,
		At:    t.Position.ClosedAt,
	})
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

var (
	_ repository.TradeJournal   = (*ClickHouseJournal)(nil)
	_ repository.EventPublisher = (*KafkaEventPublisher)(nil)
)
