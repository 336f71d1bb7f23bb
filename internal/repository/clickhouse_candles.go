package repository

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"TickPilot/internal/domain/models"
	domrepo "TickPilot/internal/domain/repository"
	pkgch "TickPilot/pkg/clickhouse"
	applogger "TickPilot/pkg/logger"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// CHCandleStore reads 1-minute bars from ClickHouse. It serves both as a quote
// source (latest bar per symbol) and as the history warm-up store.
type CHCandleStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHCandleStore(ch *pkgch.Client, table string, l *applogger.Logger) (*CHCandleStore, error) {
	return newCHCandleStore(ch.DB(), table, l)
}

func newCHCandleStore(db *sql.DB, table string, l *applogger.Logger) (*CHCandleStore, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid candle table %q", table)
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &CHCandleStore{db: db, table: table, l: l}, nil
}

func (s *CHCandleStore) Name() string { return "clickhouse" }

// FetchQuotes returns the latest stored bar for each symbol. Symbols with no
// rows are absent from the result.
func (s *CHCandleStore) FetchQuotes(ctx context.Context, symbols []string) (map[string]models.Quote, error) {
	out := make(map[string]models.Quote, len(symbols))
	for _, sym := range symbols {
		bars, err := s.LatestCandles(ctx, sym, 1)
		if err != nil {
			return nil, err
		}
		if len(bars) == 0 {
			continue
		}
		b := bars[0]
		out[sym] = models.Quote{Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume}
	}
	return out, nil
}

// LatestCandles returns up to n bars in ascending time order.
func (s *CHCandleStore) LatestCandles(ctx context.Context, symbol string, n int) ([]models.Candle, error) {
	start := time.Now()
	const qtpl = `
        SELECT bucket, symbol, open, high, low, close, vol
        FROM %s
        WHERE symbol = ?
        ORDER BY bucket DESC
        LIMIT ?
    `
	q := fmt.Sprintf(qtpl, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, n)
	if err != nil {
		s.l.Error("clickhouse latest_candles query error",
			applogger.String("table", s.table),
			applogger.String("symbol", symbol),
			applogger.Int("limit", n),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get latest candles: %w", err)
	}
	defer rows.Close()

	tmp := make([]models.Candle, 0, n)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Timestamp, &c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		tmp = append(tmp, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	// reverse to ASC
	for i, j := 0, len(tmp)-1; i < j; i, j = i+1, j-1 {
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}
	s.l.Debug("clickhouse latest_candles ok",
		applogger.String("symbol", symbol),
		applogger.Int("rows", len(tmp)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return tmp, nil
}

var (
	_ domrepo.QuoteSource = (*CHCandleStore)(nil)
	_ domrepo.CandleStore = (*CHCandleStore)(nil)
)
