package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"TickPilot/internal/domain/models"
	drepo "TickPilot/internal/domain/repository"
	applogger "TickPilot/pkg/logger"

	"github.com/gorilla/websocket"
)

// StreamSource subscribes to Finnhub trade prints over WebSocket and folds
// them into one bar per symbol between FetchQuotes calls.
type StreamSource struct {
	apiKey         string
	websocketURL   string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	l              *applogger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	bars      map[string]*models.Quote
	lastClose map[string]float64
}

// NewStreamSource creates a stream source; call Run to start reading.
func NewStreamSource(apiKey, websocketURL string, symbols []string, reconnectDelay, pingInterval time.Duration, l *applogger.Logger) *StreamSource {
	if l == nil {
		l = applogger.NewNop()
	}
	return &StreamSource{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		l:              l.With(applogger.String("component", "finnhub_stream")),
		bars:           make(map[string]*models.Quote),
		lastClose:      make(map[string]float64),
	}
}

func (c *StreamSource) Name() string { return "finnhub_stream" }

// FetchQuotes returns the bars accumulated since the previous call and
// starts fresh ones. Symbols without prints in between are absent.
func (c *StreamSource) FetchQuotes(_ context.Context, symbols []string) (map[string]models.Quote, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]models.Quote, len(symbols))
	for _, s := range symbols {
		if b, ok := c.bars[s]; ok {
			out[s] = *b
			c.lastClose[s] = b.Close
			delete(c.bars, s)
		}
	}
	return out, nil
}

// Apply folds one trade print into the symbol's open bar.
func (c *StreamSource) Apply(symbol string, price, volume float64) {
	if price <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.bars[symbol]
	if !ok {
		open := price
		if prev, ok := c.lastClose[symbol]; ok {
			open = prev
		}
		b = &models.Quote{Open: open, High: math.Max(open, price), Low: math.Min(open, price)}
		c.bars[symbol] = b
	}
	b.High = math.Max(b.High, price)
	b.Low = math.Min(b.Low, price)
	b.Close = price
	b.Volume += volume
}

// Connect establishes the WebSocket connection.
func (c *StreamSource) Connect(ctx context.Context) error {
	u := fmt.Sprintf("%s?token=%s", c.websocketURL, c.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("finnhub connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.l.Info("finnhub connected")
	return nil
}

// Subscribe subscribes to configured symbols.
func (c *StreamSource) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("finnhub not connected")
	}
	for _, s := range c.symbols {
		msg := map[string]string{"type": "subscribe", "symbol": s}
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
	}
	c.l.Info("finnhub subscribed", applogger.Strings("symbols", c.symbols))
	return nil
}

type fhTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
}

type fhMessage struct {
	Type string    `json:"type"`
	Data []fhTrade `json:"data"`
}

// Run connects and reads until ctx is done, reconnecting after failures.
func (c *StreamSource) Run(ctx context.Context) {
	for {
		if err := c.Connect(ctx); err == nil {
			if err = c.Subscribe(ctx); err == nil {
				err = c.read(ctx)
			}
			if err != nil && ctx.Err() == nil {
				c.l.Warn("finnhub stream interrupted", applogger.Error(err))
			}
		} else {
			c.l.Warn("finnhub connect failed", applogger.Error(err))
		}
		_ = c.Close()

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.reconnectDelay):
		}
	}
}

func (c *StreamSource) read(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	done := make(chan struct{})
	defer close(done)

	// ping loop; closing the conn on cancel unblocks ReadMessage
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-ticker.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
		}
	}()

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("finnhub read: %w", err)
		}
		c.handleFrame(b)
	}
}

func (c *StreamSource) handleFrame(b []byte) {
	var m fhMessage
	if err := json.Unmarshal(b, &m); err != nil {
		// ignore non-trade frames
		return
	}
	if m.Type != "trade" {
		return
	}
	for _, d := range m.Data {
		c.Apply(d.S, d.P, d.V)
	}
}

// Close closes the WS connection.
func (c *StreamSource) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// IsConnected indicates status.
func (c *StreamSource) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

var _ drepo.QuoteSource = (*StreamSource)(nil)
