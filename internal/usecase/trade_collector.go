package usecase

import (
	"context"
	"sync"

	drepo "TickPilot/internal/domain/repository"
	applogger "TickPilot/pkg/logger"
)

// MarketStream is a push feed that keeps itself connected while Run is active.
type MarketStream interface {
	Run(ctx context.Context)
	Close() error
	IsConnected() bool
}

// StreamCollector owns the lifecycle of a streaming quote source.
type StreamCollector struct {
	stream  MarketStream
	metrics drepo.Metrics
	l       *applogger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewStreamCollector(stream MarketStream, metrics drepo.Metrics, l *applogger.Logger) *StreamCollector {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &StreamCollector{stream: stream, metrics: metrics, l: l}
}

// IsConnected returns true if the market stream is connected.
func (c *StreamCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

// Start runs the stream in the background. Calling it twice is a no-op.
func (c *StreamCollector) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				c.metrics.RecordError("stream")
				c.l.Error("stream panic", applogger.Any("panic", r))
			}
		}()
		c.stream.Run(ctx)
	}()
	c.l.Info("stream collector started")
	return nil
}

// Stop ends the stream and waits for it to return or ctx to expire.
func (c *StreamCollector) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return c.stream.Close()
}
