package logger

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	logs   []AggregatedLogEntry
}

func (p *recordingPublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.logs = append(p.logs, payload.([]AggregatedLogEntry)...)
	return nil
}

func TestCollectorAggregatesAndFlushesOnClose(t *testing.T) {
	pub := &recordingPublisher{}
	l := NewNop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 100, Topic: "logs", Publisher: pub})

	for i := 0; i < 3; i++ {
		l.Error("quote fetch failed", String("source", "yahoo"), Error(errors.New("timeout")))
	}
	l.Info("not collected")
	l.RemoveCollector()

	if len(pub.logs) != 1 {
		t.Fatalf("aggregated entries=%d want 1", len(pub.logs))
	}
	if pub.logs[0].Count != 3 || pub.topics[0] != "logs" {
		t.Fatalf("entry=%+v topic=%v", pub.logs[0], pub.topics)
	}
}

func TestCollectorTakesWarnings(t *testing.T) {
	pub := &recordingPublisher{}
	l := NewNop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 100, Topic: "logs", Publisher: pub})
	l.Warn("lock refresh failed")
	l.Debug("tick")
	l.RemoveCollector()

	if len(pub.logs) != 1 || pub.logs[0].Level != "warn" {
		t.Fatalf("logs=%+v", pub.logs)
	}
	if !strings.HasPrefix(pub.logs[0].Caller, "logger/collector_test.go:") {
		t.Fatalf("caller=%s", pub.logs[0].Caller)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(&Config{Level: "loud"}); err == nil {
		t.Fatalf("expected level error")
	}
}

func TestWithKeepsCollector(t *testing.T) {
	pub := &recordingPublisher{}
	l := NewNop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 100, Topic: "logs", Publisher: pub})
	l.With(String("component", "engine")).Error("tick failed", Float64("equity", 1.5))
	l.RemoveCollector()
	if len(pub.logs) != 1 || pub.logs[0].Fields["equity"] != 1.5 {
		t.Fatalf("logs=%+v", pub.logs)
	}
}

func TestCollectorGroupsBySiteNotFieldValues(t *testing.T) {
	pub := &recordingPublisher{}
	l := NewNop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, Topic: "logs", Publisher: pub})
	for _, px := range []float64{101.5, 102.25} {
		l.Warn("stale quote", Float64("price", px))
	}
	l.RemoveCollector()

	if len(pub.logs) != 1 || pub.logs[0].Count != 2 {
		t.Fatalf("logs=%+v", pub.logs)
	}
	if pub.logs[0].Fields["price"] != 101.5 {
		t.Fatalf("fields=%v want first occurrence", pub.logs[0].Fields)
	}
}
