package kafka

import (
	"testing"
	"time"
)

func TestNewProducerValidatesConfig(t *testing.T) {
	if _, err := NewProducer(); err == nil {
		t.Fatal("expected error without brokers")
	}
	if _, err := NewProducer(WithBrokers([]string{"localhost:9092"}), WithCompression("brotli")); err == nil {
		t.Fatal("expected error for unknown compression")
	}
	if _, err := NewProducer(WithBrokers([]string{"localhost:9092"}), WithDelivery(2, 3, false)); err == nil {
		t.Fatal("expected error for acks outside [-1, 1]")
	}
}

func TestProducerOptionsKeepDefaultsOnZero(t *testing.T) {
	cfg := defaultProducerConfig()
	for _, opt := range []ProducerOption{
		WithCompression(""),
		WithBatching(0, 0, 0),
		WithTimeouts(0, 0),
		WithDelivery(1, 0, true),
	} {
		opt(&cfg)
	}
	if cfg.Compression != "gzip" || cfg.BatchSize != 100 || cfg.BatchTimeout != time.Second || cfg.WriteTimeout != 10*time.Second {
		t.Fatalf("defaults overwritten: %+v", cfg)
	}
	if cfg.RequiredAcks != 1 || cfg.MaxAttempts != 3 || !cfg.Async {
		t.Fatalf("delivery %+v", cfg)
	}

	WithCompression("ZSTD")(&cfg)
	WithBrokers([]string{"b:9092"})(&cfg)
	if err := cfg.validate(); err != nil || cfg.Compression != "zstd" {
		t.Fatalf("zstd config: %v %+v", err, cfg)
	}
}
