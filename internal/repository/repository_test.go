package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"TickPilot/internal/domain/models"
	"TickPilot/pkg/cache"
)

type payload struct {
	Date  string    `json:"date"`
	Count int       `json:"count"`
	At    time.Time `json:"at"`
}

func TestCacheStateStoreRoundTrip(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	s := NewCacheStateStore(mc, time.Hour)
	ctx := context.Background()

	var got payload
	ok, err := s.Load(ctx, "engine", &got)
	if err != nil || ok {
		t.Fatalf("cold load: ok=%v err=%v", ok, err)
	}

	at := time.Date(2025, 3, 10, 9, 15, 0, 0, time.UTC)
	if err := s.Save(ctx, "engine", payload{Date: "2025-03-10", Count: 2, At: at}); err != nil {
		t.Fatalf("save: %v", err)
	}
	ok, err = s.Load(ctx, "engine", &got)
	if err != nil || !ok {
		t.Fatalf("warm load: ok=%v err=%v", ok, err)
	}
	if got.Date != "2025-03-10" || got.Count != 2 || !got.At.Equal(at) {
		t.Fatalf("got %+v", got)
	}
}

func TestCandleStoreRejectsBadTable(t *testing.T) {
	if _, err := newCHCandleStore(nil, "candles; DROP TABLE x", nil); err == nil {
		t.Fatalf("expected invalid table error")
	}
	if _, err := newCHCandleStore(nil, "tickpilot.candles_1m", nil); err != nil {
		t.Fatalf("valid table rejected: %v", err)
	}
}

type memQueue struct {
	types    []string
	payloads [][]byte
}

func (q *memQueue) Enqueue(_ context.Context, msgType string, payload interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	q.types = append(q.types, msgType)
	q.payloads = append(q.payloads, b)
	return nil
}

type memJournal struct{ trades []models.ClosedTrade }

func (j *memJournal) Record(_ context.Context, t models.ClosedTrade) error {
	j.trades = append(j.trades, t)
	return nil
}

func (j *memJournal) Health(context.Context) error { return nil }

func TestQueuedJournalHandsOffToJob(t *testing.T) {
	q := &memQueue{}
	store := &memJournal{}
	j := NewQueuedJournal(q, store)
	ctx := context.Background()

	trade := models.ClosedTrade{
		Position: models.ManagedPosition{ID: "p1", Symbol: "AAA", Side: models.SideLong, Quantity: 10},
		PnL:      -25, NetPnL: -65.5, IsLoss: true,
	}
	if err := j.Record(ctx, trade); err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(store.trades) != 0 {
		t.Fatal("journal written synchronously")
	}
	if len(q.types) != 1 || q.types[0] != TradeClosedJob {
		t.Fatalf("queued %v", q.types)
	}

	job := NewJournalJob(store)
	if err := job.Handle(ctx, q.payloads[0]); err != nil {
		t.Fatalf("handle: %v", err)
	}
	got := store.trades[0]
	if got.Position.ID != "p1" || got.NetPnL != -65.5 || !got.IsLoss {
		t.Fatalf("trade %+v", got)
	}
	if err := job.Handle(ctx, []byte(`{`)); err == nil {
		t.Fatal("expected decode error")
	}
}
