package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"TickPilot/internal/domain/models"
	"TickPilot/internal/domain/repository"
	"TickPilot/pkg/queue"
)

const TradeClosedJob = "trade.closed"

// QueuedJournal hands closed trades to a work queue so a slow or down
// journal store never holds up a tick. JournalJob drains the queue.
type QueuedJournal struct {
	q     queue.Enqueuer
	inner repository.TradeJournal
}

func NewQueuedJournal(q queue.Enqueuer, inner repository.TradeJournal) *QueuedJournal {
	return &QueuedJournal{q: q, inner: inner}
}

func (j *QueuedJournal) Record(ctx context.Context, t models.ClosedTrade) error {
	if err := j.q.Enqueue(ctx, TradeClosedJob, t); err != nil {
		return fmt.Errorf("enqueue trade %s: %w", t.Position.ID, err)
	}
	return nil
}

func (j *QueuedJournal) Health(ctx context.Context) error { return j.inner.Health(ctx) }

// JournalJob writes queued trades to the journal store.
type JournalJob struct {
	journal repository.TradeJournal
}

func NewJournalJob(journal repository.TradeJournal) *JournalJob {
	return &JournalJob{journal: journal}
}

func (j *JournalJob) Name() string { return "journal" }
func (j *JournalJob) Type() string { return TradeClosedJob }

func (j *JournalJob) Handle(ctx context.Context, payload json.RawMessage) error {
	var t models.ClosedTrade
	if err := json.Unmarshal(payload, &t); err != nil {
		return fmt.Errorf("decode trade: %w", err)
	}
	return j.journal.Record(ctx, t)
}

var (
	_ repository.TradeJournal = (*QueuedJournal)(nil)
	_ queue.Job               = (*JournalJob)(nil)
)
