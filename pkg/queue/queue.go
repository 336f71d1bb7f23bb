package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Enqueuer is the producer side of a queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) error
}

// Config contains the configuration for the queue
type Config struct {
	Workers    int           // number of workers
	RetryLimit int           // retries before a message is dead-lettered
	RetryDelay time.Duration // delay before a failed message is retried
	PollWait   time.Duration // how long a worker blocks waiting for a message
}

// Message is the stored envelope.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	Timestamp time.Time       `json:"timestamp"`
}

type outcome int

const (
	outcomeDone outcome = iota
	outcomeRetry
	outcomeDead
)

// settle decides what happens to a message after its handler returned err.
func settle(msg *Message, err error, retryLimit int) outcome {
	if err == nil {
		return outcomeDone
	}
	if msg.Attempts < retryLimit {
		msg.Attempts++
		return outcomeRetry
	}
	return outcomeDead
}
