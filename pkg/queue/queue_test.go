package queue

import (
	"errors"
	"testing"
)

func TestSettle(t *testing.T) {
	msg := &Message{ID: "1"}
	if got := settle(msg, nil, 2); got != outcomeDone || msg.Attempts != 0 {
		t.Fatalf("success: %v attempts=%d", got, msg.Attempts)
	}
	boom := errors.New("boom")
	for i := 1; i <= 2; i++ {
		if got := settle(msg, boom, 2); got != outcomeRetry || msg.Attempts != i {
			t.Fatalf("failure %d: %v attempts=%d", i, got, msg.Attempts)
		}
	}
	if got := settle(msg, boom, 2); got != outcomeDead {
		t.Fatalf("expected dead letter, got %v", got)
	}
}

func TestKeys(t *testing.T) {
	q := NewRedisQueue(nil, Config{}, nil, WithKeyPrefix("tp:q"))
	if q.queueKey() != "tp:q:pending" || q.retryKey() != "tp:q:retry" || q.deadLetterKey() != "tp:q:dead" {
		t.Fatalf("keys %s %s %s", q.queueKey(), q.retryKey(), q.deadLetterKey())
	}
	if q.config.Workers != 1 || q.config.RetryDelay == 0 {
		t.Fatalf("defaults not applied: %+v", q.config)
	}
}
