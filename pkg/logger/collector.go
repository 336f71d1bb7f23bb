package logger

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectionConfig struct {
	TimeInterval   time.Duration // flush period, default 30s
	CountThreshold int           // distinct entries that force an early flush; 0 disables
	PublishTimeout time.Duration // per publish, default 10s
	Topic          string
	Publisher      Publisher
}

// AggregatedLogEntry counts repeats of one log site. Fields are those of the
// first occurrence.
type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogCollector batches warn/error entries by level, caller and message, so a
// failure repeating every tick ships as one entry with a count.
type LogCollector struct {
	config  CollectionConfig
	mu      sync.Mutex
	entries map[string]*AggregatedLogEntry
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

func NewLogCollector(config *CollectionConfig) *LogCollector {
	cfg := *config
	if cfg.TimeInterval <= 0 {
		cfg.TimeInterval = 30 * time.Second
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 10 * time.Second
	}
	d := &LogCollector{
		config:  cfg,
		entries: make(map[string]*AggregatedLogEntry),
		done:    make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now()
	key := level + "|" + caller + "|" + message

	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.entries[key]; ok {
		e.Count++
		e.LastSeen = now
		return
	}
	d.entries[key] = &AggregatedLogEntry{
		Level:     level,
		Message:   message,
		Fields:    fields,
		Caller:    caller,
		Count:     1,
		FirstSeen: now,
		LastSeen:  now,
	}
	if d.config.CountThreshold > 0 && len(d.entries) >= d.config.CountThreshold {
		logs := d.drainLocked()
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.publish(logs)
		}()
	}
}

func (d *LogCollector) run() {
	defer d.wg.Done()
	ticker := time.NewTicker(d.config.TimeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.flush()
		case <-d.done:
			d.flush()
			return
		}
	}
}

func (d *LogCollector) flush() {
	d.mu.Lock()
	logs := d.drainLocked()
	d.mu.Unlock()
	d.publish(logs)
}

// drainLocked returns entries oldest first and resets the batch.
func (d *LogCollector) drainLocked() []AggregatedLogEntry {
	if len(d.entries) == 0 {
		return nil
	}
	logs := make([]AggregatedLogEntry, 0, len(d.entries))
	for _, e := range d.entries {
		logs = append(logs, *e)
	}
	d.entries = make(map[string]*AggregatedLogEntry)
	sort.Slice(logs, func(i, j int) bool { return logs[i].FirstSeen.Before(logs[j].FirstSeen) })
	return logs
}

func (d *LogCollector) publish(logs []AggregatedLogEntry) {
	if len(logs) == 0 || d.config.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.config.PublishTimeout)
	defer cancel()
	if err := d.config.Publisher.PublishMessage(ctx, d.config.Topic, logs); err != nil {
		// the logger itself may be what failed; stderr is the last resort
		fmt.Fprintf(os.Stderr, "publish aggregated logs: %v\n", err)
	}
}

// Close flushes what is pending and waits for in-flight publishes. Safe to
// call more than once.
func (d *LogCollector) Close() {
	d.once.Do(func() { close(d.done) })
	d.wg.Wait()
}
