package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"TickPilot/internal/domain/models"
	"TickPilot/pkg/cache"
	"TickPilot/pkg/config"
)

type fakeRunner struct {
	mu       sync.Mutex
	restored int
	ticks    int
	restErr  error
}

func (r *fakeRunner) Restore(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restored++
	return r.restErr
}

func (r *fakeRunner) Tick(context.Context) models.TickResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks++
	return models.TickResult{Status: models.TickOK}
}

func (r *fakeRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ticks
}

type recordingService struct {
	name string
	log  *[]string
}

func (s recordingService) Start(context.Context) error {
	*s.log = append(*s.log, "start "+s.name)
	return nil
}

func (s recordingService) Stop(context.Context) error {
	*s.log = append(*s.log, "stop "+s.name)
	return nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Engine.Symbols = []string{"AAA"}
	cfg.Engine.TickInterval = 5 * time.Millisecond
	cfg.Engine.LockTTL = time.Minute
	cfg.Server.ShutdownTimeout = time.Second
	return cfg
}

func TestRunTicksUntilCancelled(t *testing.T) {
	lock := cache.NewMemoryCache()
	defer lock.Close()
	runner := &fakeRunner{}
	var log []string
	closed := false
	afterTicks := 0

	app := New(testConfig(), runner, nil,
		WithLock(lock),
		WithService("queue", recordingService{"queue", &log}),
		WithService("stream", recordingService{"stream", &log}),
		WithAfterTick(func() { afterTicks++ }),
		WithCloser("producer", func() error { closed = true; return nil }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for runner.count() < 3 {
		if time.Now().After(deadline) {
			t.Fatal("scheduler did not tick")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}

	if runner.restored != 1 || afterTicks < 3 || !closed {
		t.Fatalf("restored=%d afterTicks=%d closed=%v", runner.restored, afterTicks, closed)
	}
	want := []string{"start queue", "start stream", "stop stream", "stop queue"}
	if len(log) != len(want) {
		t.Fatalf("lifecycle %v", log)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("lifecycle %v, want %v", log, want)
		}
	}
	// lock released on shutdown
	ok, err := lock.TryLock(context.Background(), lockKey, "next", time.Minute)
	if err != nil || !ok {
		t.Fatalf("lock still held: ok=%v err=%v", ok, err)
	}
}

func TestRunRefusesWhenLocked(t *testing.T) {
	lock := cache.NewMemoryCache()
	defer lock.Close()
	if ok, _ := lock.TryLock(context.Background(), lockKey, "other", time.Minute); !ok {
		t.Fatal("setup lock")
	}
	runner := &fakeRunner{}
	err := New(testConfig(), runner, nil, WithLock(lock)).Run(context.Background())
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if runner.restored != 0 {
		t.Fatal("restored while locked out")
	}
}

func TestRunStopsWhenLockTakenOver(t *testing.T) {
	ctx := context.Background()
	lock := cache.NewMemoryCache()
	defer lock.Close()
	runner := &fakeRunner{}
	app := New(testConfig(), runner, nil, WithLock(lock))

	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for runner.count() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("scheduler did not tick")
		}
		time.Sleep(time.Millisecond)
	}
	// the lock expired and another instance took it
	if err := lock.Set(ctx, lockKey, "other", time.Minute); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, ErrLockLost) {
			t.Fatalf("expected ErrLockLost, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler kept ticking without the lock")
	}
	if ok, _ := lock.Unlock(ctx, lockKey, "other"); !ok {
		t.Fatal("shutdown released a lock it no longer owned")
	}
}

func TestRunReacquiresExpiredLock(t *testing.T) {
	ctx := context.Background()
	lock := cache.NewMemoryCache()
	defer lock.Close()
	runner := &fakeRunner{}
	app := New(testConfig(), runner, nil, WithLock(lock))

	cctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- app.Run(cctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for runner.count() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("scheduler did not tick")
		}
		time.Sleep(time.Millisecond)
	}
	if err := lock.Delete(ctx, lockKey); err != nil {
		t.Fatal(err)
	}
	seen := runner.count()
	for runner.count() < seen+2 {
		if time.Now().After(deadline) {
			t.Fatal("scheduler stopped after the lock expired")
		}
		time.Sleep(time.Millisecond)
	}
	if held, _ := lock.Exists(ctx, lockKey); !held {
		t.Fatal("lock not re-acquired")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestRunOnce(t *testing.T) {
	runner := &fakeRunner{}
	closed := 0
	app := New(testConfig(), runner, nil, WithCloser("x", func() error { closed++; return nil }))
	res, err := app.RunOnce(context.Background())
	if err != nil || res.Status != models.TickOK || runner.count() != 1 || closed != 1 {
		t.Fatalf("res=%+v err=%v ticks=%d closed=%d", res, err, runner.count(), closed)
	}

	failing := &fakeRunner{restErr: errors.New("corrupt snapshot")}
	if _, err := New(testConfig(), failing, nil).RunOnce(context.Background()); err == nil {
		t.Fatal("expected restore error")
	}
}
