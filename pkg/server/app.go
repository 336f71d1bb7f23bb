package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"TickPilot/internal/domain/models"
	"TickPilot/pkg/cache"
	"TickPilot/pkg/config"
	xhttp "TickPilot/pkg/http"
	pkgkafka "TickPilot/pkg/kafka"
	applogger "TickPilot/pkg/logger"

	"github.com/google/uuid"
)

var (
	ErrLocked   = errors.New("another instance holds the engine lock")
	ErrLockLost = errors.New("engine lock lost")
)

const lockKey = "lock:engine"

// Runner is the engine as the scheduler sees it.
type Runner interface {
	Restore(ctx context.Context) error
	Tick(ctx context.Context) models.TickResult
}

// Service is a background component with an explicit lifecycle.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type closer struct {
	name string
	fn   func() error
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg    *config.Config
	runner Runner
	l      *applogger.Logger

	lock       cache.Service
	lockToken  string
	lockHeldAt time.Time
	httpServer *xhttp.Server
	consumer   *pkgkafka.Consumer
	handlers   []pkgkafka.MessageHandler
	services   map[string]Service
	order      []string
	afterTick  []func()
	closers    []closer
}

type Option func(*App)

// WithLock enables the single-instance lock held for the life of Run.
func WithLock(c cache.Service) Option {
	return func(a *App) { a.lock = c }
}

func WithHTTPServer(s *xhttp.Server) Option {
	return func(a *App) { a.httpServer = s }
}

// WithConsumer attaches a kafka consumer and the handlers it serves.
func WithConsumer(c *pkgkafka.Consumer, handlers ...pkgkafka.MessageHandler) Option {
	return func(a *App) {
		a.consumer = c
		a.handlers = append(a.handlers, handlers...)
	}
}

// WithService adds a background service; services start in the order given
// and stop in reverse.
func WithService(name string, s Service) Option {
	return func(a *App) {
		if _, dup := a.services[name]; dup {
			return
		}
		a.services[name] = s
		a.order = append(a.order, name)
	}
}

// WithAfterTick runs fn after every tick, on the scheduler goroutine.
func WithAfterTick(fn func()) Option {
	return func(a *App) { a.afterTick = append(a.afterTick, fn) }
}

// WithCloser registers a resource closed last during shutdown.
func WithCloser(name string, fn func() error) Option {
	return func(a *App) { a.closers = append(a.closers, closer{name: name, fn: fn}) }
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, runner Runner, l *applogger.Logger, opts ...Option) *App {
	if l == nil {
		l = applogger.NewNop()
	}
	a := &App{
		cfg:      cfg,
		runner:   runner,
		l:        l.With(applogger.String("component", "app")),
		services: make(map[string]Service),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts everything and ticks the engine until ctx is done, then shuts
// down gracefully.
func (a *App) Run(ctx context.Context) error {
	if a.lock != nil {
		a.lockToken = uuid.NewString()
		ok, err := a.lock.TryLock(ctx, lockKey, a.lockToken, a.cfg.Engine.LockTTL)
		if err != nil {
			return fmt.Errorf("engine lock: %w", err)
		}
		if !ok {
			return ErrLocked
		}
		a.lockHeldAt = time.Now()
		a.l.Info("engine lock acquired", applogger.Duration("ttl", a.cfg.Engine.LockTTL))
	}

	if err := a.runner.Restore(ctx); err != nil {
		a.releaseLock()
		return fmt.Errorf("restore: %w", err)
	}

	started, err := a.start(ctx)
	if err != nil {
		a.shutdown(started)
		return err
	}

	if err = a.loop(ctx); err != nil {
		a.l.Error("scheduler stopped", applogger.Error(err))
	} else {
		a.l.Info("shutdown signal received")
	}
	a.shutdown(started)
	return err
}

// RunOnce restores state and runs a single tick.
func (a *App) RunOnce(ctx context.Context) (models.TickResult, error) {
	if err := a.runner.Restore(ctx); err != nil {
		return models.TickResult{}, fmt.Errorf("restore: %w", err)
	}
	tctx, cancel := a.tickContext(ctx)
	defer cancel()
	res := a.runner.Tick(tctx)
	a.runClosers()
	return res, nil
}

func (a *App) start(ctx context.Context) ([]string, error) {
	started := make([]string, 0, len(a.order))
	for _, name := range a.order {
		if err := a.services[name].Start(ctx); err != nil {
			return started, fmt.Errorf("start %s: %w", name, err)
		}
		started = append(started, name)
		a.l.Info("service started", applogger.String("service", name))
	}

	if a.consumer != nil && len(a.handlers) > 0 {
		topics := make([]string, 0, len(a.handlers))
		for _, h := range a.handlers {
			a.consumer.RegisterHandler(h)
			topics = append(topics, h.Topic())
		}
		if err := a.consumer.Start(); err != nil {
			return started, fmt.Errorf("kafka consumer: %w", err)
		}
		a.l.Info("kafka consumer started", applogger.Strings("topics", topics))
	}

	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			return started, fmt.Errorf("http server: %w", err)
		}
	}
	return started, nil
}

func (a *App) loop(ctx context.Context) error {
	interval := a.cfg.Engine.TickInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.l.Info("scheduler started",
		applogger.Duration("interval", interval),
		applogger.Strings("symbols", a.cfg.Engine.Symbols),
	)
	for {
		if err := a.tick(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// tick runs one engine cycle while the lock is held. It only fails when the
// lock is gone.
func (a *App) tick(ctx context.Context) error {
	if err := a.holdLock(ctx); err != nil {
		return err
	}

	tctx, cancel := a.tickContext(ctx)
	res := a.runner.Tick(tctx)
	cancel()

	s := res.Summary
	fields := []applogger.Field{
		applogger.String("status", string(res.Status)),
		applogger.String("regime", string(s.Regime)),
		applogger.String("state", string(s.State)),
		applogger.Int("open_positions", s.OpenPositions),
		applogger.Float64("equity", s.Equity),
		applogger.Float64("daily_pnl", s.DailyPnL),
		applogger.String("source", s.QuoteSource),
	}
	switch res.Status {
	case models.TickOK, models.TickClosed:
		a.l.Debug("tick", fields...)
	case models.TickDegraded:
		a.l.Warn("tick degraded", append(fields, applogger.Strings("errors", res.Errors))...)
	default:
		a.l.Error("tick failed", append(fields, applogger.Strings("errors", res.Errors))...)
	}

	for _, fn := range a.afterTick {
		fn()
	}
	return nil
}

// holdLock extends the engine lock before a tick. A lock that expired with
// no new owner is taken back; one held by another token ends the run. Store
// errors are tolerated until the last confirmed hold is a TTL old.
func (a *App) holdLock(ctx context.Context) error {
	if a.lock == nil {
		return nil
	}
	ttl := a.cfg.Engine.LockTTL
	ok, err := a.lock.RefreshLock(ctx, lockKey, a.lockToken, ttl)
	if err == nil && !ok {
		ok, err = a.lock.TryLock(ctx, lockKey, a.lockToken, ttl)
		if ok {
			a.l.Warn("engine lock expired and was re-acquired")
		}
	}
	if err != nil {
		if time.Since(a.lockHeldAt) < ttl {
			a.l.Warn("engine lock refresh failed", applogger.Error(err))
			return nil
		}
		return fmt.Errorf("%w: %v", ErrLockLost, err)
	}
	if !ok {
		return ErrLockLost
	}
	a.lockHeldAt = time.Now()
	return nil
}

func (a *App) tickContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.Engine.TickTimeout > 0 {
		return context.WithTimeout(ctx, a.cfg.Engine.TickTimeout)
	}
	return context.WithCancel(ctx)
}

// shutdown gracefully stops all services.
func (a *App) shutdown(started []string) {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	a.l.Info("shutting down...")
	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.l.Error("http shutdown error", applogger.Error(err))
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	for i := len(started) - 1; i >= 0; i-- {
		name := started[i]
		if err := a.services[name].Stop(ctx); err != nil {
			a.l.Warn("service stop error", applogger.String("service", name), applogger.Error(err))
		}
	}
	a.releaseLock()
	a.runClosers()
	a.l.Info("shutdown complete")
}

func (a *App) releaseLock() {
	if a.lock == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ok, err := a.lock.Unlock(ctx, lockKey, a.lockToken)
	if err != nil {
		a.l.Warn("engine lock release failed", applogger.Error(err))
		return
	}
	if !ok {
		a.l.Warn("engine lock was not ours at release")
	}
}

func (a *App) runClosers() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.l.Warn("close error", applogger.String("resource", c.name), applogger.Error(err))
		}
	}
	a.closers = nil
}
