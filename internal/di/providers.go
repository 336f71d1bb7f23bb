package di

import (
	"context"
	"fmt"
	"time"

	drepo "TickPilot/internal/domain/repository"
	domsvc "TickPilot/internal/domain/service"
	"TickPilot/internal/handler/api"
	mid "TickPilot/internal/middleware"
	internalrepo "TickPilot/internal/repository"
	"TickPilot/internal/service/broker"
	icache "TickPilot/internal/service/cache"
	"TickPilot/internal/service/finnhub"
	"TickPilot/internal/service/quotes"
	"TickPilot/internal/service/ratelimit"
	"TickPilot/internal/services/advisory"
	"TickPilot/internal/services/exits"
	"TickPilot/internal/services/market"
	"TickPilot/internal/services/quality"
	"TickPilot/internal/services/regime"
	"TickPilot/internal/services/risk"
	"TickPilot/internal/services/statemachine"
	"TickPilot/internal/services/strategy"
	"TickPilot/internal/usecase"
	"TickPilot/pkg/cache"
	pkgch "TickPilot/pkg/clickhouse"
	"TickPilot/pkg/config"
	xhttp "TickPilot/pkg/http"
	pkgkafka "TickPilot/pkg/kafka"
	applogger "TickPilot/pkg/logger"
	"TickPilot/pkg/metrics"
	"TickPilot/pkg/queue"
	"TickPilot/pkg/server"
)

const initTimeout = 10 * time.Second

// ProvideKafkaProducer creates a Kafka producer, or nil when kafka is off.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithDelivery(cfg.Kafka.RequiredAcks, cfg.Kafka.Producer.MaxAttempts, cfg.Kafka.Producer.Async),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger builds the root logger. With log.collect on and kafka
// enabled, aggregated warnings and errors are shipped to the logs topic.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Log.Collect && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Log.CollectInterval,
			CountThreshold: cfg.Log.CollectCount,
			Topic:          cfg.Kafka.Topics.Logs,
			Publisher:      producer,
		})
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New()
}

// ProvideRedisCache connects to redis, or returns nil when redis is off.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	rc, err := cache.NewRedisCache(ctx,
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.MinIdleConns, cfg.Redis.PoolTimeout),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideCache picks redis when connected and the in-process cache otherwise.
func ProvideCache(rc *cache.RedisCache) cache.Service {
	if rc != nil {
		return rc
	}
	return cache.NewMemoryCache(cache.WithMemoryCleanup(time.Minute))
}

func ProvideStateStore(c cache.Service, cfg *config.Config) drepo.StateStore {
	return internalrepo.NewCacheStateStore(c, cfg.Redis.TTL)
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithAddress(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithPool(cfg.ClickHouse.MaxOpenConns, cfg.ClickHouse.MaxIdleConns, 0),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	if err := client.InitSchema(ctx, []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", cfg.ClickHouse.Database),
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideCandleArchive exposes the ClickHouse candle table, or nil.
func ProvideCandleArchive(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) (*internalrepo.CHCandleStore, error) {
	if ch == nil {
		return nil, nil
	}
	return internalrepo.NewCHCandleStore(ch, cfg.ClickHouse.Database+"."+cfg.ClickHouse.CandleTable, l)
}

// ProvideJournalQueue creates the redis outbox in front of the journal.
func ProvideJournalQueue(cfg *config.Config, rc *cache.RedisCache, l *applogger.Logger) *queue.RedisQueue {
	if !cfg.JournalQueue.Enabled || rc == nil {
		return nil
	}
	return queue.NewRedisQueue(l, queue.Config{
		Workers:    cfg.JournalQueue.Workers,
		RetryLimit: cfg.JournalQueue.RetryLimit,
		RetryDelay: cfg.JournalQueue.RetryDelay,
	}, rc.Client(), queue.WithKeyPrefix(cfg.Redis.Prefix+":journal"))
}

// ProvideTradeJournal returns the ClickHouse journal, behind the outbox when
// one is configured. Nil when ClickHouse is off.
func ProvideTradeJournal(cfg *config.Config, ch *pkgch.Client, q *queue.RedisQueue) (drepo.TradeJournal, error) {
	if ch == nil {
		return nil, nil
	}
	j, err := internalrepo.NewClickHouseJournal(ch, cfg.ClickHouse.Database+"."+cfg.ClickHouse.TradeTable)
	if err != nil {
		return nil, fmt.Errorf("trade journal: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := ch.InitSchema(ctx, j.Schema()); err != nil {
		return nil, fmt.Errorf("trade journal schema: %w", err)
	}
	if q == nil {
		return j, nil
	}
	q.RegisterJob(internalrepo.NewJournalJob(j))
	return internalrepo.NewQueuedJournal(q, j), nil
}

func ProvideEventPublisher(cfg *config.Config, producer *pkgkafka.Producer) drepo.EventPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.Topics.Ticks, cfg.Kafka.Topics.Trades)
}

func ProvideBroker(cfg *config.Config) drepo.Broker {
	if cfg.Broker.Type == "alpaca" {
		return broker.NewAlpaca(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL, cfg.Alpaca.Feed)
	}
	return broker.NewPaper(cfg.Broker.Slippage)
}

// ProvideFinnhubStream returns the websocket trade stream when it is one of
// the configured sources.
func ProvideFinnhubStream(cfg *config.Config, l *applogger.Logger) *finnhub.StreamSource {
	if !hasSource(cfg, "finnhub_stream") {
		return nil
	}
	return finnhub.NewStreamSource(
		cfg.Finnhub.APIKey,
		cfg.Finnhub.WebSocketURL,
		cfg.Engine.Symbols,
		cfg.Finnhub.ReconnectDelay,
		cfg.Finnhub.PingInterval,
		l,
	)
}

// ProvideQuoteSources builds the fallback chain in configured order, each
// source behind a guard.
func ProvideQuoteSources(
	cfg *config.Config,
	b drepo.Broker,
	stream *finnhub.StreamSource,
	archive *internalrepo.CHCandleStore,
	m *metrics.Recorder,
) ([]drepo.QuoteSource, error) {
	opts := []mid.GuardOption{
		mid.WithTimeout(cfg.SourceGuard.Timeout),
		mid.WithMinInterval(cfg.SourceGuard.MinInterval),
		mid.WithBackoff(cfg.SourceGuard.BackoffMin, cfg.SourceGuard.BackoffMax),
	}

	sources := make([]drepo.QuoteSource, 0, len(cfg.Sources))
	for _, name := range cfg.Sources {
		var src drepo.QuoteSource
		switch name {
		case "broker":
			src = b
		case "yahoo":
			src = quotes.NewYahooSource(cfg.Yahoo.Suffix)
		case "finnhub":
			src = finnhub.NewRESTSource(cfg.Finnhub.RESTURL, cfg.Finnhub.APIKey, cfg.Finnhub.Timeout)
		case "finnhub_stream":
			if stream == nil {
				return nil, fmt.Errorf("source finnhub_stream: stream not configured")
			}
			src = stream
		case "clickhouse":
			if archive == nil {
				return nil, fmt.Errorf("source clickhouse: clickhouse disabled")
			}
			src = archive
		default:
			return nil, fmt.Errorf("unknown quote source %q", name)
		}
		sources = append(sources, mid.NewSourceGuard(src, m, opts...))
	}
	return sources, nil
}

func ProvideTTLCache() *icache.TTLCache {
	return icache.NewTTLCache()
}

// ProvideAdvisor returns the rate limited, cached HTTP advisor, or nil.
func ProvideAdvisor(cfg *config.Config, store *icache.TTLCache) domsvc.Advisor {
	if !cfg.Advisory.Enabled {
		return nil
	}
	a := cfg.Advisory
	next := advisory.NewHTTPAdvisor(a.URL, a.Token, a.Timeout, a.Attempts, a.MaxBars)
	return advisory.NewGuarded(next, ratelimit.New(), store, a.CacheTTL, a.RateCapacity, a.RateRefill)
}

func ProvideSession(cfg *config.Config) (*market.Session, error) {
	s, err := market.NewSession(cfg.Session.Timezone, cfg.Session.Open, cfg.Session.SquareOff, cfg.Session.Close)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	return s, nil
}

// ProvideEngineConfig maps the file config onto the service configs. Periods
// and other knobs not exposed in the file keep their package defaults.
func ProvideEngineConfig(cfg *config.Config, session *market.Session) usecase.EngineConfig {
	q := quality.DefaultConfig()
	q.MinFirstHourATR = cfg.Quality.MinFirstHourATR
	q.MinSlope = cfg.Quality.MinSlope
	q.MinScore = cfg.Quality.MinScore
	q.FirstHour = cfg.Regime.FirstHour
	q.Weights = quality.Weights{
		Trend:    cfg.Quality.Weights.Trend,
		Pullback: cfg.Quality.Weights.Pullback,
		Volume:   cfg.Quality.Weights.Volume,
	}

	sm := statemachine.DefaultConfig()
	sm.MaxConcurrentPositions = cfg.Risk.MaxConcurrentPositions
	sm.MaxDailyLosses = cfg.StateMachine.MaxDailyLosses
	sm.LockDuration = cfg.StateMachine.LockDuration
	sm.LossRequiresStopReason = cfg.StateMachine.LossRequiresStopReason

	return usecase.EngineConfig{
		Symbols:     cfg.Engine.Symbols,
		HistorySize: cfg.Engine.HistorySize,
		StateKey:    cfg.Engine.StateKey,
		RegimeKey:   cfg.Engine.RegimeKey,

		Capital:            cfg.Risk.Capital,
		KillSwitchDrawdown: cfg.Risk.KillSwitchDrawdown,
		MaxTradesPerDay:    cfg.Risk.MaxTradesPerDay,
		AdaptiveADX:        cfg.Quality.AdaptiveADX,

		Session: session,
		Metrics: market.MetricsConfig{
			BaseSessions:   cfg.Regime.BaseSessions,
			ShiftThreshold: cfg.Regime.ShiftThreshold,
			FirstHour:      cfg.Regime.FirstHour,
		},
		Regime:  regime.Config{ThresholdA: cfg.Regime.ThresholdA, ThresholdB: cfg.Regime.ThresholdB},
		Quality: q,
		Risk: risk.Config{
			MaxRiskPerTrade:        cfg.Risk.MaxRiskPerTrade,
			MaxDailyDrawdown:       cfg.Risk.MaxDailyDrawdown,
			MaxDailyLoss:           cfg.Risk.MaxDailyLoss,
			MaxConcurrentPositions: cfg.Risk.MaxConcurrentPositions,
			MaxSectorPositions:     cfg.Risk.MaxSectorPositions,
			MaxSymbolExposure:      cfg.Risk.MaxSymbolExposure,
			Sectors:                cfg.Risk.Sectors,
		},
		StateMachine: sm,
		Trailing:     exits.Config{ActivationATR: cfg.Trailing.ActivationATR, DistanceATR: cfg.Trailing.DistanceATR},
		Costs: exits.CostModel{
			BrokeragePerSide: cfg.Costs.BrokeragePerSide,
			STT:              cfg.Costs.STT,
			Slippage:         cfg.Costs.Slippage,
		},
		Strategy: strategy.DefaultConfig(),
		Advice: advisory.Policy{
			MinConfidence:  cfg.Advisory.MinConfidence,
			SkipConfidence: cfg.Advisory.SkipConfidence,
		},
	}
}

// ProvideEngine assembles the engine; optional collaborators are attached
// only when configured.
func ProvideEngine(
	ecfg usecase.EngineConfig,
	sources []drepo.QuoteSource,
	b drepo.Broker,
	store drepo.StateStore,
	advisor domsvc.Advisor,
	publisher drepo.EventPublisher,
	journal drepo.TradeJournal,
	archive *internalrepo.CHCandleStore,
	m *metrics.Recorder,
	l *applogger.Logger,
) (*usecase.Engine, error) {
	opts := []usecase.Option{usecase.WithMetrics(m), usecase.WithLogger(l)}
	if advisor != nil {
		opts = append(opts, usecase.WithAdvisor(advisor))
	}
	if publisher != nil {
		opts = append(opts, usecase.WithPublisher(publisher))
	}
	if journal != nil {
		opts = append(opts, usecase.WithJournal(journal))
	}
	if archive != nil {
		opts = append(opts, usecase.WithCandleStore(archive))
	}
	return usecase.NewEngine(ecfg, sources, b, store, opts...)
}

func ProvideCandlesUseCase(engine *usecase.Engine, archive *internalrepo.CHCandleStore) *usecase.CandlesUseCase {
	if archive == nil {
		return usecase.NewCandlesUseCase(engine, nil)
	}
	return usecase.NewCandlesUseCase(engine, archive)
}

func ProvideSignalsUseCase(ecfg usecase.EngineConfig, engine *usecase.Engine, advisor domsvc.Advisor) *usecase.SignalsAggregateUseCase {
	agg := usecase.NewSignalAggregator(engine, engine, advisor, usecase.AggregatorConfig{
		Quality:     ecfg.Quality,
		Strategy:    ecfg.Strategy,
		Advice:      ecfg.Advice,
		Metrics:     ecfg.Metrics,
		AdaptiveADX: ecfg.AdaptiveADX,
	})
	return usecase.NewSignalsAggregateUseCase(agg)
}

func ProvideSignalsHandler(uc *usecase.SignalsAggregateUseCase, store *icache.TTLCache, l *applogger.Logger) *api.SignalsHandler {
	h := api.NewSignalsHandler(uc, ratelimit.New())
	h.SetCache(store)
	h.SetLogger(l)
	return h
}

func ProvideEngineHandler(l *applogger.Logger, engine *usecase.Engine, candles *usecase.CandlesUseCase, signals *api.SignalsHandler) *api.EngineHandler {
	return api.NewEngineHandler(l, engine, candles, signals)
}

// ProvideJournalHandler serves the journal queue health, or nil without a queue.
func ProvideJournalHandler(q *queue.RedisQueue, l *applogger.Logger) *api.JournalHandler {
	if q == nil {
		return nil
	}
	return api.NewJournalHandler(l, q)
}

func ProvideHTTPServer(cfg *config.Config, h *api.EngineHandler, jh *api.JournalHandler, l *applogger.Logger) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	handlers := xhttp.Handlers{h}
	if jh != nil {
		handlers = append(handlers, jh)
	}
	opts := []xhttp.ServerOption{
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithBasePath(cfg.Server.BasePath),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithSlowThreshold(cfg.Server.SlowThreshold),
		xhttp.WithLogger(l),
	}
	if cfg.Server.CORS {
		opts = append(opts, xhttp.WithCORS(cfg.Server.CORSMaxAge, cfg.Server.CORSOrigins...))
	}
	return xhttp.NewServer(handlers, opts...)
}

// ProvideKafkaConsumer creates the control-topic consumer, or nil.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	k := cfg.Kafka.Consumer
	c, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(k.GroupID),
		pkgkafka.WithConsumerWorkers(k.Workers),
		pkgkafka.WithConsumerRetry(k.RetryMax, k.BackoffMin, k.BackoffMax),
		pkgkafka.WithConsumerDLQ(k.DLQTopic),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return c, nil
}

func ProvideControlHandler(cfg *config.Config, engine *usecase.Engine, m *metrics.Recorder, l *applogger.Logger) *usecase.KafkaControlHandler {
	return usecase.NewKafkaControlHandler(cfg.Kafka.Topics.Control, engine, m, l)
}

func ProvideStreamCollector(stream *finnhub.StreamSource, m *metrics.Recorder, l *applogger.Logger) *usecase.StreamCollector {
	if stream == nil {
		return nil
	}
	return usecase.NewStreamCollector(stream, m, l)
}

// ProvideApp creates the application with all dependencies.
func ProvideApp(
	cfg *config.Config,
	engine *usecase.Engine,
	l *applogger.Logger,
	c cache.Service,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	control *usecase.KafkaControlHandler,
	collector *usecase.StreamCollector,
	q *queue.RedisQueue,
	store *icache.TTLCache,
	publisher drepo.EventPublisher,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
) *server.App {
	opts := []server.Option{
		server.WithHTTPServer(httpServer),
		server.WithAfterTick(func() { store.Purge() }),
		server.WithCloser("cache", c.Close),
	}
	if cfg.Redis.Enabled {
		opts = append(opts, server.WithLock(c))
	}
	if collector != nil {
		opts = append(opts, server.WithService("finnhub_stream", collector))
	}
	if q != nil {
		opts = append(opts, server.WithService("journal_queue", q))
	}
	if consumer != nil {
		opts = append(opts, server.WithConsumer(consumer, control))
	}
	if ch != nil {
		opts = append(opts, server.WithCloser("clickhouse", ch.Close))
	}
	switch {
	case publisher != nil:
		opts = append(opts, server.WithCloser("kafka", publisher.Close))
	case producer != nil:
		opts = append(opts, server.WithCloser("kafka", producer.Close))
	}
	if producer != nil {
		// closers run in reverse: flush collected logs before the producer goes
		opts = append(opts, server.WithCloser("log_collector", func() error {
			l.RemoveCollector()
			return nil
		}))
	}
	return server.New(cfg, engine, l, opts...)
}

func hasSource(cfg *config.Config, name string) bool {
	for _, s := range cfg.Sources {
		if s == name {
			return true
		}
	}
	return false
}
