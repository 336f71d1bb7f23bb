//go:build wireinject
// +build wireinject

package di

import (
	"TickPilot/pkg/config"
	"TickPilot/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,
		ProvideRedisCache,
		ProvideCache,
		ProvideClickHouseClient,

		// Repositories
		ProvideStateStore,
		ProvideCandleArchive,
		ProvideJournalQueue,
		ProvideTradeJournal,
		ProvideEventPublisher,

		// Market access
		ProvideBroker,
		ProvideFinnhubStream,
		ProvideQuoteSources,
		ProvideTTLCache,
		ProvideAdvisor,

		// Engine and use cases
		ProvideSession,
		ProvideEngineConfig,
		ProvideEngine,
		ProvideCandlesUseCase,
		ProvideSignalsUseCase,
		ProvideControlHandler,
		ProvideStreamCollector,

		// Transport
		ProvideSignalsHandler,
		ProvideEngineHandler,
		ProvideJournalHandler,
		ProvideHTTPServer,
		ProvideKafkaConsumer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
