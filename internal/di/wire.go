//go:build wireinject
// +build wireinject

package di

import (
	"FinSignal/pkg/config"
	"FinSignal/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideFinnhubClient,
		ProvideKafkaProducer,
		ProvideSharedCache,

		// Repositories
		ProvideMarketDataFeed,
		ProvideNewsFeed,
		ProvideSignalStore,
		ProvideSignalPublisher,

		// Use cases
		ProvideGenerators,
		ProvideSignalAggregator,
		ProvideSignalService,
		ProvideSignalScheduler,

		// Transport and application server
		ProvideSignalsHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return &server.App{}, nil
}
