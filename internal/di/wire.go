//go:build wireinject
// +build wireinject

package di

import (
	"PriceOpt/pkg/config"
	"PriceOpt/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideRegistry,
		ProvideMetrics,

		// Infrastructure clients
		ProvideRedisCache,
		ProvideClickHouseClient,
		ProvideKafkaProducer,

		// Repositories
		ProvideModelStore,
		ProvideLocker,
		ProvideExperimentStore,
		ProvideHistoryStore,
		ProvideEventPublisher,

		// Competitor feed
		ProvideCompetitorBook,
		ProvideCompetitorStream,

		// Use cases
		ProvidePricingOrchestrator,

		// Background jobs
		ProvideJobQueue,

		// Transport
		ProvideResponseCache,
		ProvideRateLimiter,
		ProvidePricingHandler,
		ProvideHTTPServer,
		ProvideKafkaConsumer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
