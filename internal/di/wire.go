//go:build wireinject
// +build wireinject

package di

import (
	"github.com/RusaUB/finorax/pkg/config"
	"github.com/RusaUB/finorax/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideRedisClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideObservationStore,
		ProvidePriceBackend,
		ProvidePriceSeries,
		ProvideLeaderboardStore,
		ProvideLocker,
		ProvideBoardCache,
		ProvidePublisher,

		// Use cases
		ProvideRoundManager,
		ProvideObservationIntake,
		ProvideScoringEngine,
		ProvideRankingAggregator,
		ProvideRoundScheduler,
		ProvideObservationsHandler,

		// Edges
		ProvidePriceFeed,
		ProvideRoundsHandler,

		// Application
		ProvideApp,
	)
	return &server.App{}, nil
}
