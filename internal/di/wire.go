//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"ConfluenceCal/pkg/config"
	"ConfluenceCal/pkg/server"
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
		ProvideCache,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Calibration core
		ProvideScorer,
		ProvideOptimizerConfig,
		ProvideSettings,
		ProvideCalibrationUseCase,
		ProvideCalibrator,

		// Delivery
		ProvideRequestsHandler,
		ProvideScheduler,
		ProvideHTTPHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
