//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"
)

// BuildApp wires the server from configuration.
func BuildApp(ctx context.Context) (*App, func(), error) {
	wire.Build(
		provideConfig,
		provideLogger,
		provideHub,
		provideBoards,
		provideAnalytics,
		provideStorage,
		provideCatalog,
		provideCalculator,
		provideService,
		provideHandler,
		provideServer,
		provideMetricsServer,
		wire.Struct(new(App), "*"),
	)
	return nil, nil, nil
}
