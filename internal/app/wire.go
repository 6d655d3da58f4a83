//go:build wireinject
// +build wireinject

package app

import (
	"github.com/google/wire"

	"github.com/tradelane/payhook/internal/shared/config"
)

// InitializeDependencies creates all dependencies using Wire.
func InitializeDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	wire.Build(
		InfraSet,
		WebhookSet,
		wire.Struct(new(Dependencies), "*"),
	)
	return nil, nil, nil
}
