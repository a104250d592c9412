package core

import (
	"context"

	"go.uber.org/zap"
)

// LoadPlatforms calls every platform setup of every healthy plugin. A failing
// setup is logged and counted; the remaining platforms still load.
func LoadPlatforms(ctx context.Context, plugins []Plugin, registry *EntityRegistry, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, p := range plugins {
		provider, ok := p.(PlatformProvider)
		if !ok {
			continue
		}
		if p.Health() == HealthError {
			logger.Warn("skipping platforms of unhealthy plugin",
				zap.String("plugin", p.ID()),
				zap.String("reason", p.HealthMessage()))
			continue
		}
		for _, setup := range provider.Platforms() {
			if err := setup.Setup(ctx, registry.AddFunc(p.ID(), setup.Platform)); err != nil {
				platformSetupErrors.WithLabelValues(p.ID(), string(setup.Platform)).Inc()
				logger.Error("platform setup failed",
					zap.String("plugin", p.ID()),
					zap.String("platform", string(setup.Platform)),
					zap.Error(err))
				continue
			}
			logger.Debug("platform loaded", zap.String("plugin", p.ID()), zap.String("platform", string(setup.Platform)))
		}
	}
}
