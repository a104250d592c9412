package plugins

import (
	"github.com/joshp123/gohass/internal/blob"
	"github.com/joshp123/gohass/internal/config"
	"github.com/joshp123/gohass/internal/core"
	"go.uber.org/zap"
)

// Deps carries shared infrastructure into plugin constructors.
type Deps struct {
	Logger *zap.Logger
	// Blob mirrors plugin state off-box. Nil when no blob section is configured.
	Blob blob.Store
}

// Factory builds a plugin instance from the loaded config. It reports false
// when the plugin's section is absent.
type Factory func(*config.Config, Deps) (core.Plugin, bool)

var compiled []Factory

// Register adds a compiled-in plugin factory to the registry.
func Register(factory Factory) {
	compiled = append(compiled, factory)
}

// Compiled returns the configured plugin instances for this build.
func Compiled(cfg *config.Config, deps Deps) []core.Plugin {
	if cfg == nil {
		return nil
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	out := make([]core.Plugin, 0, len(compiled))
	for _, factory := range compiled {
		plugin, ok := factory(cfg, deps)
		if !ok {
			continue
		}
		out = append(out, plugin)
	}
	return out
}
