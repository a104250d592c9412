//go:build !gohass_exclude_clausius

package plugins

import (
	"github.com/joshp123/gohass/internal/config"
	"github.com/joshp123/gohass/internal/core"
	"github.com/joshp123/gohass/plugins/clausius"
)

func init() {
	Register(func(cfg *config.Config, deps Deps) (core.Plugin, bool) {
		if cfg.Clausius == nil {
			return nil, false
		}
		return clausius.NewPlugin(cfg.Clausius, deps.Logger), true
	})
}
