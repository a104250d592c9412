//go:build !gohass_exclude_webostv

package plugins

import (
	"github.com/joshp123/gohass/internal/config"
	"github.com/joshp123/gohass/internal/core"
	"github.com/joshp123/gohass/plugins/webostv"
)

func init() {
	Register(func(cfg *config.Config, deps Deps) (core.Plugin, bool) {
		if cfg.WebOSTV == nil {
			return nil, false
		}
		return webostv.NewPlugin(cfg.WebOSTV, deps.Logger, deps.Blob), true
	})
}
