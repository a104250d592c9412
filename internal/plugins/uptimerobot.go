//go:build !gohass_exclude_uptimerobot

package plugins

import (
	"github.com/joshp123/gohass/internal/config"
	"github.com/joshp123/gohass/internal/core"
	"github.com/joshp123/gohass/plugins/uptimerobot"
)

func init() {
	Register(func(cfg *config.Config, deps Deps) (core.Plugin, bool) {
		if cfg.UptimeRobot == nil {
			return nil, false
		}
		return uptimerobot.NewPlugin(cfg.UptimeRobot, deps.Logger), true
	})
}
