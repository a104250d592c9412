package core

import (
	"fmt"
	"os"
	"path/filepath"
)

// DashboardPath is the HTTP path a plugin dashboard is served under.
func DashboardPath(pluginID, name string) string {
	return "/dashboards/" + pluginID + "/" + name + ".json"
}

// DashboardsMap materializes dashboard content to URL paths. Plugins that
// failed to configure are left out.
func DashboardsMap(plugins []Plugin) map[string][]byte {
	result := make(map[string][]byte)
	for _, plugin := range plugins {
		if plugin.Health() == HealthError {
			continue
		}
		for _, dash := range plugin.Dashboards() {
			result[DashboardPath(plugin.ID(), dash.Name)] = dash.JSON
		}
	}
	return result
}

// WriteDashboards writes dashboards to dir/<plugin>/<name>.json for Grafana
// provisioning. Files are replaced by rename so Grafana never reads a
// partial dashboard.
func WriteDashboards(dir string, plugins []Plugin) error {
	if dir == "" {
		return nil
	}

	for _, plugin := range plugins {
		for _, dash := range plugin.Dashboards() {
			pluginDir := filepath.Join(dir, plugin.ID())
			if err := os.MkdirAll(pluginDir, 0o755); err != nil {
				return fmt.Errorf("create dashboard dir: %w", err)
			}
			path := filepath.Join(pluginDir, dash.Name+".json")
			tmp := path + ".tmp"
			if err := os.WriteFile(tmp, dash.JSON, 0o644); err != nil {
				return fmt.Errorf("write dashboard %s: %w", path, err)
			}
			if err := os.Rename(tmp, path); err != nil {
				return fmt.Errorf("replace dashboard %s: %w", path, err)
			}
		}
	}

	return nil
}
