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

// DashboardsMap materializes dashboard content to URL paths.
func DashboardsMap(plugins []Plugin) map[string][]byte {
	result := make(map[string][]byte)
	for _, plugin := range plugins {
		manifest := plugin.Manifest()
		for _, dash := range plugin.Dashboards() {
			result[DashboardPath(manifest.PluginID, dash.Name)] = dash.JSON
		}
	}
	return result
}

// WriteDashboards writes dashboards to disk for Grafana provisioning and
// returns how many were written.
func WriteDashboards(dir string, plugins []Plugin) (int, error) {
	if dir == "" {
		return 0, nil
	}

	written := 0
	for _, plugin := range plugins {
		manifest := plugin.Manifest()
		pluginDir := filepath.Join(dir, manifest.PluginID)
		for _, dash := range plugin.Dashboards() {
			if err := os.MkdirAll(pluginDir, 0o755); err != nil {
				return written, fmt.Errorf("create dashboard dir: %w", err)
			}
			path := filepath.Join(pluginDir, dash.Name+".json")
			if err := os.WriteFile(path, dash.JSON, 0o644); err != nil {
				return written, fmt.Errorf("write dashboard %s: %w", path, err)
			}
			written++
		}
	}

	return written, nil
}
