package server

import (
	"net/http"
	"slices"
	"strings"
)

// DashboardsHandler serves Grafana dashboard JSON keyed by path. The bare
// /dashboards/ path lists what is available.
func DashboardsHandler(dashboards map[string][]byte) http.Handler {
	paths := make([]string, 0, len(dashboards))
	for path := range dashboards {
		paths = append(paths, path)
	}
	slices.Sort(paths)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimSuffix(r.URL.Path, "/") == "/dashboards" {
			writeJSON(w, http.StatusOK, map[string][]string{"dashboards": paths})
			return
		}
		data, ok := dashboards[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(data)
	})
}
