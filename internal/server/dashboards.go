package server

import (
	"net/http"
	"sort"
)

// DashboardsHandler serves dashboard JSON from an in-memory map. The bare
// /dashboards/ path lists the available dashboard paths.
func DashboardsHandler(dashboards map[string][]byte) http.Handler {
	index := make([]string, 0, len(dashboards))
	for path := range dashboards {
		index = append(index, path)
	}
	sort.Strings(index)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if r.URL.Path == "/dashboards/" {
			writeJSON(w, http.StatusOK, map[string][]string{"dashboards": index})
			return
		}
		if data, ok := dashboards[r.URL.Path]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(data)
			return
		}

		http.NotFound(w, r)
	})
}
