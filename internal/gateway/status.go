package gateway

import (
	"net/http"
	"time"

	"github.com/flemzord/toolgate/internal/provider"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime           int64             `json:"uptime_seconds"`
	Metrics          MetricsSnapshot   `json:"metrics"`
	Tools            int               `json:"tools"`
	EnabledTools     int               `json:"enabled_tools"`
	PendingApprovals int               `json:"pending_approvals"`
	Providers        []provider.Status `json:"providers,omitempty"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			Uptime:  int64(time.Since(g.startedAt) / time.Second),
			Metrics: g.metrics.Snapshot(),
		}
		for _, d := range g.registry.Definitions() {
			resp.Tools++
			if g.registry.IsToolEnabled(d.Name) {
				resp.EnabledTools++
			}
		}
		if g.approvals != nil {
			resp.PendingApprovals = g.approvals.Len()
		}
		if g.providers != nil {
			resp.Providers = g.providers.Status()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
