package gateway

import (
	"net/http"

	"github.com/flemzord/toolgate/internal/provider"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status    string            `json:"status"` // "ok" or "degraded"
	Providers []provider.Status `json:"providers,omitempty"`
}

// handleHealth returns an http.HandlerFunc for GET /health.
// Returns 200 if every provider is available, 503 if any is cooling down.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{Status: "ok"}
		if g.providers != nil {
			resp.Providers = g.providers.Status()
			for _, p := range resp.Providers {
				if !p.Available {
					resp.Status = "degraded"
					break
				}
			}
		}

		code := http.StatusOK
		if resp.Status == "degraded" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}
