package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/toolgate/internal/security"
	"github.com/flemzord/toolgate/internal/tool"
)

// ToolView is one entry of GET /api/tools.
type ToolView struct {
	tool.Definition
	Enabled    bool            `json:"enabled"`
	Permission tool.Permission `json:"permission"`
}

// ToolsResponse is the JSON response for GET /api/tools.
type ToolsResponse struct {
	Tools  []ToolView       `json:"tools"`
	Groups []tool.GroupInfo `json:"groups"`
}

func (g *Gateway) handleListTools() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		defs := g.registry.Definitions()
		resp := ToolsResponse{
			Tools:  make([]ToolView, 0, len(defs)),
			Groups: g.registry.Groups(),
		}
		for _, d := range defs {
			perm, err := g.registry.EffectivePermission(d.Name)
			if err != nil {
				// Unregistered between the two calls.
				continue
			}
			resp.Tools = append(resp.Tools, ToolView{
				Definition: d,
				Enabled:    g.registry.IsToolEnabled(d.Name),
				Permission: perm,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (g *Gateway) handleRules() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, g.registry.ToolRules())
	}
}

// handleExecute runs a tool with the request body as its arguments. The
// call goes through both approval checkpoints like any model call.
func (g *Gateway) handleExecute() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.limiter != nil {
			if err := g.limiter.Allow(security.KindRequest); err != nil {
				writeError(w, http.StatusTooManyRequests, err.Error())
				return
			}
		}

		maxBytes := g.config.Arguments.MaxBytes
		if maxBytes <= 0 {
			maxBytes = security.DefaultMaxArgumentBytes
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, int64(maxBytes)+1))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, security.ErrArgumentsTooLarge.Error())
				return
			}
			writeError(w, http.StatusBadRequest, "read body: "+err.Error())
			return
		}
		if err := g.config.Arguments.Check(body); err != nil {
			code := http.StatusBadRequest
			if errors.Is(err, security.ErrArgumentsTooLarge) {
				code = http.StatusRequestEntityTooLarge
			}
			writeError(w, code, err.Error())
			return
		}
		if len(bytes.TrimSpace(body)) == 0 {
			body = []byte(`{}`)
		}

		name := chi.URLParam(r, "name")
		res := g.registry.Execute(r.Context(), name, json.RawMessage(body), tool.ExecuteOptions{})

		code := http.StatusOK
		if res.Status == tool.StatusNotFound {
			code = http.StatusNotFound
		}
		writeJSON(w, code, res)
	}
}
