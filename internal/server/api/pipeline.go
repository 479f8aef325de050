package api

import (
	"encoding/json"
	"net/http"

	"github.com/ayusman/tagsight/internal/app"
)

// PipelineHandler exposes the capture pipeline state and counters.
type PipelineHandler struct {
	app *app.App
}

// NewPipelineHandler creates a PipelineHandler for the given app.
func NewPipelineHandler(a *app.App) *PipelineHandler {
	return &PipelineHandler{app: a}
}

type pipelineRequest struct {
	Enabled *bool `json:"enabled"`
}

type pipelineResponse struct {
	Enabled bool        `json:"enabled"`
	Running bool        `json:"running"`
	Last    *app.Result `json:"last,omitempty"`
}

// ServeHTTP handles GET and PUT /api/pipeline.
func (h *PipelineHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.response())
	case http.MethodPut:
		var req pipelineRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		if req.Enabled == nil {
			writeError(w, http.StatusBadRequest, "enabled is required")
			return
		}
		h.app.SetEnabled(*req.Enabled)
		writeJSON(w, http.StatusOK, h.response())
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *PipelineHandler) response() pipelineResponse {
	resp := pipelineResponse{
		Enabled: h.app.IsEnabled(),
		Running: h.app.IsRunning(),
	}
	if last, ok := h.app.LastResult(); ok {
		resp.Last = &last
	}
	return resp
}

// StatsHandler serves the pipeline counters.
type StatsHandler struct {
	app *app.App
}

// NewStatsHandler creates a StatsHandler for the given app.
func NewStatsHandler(a *app.App) *StatsHandler {
	return &StatsHandler{app: a}
}

// ServeHTTP handles GET /api/stats.
func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.app.Stats())
}
