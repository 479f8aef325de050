package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/ayusman/tagsight/internal/apriltag"
	"github.com/ayusman/tagsight/internal/detector"
	"github.com/ayusman/tagsight/internal/store"
)

// ConfigHandler reads and changes the detector configuration.
type ConfigHandler struct {
	detector detector.Detector
	store    *store.Store
}

// NewConfigHandler creates a ConfigHandler. s may be nil, in which case
// changes are not persisted.
func NewConfigHandler(d detector.Detector, s *store.Store) *ConfigHandler {
	return &ConfigHandler{detector: d, store: s}
}

type configRequest struct {
	Family     string  `json:"family"`
	ErrorBits  int     `json:"error_bits"`
	Decimation float64 `json:"decimation"`
	Sigma      float64 `json:"sigma"`
	Threads    int     `json:"threads"`
}

type configResponse struct {
	Configured bool     `json:"configured"`
	Family     string   `json:"family,omitempty"`
	ErrorBits  int      `json:"error_bits"`
	Decimation float64  `json:"decimation"`
	Sigma      float64  `json:"sigma"`
	Threads    int      `json:"threads"`
	Families   []string `json:"families"`
}

// ServeHTTP implements the http.Handler interface.
func (h *ConfigHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.get(w, r)
	case http.MethodPut:
		h.update(w, r)
	case http.MethodDelete:
		h.teardown(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ConfigHandler) response() configResponse {
	resp := configResponse{Families: []string{}}
	for _, f := range apriltag.Families() {
		resp.Families = append(resp.Families, f.String())
	}

	p, ok := h.detector.Params()
	if !ok {
		return resp
	}
	resp.Configured = true
	resp.Family = p.Family.String()
	resp.ErrorBits = p.ErrorBits
	resp.Decimation = p.Decimation
	resp.Sigma = p.Sigma
	resp.Threads = p.Threads
	return resp
}

// get handles GET /api/config.
func (h *ConfigHandler) get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.response())
}

// update handles PUT /api/config. Omitted fields take their default values.
func (h *ConfigHandler) update(w http.ResponseWriter, r *http.Request) {
	defaults := detector.DefaultParams()
	req := configRequest{
		Family:     defaults.Family.String(),
		ErrorBits:  defaults.ErrorBits,
		Decimation: defaults.Decimation,
		Sigma:      defaults.Sigma,
		Threads:    defaults.Threads,
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	p, err := detector.ParseParams(req.Family, req.ErrorBits, req.Decimation, req.Sigma, req.Threads)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.detector.Configure(p); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	if h.store != nil {
		if err := h.store.Settings().SaveDetector(p); err != nil {
			log.Printf("Failed to save detector settings: %v", err)
		}
	}

	writeJSON(w, http.StatusOK, h.response())
}

// teardown handles DELETE /api/config.
func (h *ConfigHandler) teardown(w http.ResponseWriter, r *http.Request) {
	h.detector.Teardown()

	if h.store != nil {
		if err := h.store.Settings().Reset(); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to reset detector settings")
			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}
