package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ayusman/tagsight/internal/store"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 1000
)

// DetectionsHandler serves the detection log.
type DetectionsHandler struct {
	store *store.Store
}

// NewDetectionsHandler creates a DetectionsHandler with the given store.
func NewDetectionsHandler(s *store.Store) *DetectionsHandler {
	return &DetectionsHandler{store: s}
}

type recentResponse struct {
	Detections []store.StoredDetection `json:"detections"`
}

type countsResponse struct {
	Counts map[int]int `json:"counts"`
}

// ServeHTTP routes /api/detections/recent and /api/detections/counts.
func (h *DetectionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch strings.TrimPrefix(r.URL.Path, "/api/detections/") {
	case "recent":
		h.recent(w, r)
	case "counts":
		h.counts(w, r)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

// recent handles GET /api/detections/recent?limit=N.
func (h *DetectionsHandler) recent(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = min(n, maxRecentLimit)
	}

	detections, err := h.store.Detections().ListRecent(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list detections")
		return
	}

	writeJSON(w, http.StatusOK, recentResponse{Detections: detections})
}

// counts handles GET /api/detections/counts.
func (h *DetectionsHandler) counts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.Detections().CountByTag()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count detections")
		return
	}

	writeJSON(w, http.StatusOK, countsResponse{Counts: counts})
}
