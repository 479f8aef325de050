// Package api provides HTTP API handlers for tag detection.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ayusman/tagsight/internal/detector"
	"github.com/ayusman/tagsight/internal/yuv"
)

// maxFrameBytes bounds request bodies carrying raw frames.
const maxFrameBytes = 64 << 20

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes data as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// statusFor maps detection and conversion errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, yuv.ErrInvalidInput), errors.Is(err, detector.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, detector.ErrLibrary):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// parseDims reads the width and height query parameters.
func parseDims(r *http.Request) (int, int, error) {
	q := r.URL.Query()
	width, err := strconv.Atoi(q.Get("width"))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid width %q", q.Get("width"))
	}
	height, err := strconv.Atoi(q.Get("height"))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid height %q", q.Get("height"))
	}
	return width, height, nil
}
