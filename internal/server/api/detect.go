package api

import (
	"bytes"
	"image/png"
	"io"
	"net/http"
	"time"

	"github.com/ayusman/tagsight/internal/detector"
	"github.com/ayusman/tagsight/internal/yuv"
)

// DetectHandler runs tag detection on a raw frame posted by the client.
type DetectHandler struct {
	detector detector.Detector
}

// NewDetectHandler creates a DetectHandler.
func NewDetectHandler(d detector.Detector) *DetectHandler {
	return &DetectHandler{detector: d}
}

type detectResponse struct {
	Width      int               `json:"width"`
	Height     int               `json:"height"`
	Detections []detector.Record `json:"detections"`
	ElapsedMs  float64           `json:"elapsed_ms"`
}

// ServeHTTP handles POST /api/detect?width=W&height=H. The body is a
// row-major grayscale image, or an NV21 frame whose luma plane comes first.
func (h *DetectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	width, height, err := parseDims(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFrameBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "Frame too large")
		return
	}

	start := time.Now()
	records, err := h.detector.Detect(body, width, height)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, detectResponse{
		Width:      width,
		Height:     height,
		Detections: records,
		ElapsedMs:  float64(time.Since(start).Microseconds()) / 1000,
	})
}

// ConvertHandler converts an NV21 frame into a rotated PNG.
type ConvertHandler struct {
	workers int
}

// NewConvertHandler creates a ConvertHandler using workers bands per frame.
func NewConvertHandler(workers int) *ConvertHandler {
	return &ConvertHandler{workers: workers}
}

// ServeHTTP handles POST /api/convert?width=W&height=H.
func (h *ConvertHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	width, height, err := parseDims(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFrameBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "Frame too large")
		return
	}

	if width <= 0 || height <= 0 || width%2 != 0 || height%2 != 0 {
		writeError(w, http.StatusBadRequest, "width and height must be positive and even")
		return
	}
	img := yuv.NewImage(width, height)
	if err := yuv.ConvertRows(body, width, height, img, h.workers); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img.NRGBA()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encode image")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
