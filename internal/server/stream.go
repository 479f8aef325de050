package server

import (
	"fmt"
	"image"
	"image/color"
	"net/http"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/tagsight/internal/app"
	"github.com/ayusman/tagsight/internal/detector"
)

// streamInterval is the preview poll period, about 15 FPS.
const streamInterval = 66 * time.Millisecond

var (
	outlineColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	labelColor   = color.RGBA{R: 255, G: 0, B: 0, A: 255}
)

// StreamHandler serves the rotated preview as MJPEG with tag outlines.
type StreamHandler struct {
	app *app.App
}

// NewStreamHandler creates a new StreamHandler for the given app.
func NewStreamHandler(a *app.App) *StreamHandler {
	return &StreamHandler{app: a}
}

// ServeHTTP streams MJPEG frames to connected clients.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var lastSeq uint64
	for {
		select {
		case <-r.Context().Done():
			return
		default:
		}

		preview := h.app.LatestPreview()
		if preview.Image == nil || preview.Seq == lastSeq {
			time.Sleep(streamInterval)
			continue
		}
		lastSeq = preview.Seq

		buf, err := encodePreview(preview)
		if err != nil {
			continue
		}

		// Write MJPEG frame
		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(buf))
		if _, err := w.Write(buf); err != nil {
			return
		}
		fmt.Fprintf(w, "\r\n")

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}

		time.Sleep(streamInterval)
	}
}

// encodePreview draws the detections onto the preview and returns a JPEG.
func encodePreview(p app.Preview) ([]byte, error) {
	rgba, err := gocv.NewMatFromBytes(p.Image.Height, p.Image.Width, gocv.MatTypeCV8UC4, p.Image.Bytes())
	if err != nil {
		return nil, err
	}
	defer rgba.Close()

	bgr := gocv.NewMat()
	defer bgr.Close()
	if err := gocv.CvtColor(rgba, &bgr, gocv.ColorRGBAToBGR); err != nil {
		return nil, err
	}

	for _, rec := range p.Detections {
		drawRecord(&bgr, rec, p.FrameHeight)
	}

	buf, err := gocv.IMEncode(".jpg", bgr)
	if err != nil {
		return nil, err
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// drawRecord outlines one tag. Records are in camera coordinates; the
// preview is rotated 90° clockwise.
func drawRecord(mat *gocv.Mat, rec detector.Record, frameHeight int) {
	for k := 0; k < 4; k++ {
		x0, y0 := rec.Corner(k)
		x1, y1 := rec.Corner((k + 1) % 4)
		gocv.Line(mat, rotatePoint(x0, y0, frameHeight), rotatePoint(x1, y1, frameHeight), outlineColor, 2)
	}
	center := rotatePoint(rec.Center[0], rec.Center[1], frameHeight)
	gocv.PutText(mat, fmt.Sprintf("%d", rec.ID), center, gocv.FontHersheySimplex, 0.6, labelColor, 2)
}

func rotatePoint(x, y float64, frameHeight int) image.Point {
	return image.Pt(frameHeight-1-int(y+0.5), int(x+0.5))
}
