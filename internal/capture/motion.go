package capture

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// MotionGate reports whether a frame's luma plane differs enough from the
// previous one to be worth running tag detection on.
type MotionGate struct {
	threshold   float64
	prevGray    gocv.Mat
	width       int
	height      int
	initialized bool
	mu          sync.Mutex
}

// Motion detection constants
const (
	// GaussianBlurSize is the kernel size for Gaussian blur (21x21)
	GaussianBlurSize = 21
	// DiffThreshold is the binary threshold for difference detection
	DiffThreshold = 25
)

// NewMotionGate creates a gate that opens when more than threshold percent
// of the pixels change between frames.
func NewMotionGate(threshold float64) *MotionGate {
	return &MotionGate{
		threshold: threshold,
		prevGray:  gocv.NewMat(),
	}
}

// Changed compares f with the previously seen frame. The first frame, and
// any frame whose size differs from the previous one, always counts as
// changed. It returns the percentage of changed pixels.
func (m *MotionGate) Changed(f *Frame) (bool, float64, error) {
	luma, err := f.Luma()
	if err != nil {
		return false, 0, err
	}

	gray, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8U, luma)
	if err != nil {
		return false, 0, fmt.Errorf("wrap luma plane: %w", err)
	}
	defer gray.Close()

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: GaussianBlurSize, Y: GaussianBlurSize}, 0, 0, gocv.BorderDefault)

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized || m.width != f.Width || m.height != f.Height {
		blurred.CopyTo(&m.prevGray)
		m.width, m.height = f.Width, f.Height
		m.initialized = true
		return true, 100, nil
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, m.prevGray, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, DiffThreshold, 255, gocv.ThresholdBinary)

	nonZero := gocv.CountNonZero(thresh)
	changePercent := float64(nonZero) / float64(thresh.Rows()*thresh.Cols()) * 100.0

	blurred.CopyTo(&m.prevGray)

	return changePercent > m.threshold, changePercent, nil
}

// Reset forgets the previous frame.
func (m *MotionGate) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.prevGray.Empty() {
		m.prevGray.Close()
		m.prevGray = gocv.NewMat()
	}
	m.initialized = false
}

// Close releases resources used by the gate.
func (m *MotionGate) Close() {
	m.Reset()
}

// SetThreshold sets the change percentage. Values less than or equal to 0
// are ignored.
func (m *MotionGate) SetThreshold(threshold float64) {
	if threshold <= 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.threshold = threshold
}
