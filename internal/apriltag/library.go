package apriltag

import (
	"errors"
	"sync"
)

// ErrUnsupportedFamily is returned by backends that cannot build a family.
var ErrUnsupportedFamily = errors.New("tag family not supported by backend")

// ErrReleased is returned when a released detection list is used.
var ErrReleased = errors.New("detection list already released")

// Library is the set of operations the detection library exposes. Handles
// returned by NewFamily and NewDetector are exclusively owned by the caller
// until passed back to the matching destroy call.
type Library interface {
	// Supports reports whether NewFamily can build the given family.
	Supports(f Family) bool

	NewFamily(f Family) (FamilyHandle, error)
	// DestroyFamily must be called with the same kind used to create h.
	DestroyFamily(h FamilyHandle, f Family)

	NewDetector() (Detector, error)
	DestroyDetector(d Detector)

	AttachFamily(d Detector, h FamilyHandle, errorBits int) error

	// Detect runs detection over img. The returned list stays valid until
	// its Release method is called. Callers never run Detect on one
	// detector from two goroutines at once.
	Detect(d Detector, img Gray) (*Detections, error)

	// Layout describes the shape of each detection entry.
	Layout() Layout
}

// FamilyHandle is an opaque family object owned by a backend.
type FamilyHandle interface {
	Family() Family
}

// Detector is an opaque detector object. Its numeric tuning fields are set
// directly.
type Detector interface {
	SetDecimation(factor float64)
	SetSigma(sigma float64)
	SetThreads(n int)
}

// Gray is a grayscale view over caller memory. No copy is made.
type Gray struct {
	Width  int
	Height int
	Stride int
	Buf    []byte
}

// Layout describes the per-detection field shape a backend produces.
type Layout struct {
	CenterLen   int
	CornerCount int
	CornerDims  int
}

// StandardLayout is the shape every shipped backend produces: a 2-value
// center and four (x, y) corners.
var StandardLayout = Layout{CenterLen: 2, CornerCount: 4, CornerDims: 2}

// Detection is one entry of a detection list. C and P may point into
// backend memory and are only valid until the list is released.
type Detection struct {
	ID      int
	Hamming int
	C       []float64
	P       [][2]float64
}

// Detections is an ordered, opaque detection list.
type Detections struct {
	mu       sync.Mutex
	items    []*Detection
	release  func()
	released bool
}

// NewDetections wraps backend results. release is called once, by Release.
func NewDetections(items []*Detection, release func()) *Detections {
	return &Detections{items: items, release: release}
}

// Len returns the number of detections, or 0 once released.
func (d *Detections) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return 0
	}
	return len(d.items)
}

// At returns entry i.
func (d *Detections) At(i int) (*Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, ErrReleased
	}
	return d.items[i], nil
}

// Release frees the backing storage. Safe to call more than once.
func (d *Detections) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return
	}
	d.released = true
	d.items = nil
	if d.release != nil {
		d.release()
	}
}

// Released reports whether Release has been called.
func (d *Detections) Released() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released
}
