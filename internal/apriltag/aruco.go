package apriltag

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// arucoDictionaries maps the families OpenCV ships as predefined ArUco
// dictionaries, with the number of bit errors each can correct.
var arucoDictionaries = map[Family]struct {
	code       gocv.ArucoDictionaryCode
	correction int
}{
	Tag16h5:  {gocv.ArucoDictAprilTag_16h5, 2},
	Tag25h9:  {gocv.ArucoDictAprilTag_25h9, 4},
	Tag36h11: {gocv.ArucoDictAprilTag_36h11, 5},
}

// ArucoLibrary implements Library on top of OpenCV's ArUco detector, which
// decodes the AprilTag 16h5, 25h9 and 36h11 dictionaries.
//
// OpenCV does not report per-marker corrected bits, so Hamming is always 0,
// and the center is the mean of the four corners. The threads setting
// applies to OpenCV's shared pool rather than to one detector.
type ArucoLibrary struct{}

// NewArucoLibrary returns the OpenCV-backed library.
func NewArucoLibrary() *ArucoLibrary {
	return &ArucoLibrary{}
}

type arucoFamily struct {
	kind       Family
	dict       gocv.ArucoDictionary
	correction int
}

func (f *arucoFamily) Family() Family { return f.kind }

type arucoDetector struct {
	mu         sync.Mutex
	family     *arucoFamily
	errorBits  int
	decimation float64
	sigma      float64
	threads    int

	det   *gocv.ArucoDetector
	dirty bool
}

func (d *arucoDetector) SetDecimation(factor float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.decimation = factor
	d.dirty = true
}

func (d *arucoDetector) SetSigma(sigma float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sigma = sigma
	d.dirty = true
}

// SetThreads sizes OpenCV's thread pool. The pool is process-wide, so the
// most recently configured detector wins.
func (d *arucoDetector) SetThreads(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.threads = n
	gocv.SetNumThreads(n)
}

func (l *ArucoLibrary) Supports(f Family) bool {
	_, ok := arucoDictionaries[f]
	return ok
}

func (l *ArucoLibrary) NewFamily(f Family) (FamilyHandle, error) {
	entry, ok := arucoDictionaries[f]
	if !ok {
		return nil, fmt.Errorf("%s: %w", f, ErrUnsupportedFamily)
	}
	return &arucoFamily{
		kind:       f,
		dict:       gocv.GetPredefinedDictionary(entry.code),
		correction: entry.correction,
	}, nil
}

// DestroyFamily drops the dictionary; predefined dictionaries are owned by OpenCV.
func (l *ArucoLibrary) DestroyFamily(h FamilyHandle, f Family) {
	if fam, ok := h.(*arucoFamily); ok && fam.kind == f {
		fam.dict = gocv.ArucoDictionary{}
	}
}

func (l *ArucoLibrary) NewDetector() (Detector, error) {
	return &arucoDetector{decimation: 1, threads: 1}, nil
}

func (l *ArucoLibrary) DestroyDetector(d Detector) {
	ad, ok := d.(*arucoDetector)
	if !ok {
		return
	}
	ad.mu.Lock()
	defer ad.mu.Unlock()
	if ad.det != nil {
		ad.det.Close()
		ad.det = nil
	}
	ad.family = nil
}

func (l *ArucoLibrary) AttachFamily(d Detector, h FamilyHandle, errorBits int) error {
	ad, ok := d.(*arucoDetector)
	if !ok {
		return errors.New("detector was not created by this library")
	}
	fam, ok := h.(*arucoFamily)
	if !ok {
		return errors.New("family was not created by this library")
	}
	ad.mu.Lock()
	defer ad.mu.Unlock()
	ad.family = fam
	ad.errorBits = errorBits
	ad.dirty = true
	return nil
}

func (l *ArucoLibrary) Layout() Layout {
	return StandardLayout
}

// build (re)creates the OpenCV detector after a parameter change.
func (d *arucoDetector) build() {
	if d.det != nil && !d.dirty {
		return
	}
	if d.det != nil {
		d.det.Close()
	}

	params := gocv.NewArucoDetectorParameters()
	params.SetAprilTagQuadDecimate(float32(d.decimation))
	params.SetAprilTagQuadSigma(float32(d.sigma))

	rate := 0.0
	if d.family.correction > 0 {
		rate = min(1.0, float64(d.errorBits)/float64(d.family.correction))
	}
	params.SetErrorCorrectionRate(rate)

	det := gocv.NewArucoDetectorWithParams(d.family.dict, params)
	d.det = &det
	d.dirty = false
}

func (l *ArucoLibrary) Detect(d Detector, img Gray) (*Detections, error) {
	ad, ok := d.(*arucoDetector)
	if !ok {
		return nil, errors.New("detector was not created by this library")
	}
	if img.Stride != img.Width {
		return nil, fmt.Errorf("stride %d != width %d is not supported", img.Stride, img.Width)
	}

	ad.mu.Lock()
	defer ad.mu.Unlock()

	if ad.family == nil {
		return nil, errors.New("no family attached to detector")
	}
	ad.build()

	mat, err := gocv.NewMatFromBytes(img.Height, img.Width, gocv.MatTypeCV8U, img.Buf[:img.Width*img.Height])
	if err != nil {
		return nil, fmt.Errorf("wrap grayscale image: %w", err)
	}
	defer mat.Close()

	corners, ids, _ := ad.det.DetectMarkers(mat)

	items := make([]*Detection, 0, len(ids))
	for k, id := range ids {
		quad := corners[k]
		if len(quad) != 4 {
			continue
		}
		det := &Detection{
			ID: id,
			C:  make([]float64, 2),
			P:  make([][2]float64, 4),
		}
		for c, pt := range quad {
			det.P[c] = [2]float64{float64(pt.X), float64(pt.Y)}
			det.C[0] += float64(pt.X) / 4
			det.C[1] += float64(pt.Y) / 4
		}
		items = append(items, det)
	}

	return NewDetections(items, nil), nil
}
