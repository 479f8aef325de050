package apriltag

import (
	"errors"
	"fmt"
	"sync"
)

// FakeLibrary is an in-memory Library for tests. It tracks every live
// handle, records the order of lifecycle calls and returns scripted
// detections.
type FakeLibrary struct {
	mu sync.Mutex

	supported map[Family]bool
	layout    Layout

	liveDetectors int
	liveFamilies  map[Family]int
	events        []string

	detections   []Detection
	detectErr    error
	newDetErr    error
	attachErr    error
	gate         chan struct{}
	detectCalls  int
	releaseCalls int
	maxOverlap   int
	lastImage    Gray
}

// NewFakeLibrary returns a fake that supports every family.
func NewFakeLibrary() *FakeLibrary {
	supported := make(map[Family]bool)
	for _, f := range Families() {
		supported[f] = true
	}
	return &FakeLibrary{
		supported:    supported,
		layout:       StandardLayout,
		liveFamilies: make(map[Family]int),
	}
}

// FakeFamily is the family handle produced by FakeLibrary.
type FakeFamily struct {
	kind      Family
	destroyed bool
}

func (f *FakeFamily) Family() Family { return f.kind }

// FakeDetector is the detector handle produced by FakeLibrary.
type FakeDetector struct {
	Decimation float64
	Sigma      float64
	Threads    int
	Attached   *FakeFamily
	ErrorBits  int
	destroyed  bool
	inFlight   int
}

func (d *FakeDetector) SetDecimation(factor float64) { d.Decimation = factor }
func (d *FakeDetector) SetSigma(sigma float64)       { d.Sigma = sigma }
func (d *FakeDetector) SetThreads(n int)             { d.Threads = n }

// SetSupported restricts which families NewFamily accepts.
func (l *FakeLibrary) SetSupported(families ...Family) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.supported = make(map[Family]bool)
	for _, f := range families {
		l.supported[f] = true
	}
}

// SetLayout overrides the reported detection layout.
func (l *FakeLibrary) SetLayout(layout Layout) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.layout = layout
}

// SetDetections sets the entries returned by every subsequent Detect.
func (l *FakeLibrary) SetDetections(dets []Detection) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.detections = dets
}

// SetDetectError makes Detect fail with err.
func (l *FakeLibrary) SetDetectError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.detectErr = err
}

// SetNewDetectorError makes NewDetector fail with err.
func (l *FakeLibrary) SetNewDetectorError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.newDetErr = err
}

// SetAttachError makes AttachFamily fail with err.
func (l *FakeLibrary) SetAttachError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attachErr = err
}

// SetGate makes Detect block until gate is closed or receives.
func (l *FakeLibrary) SetGate(gate chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gate = gate
}

// LiveDetectors returns the number of detectors not yet destroyed.
func (l *FakeLibrary) LiveDetectors() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.liveDetectors
}

// LiveFamilies returns the number of live family handles of kind f.
func (l *FakeLibrary) LiveFamilies(f Family) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.liveFamilies[f]
}

// LiveFamilyTotal returns the number of live family handles of any kind.
func (l *FakeLibrary) LiveFamilyTotal() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for _, n := range l.liveFamilies {
		total += n
	}
	return total
}

// Events returns the lifecycle calls made so far, e.g. "create-family:tag36h11".
func (l *FakeLibrary) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// ResetEvents clears the event log.
func (l *FakeLibrary) ResetEvents() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}

// DetectCalls returns how many times Detect ran.
func (l *FakeLibrary) DetectCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.detectCalls
}

// MaxOverlap returns the largest number of Detect calls seen running at
// once on a single detector.
func (l *FakeLibrary) MaxOverlap() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxOverlap
}

// ReleaseCalls returns how many detection lists were released.
func (l *FakeLibrary) ReleaseCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.releaseCalls
}

// LastImage returns the image passed to the most recent Detect.
func (l *FakeLibrary) LastImage() Gray {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastImage
}

func (l *FakeLibrary) Supports(f Family) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.supported[f]
}

func (l *FakeLibrary) NewFamily(f Family) (FamilyHandle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.supported[f] {
		return nil, fmt.Errorf("%s: %w", f, ErrUnsupportedFamily)
	}
	l.liveFamilies[f]++
	l.events = append(l.events, "create-family:"+f.String())
	return &FakeFamily{kind: f}, nil
}

func (l *FakeLibrary) DestroyFamily(h FamilyHandle, f Family) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fam, ok := h.(*FakeFamily)
	if !ok || fam.destroyed {
		l.events = append(l.events, "bad-destroy-family:"+f.String())
		return
	}
	if fam.kind != f {
		// The wrong destructor would leak or corrupt a real family.
		l.events = append(l.events, "mismatched-destroy-family:"+f.String())
		return
	}
	fam.destroyed = true
	l.liveFamilies[f]--
	l.events = append(l.events, "destroy-family:"+f.String())
}

func (l *FakeLibrary) NewDetector() (Detector, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.newDetErr != nil {
		return nil, l.newDetErr
	}
	l.liveDetectors++
	l.events = append(l.events, "create-detector")
	return &FakeDetector{}, nil
}

func (l *FakeLibrary) DestroyDetector(d Detector) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fd, ok := d.(*FakeDetector)
	if !ok || fd.destroyed {
		l.events = append(l.events, "bad-destroy-detector")
		return
	}
	fd.destroyed = true
	l.liveDetectors--
	l.events = append(l.events, "destroy-detector")
}

func (l *FakeLibrary) AttachFamily(d Detector, h FamilyHandle, errorBits int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.attachErr != nil {
		return l.attachErr
	}
	fd, ok := d.(*FakeDetector)
	if !ok {
		return errors.New("foreign detector")
	}
	fam, ok := h.(*FakeFamily)
	if !ok {
		return errors.New("foreign family")
	}
	fd.Attached = fam
	fd.ErrorBits = errorBits
	l.events = append(l.events, fmt.Sprintf("attach:%s:%d", fam.kind, errorBits))
	return nil
}

func (l *FakeLibrary) Layout() Layout {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.layout
}

func (l *FakeLibrary) Detect(d Detector, img Gray) (*Detections, error) {
	fd, ok := d.(*FakeDetector)
	if !ok {
		return nil, errors.New("foreign detector")
	}

	l.mu.Lock()
	gate := l.gate
	fd.inFlight++
	if fd.inFlight > l.maxOverlap {
		l.maxOverlap = fd.inFlight
	}
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		fd.inFlight--
		l.mu.Unlock()
	}()
	if gate != nil {
		<-gate
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if fd.destroyed {
		return nil, errors.New("detect on destroyed detector")
	}
	if fd.Attached == nil || fd.Attached.destroyed {
		return nil, errors.New("detect without a live family")
	}

	l.detectCalls++
	l.lastImage = img
	if l.detectErr != nil {
		return nil, l.detectErr
	}

	// Entries are copied so a released list can be scribbled over, the way
	// a native library reuses its memory.
	items := make([]*Detection, len(l.detections))
	for k, src := range l.detections {
		det := &Detection{
			ID:      src.ID,
			Hamming: src.Hamming,
			C:       append([]float64(nil), src.C...),
			P:       append([][2]float64(nil), src.P...),
		}
		items[k] = det
	}

	return NewDetections(items, func() {
		for _, det := range items {
			det.ID = -1
			for c := range det.C {
				det.C[c] = -1
			}
			for c := range det.P {
				det.P[c] = [2]float64{-1, -1}
			}
		}
		l.mu.Lock()
		l.releaseCalls++
		l.mu.Unlock()
	}), nil
}
