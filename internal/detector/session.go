package detector

import (
	"fmt"
	"log"
	"strconv"
	"sync"

	"github.com/ayusman/tagsight/internal/apriltag"
	"github.com/ayusman/tagsight/internal/yuv"
)

// familyHandle remembers which family a handle belongs to together with the
// destructor that matches it.
type familyHandle struct {
	kind    apriltag.Family
	handle  apriltag.FamilyHandle
	destroy func()
}

// Session owns at most one detector and one tag family. Configuration
// changes are exclusive with each other and with in-flight detections.
// Detections on the shared detector run one at a time.
type Session struct {
	lib        apriltag.Library
	marshaller *Marshaller

	mu       sync.RWMutex
	detectMu sync.Mutex // held with mu read-locked
	params   Params
	det      apriltag.Detector
	family   *familyHandle
}

// NewSession binds a session to lib. It fails with a BindingError when the
// library's detection layout does not fit Record.
func NewSession(lib apriltag.Library) (*Session, error) {
	m, err := NewMarshaller(lib.Layout())
	if err != nil {
		return nil, err
	}
	return &Session{lib: lib, marshaller: m}, nil
}

// Configure replaces the detector and family with ones built from p. A
// rejected p leaves the session untouched. When the library fails after the
// previous handles were destroyed, the session ends up unconfigured.
func (s *Session) Configure(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if !s.lib.Supports(p.Family) {
		return &ConfigError{Field: "family", Value: p.Family.String(), Err: apriltag.ErrUnsupportedFamily}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.configureLocked(p); err != nil {
		return err
	}
	log.Printf("Detector configured: family=%s bits=%d decimation=%.1f sigma=%.1f threads=%d",
		p.Family, p.ErrorBits, p.Decimation, p.Sigma, p.Threads)
	return nil
}

// EnsureDefault configures the default parameters if the session has no
// detector. It is a no-op otherwise.
func (s *Session) EnsureDefault() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.det != nil {
		return nil
	}
	log.Printf("Detector not configured, applying defaults")
	return s.configureLocked(DefaultParams())
}

// Teardown destroys the detector and family. Calling it on an unconfigured
// session does nothing.
func (s *Session) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
}

// Close implements io.Closer.
func (s *Session) Close() error {
	s.Teardown()
	return nil
}

// Configured reports whether a detector is currently live.
func (s *Session) Configured() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.det != nil
}

// Params returns the active configuration and whether one exists.
func (s *Session) Params() (Params, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params, s.det != nil
}

// Detect finds tags in a row-major 8-bit grayscale buffer of width*height
// bytes. Extra trailing bytes, such as the chroma plane of an NV21 frame,
// are ignored. An unconfigured session applies the defaults first.
func (s *Session) Detect(luma []byte, width, height int) ([]Record, error) {
	records, _, err := s.DetectWithParams(luma, width, height)
	return records, err
}

// DetectWithParams is Detect that also returns the parameters of the
// detector that produced the records. A concurrent Configure cannot slip in
// between the two.
func (s *Session) DetectWithParams(luma []byte, width, height int) ([]Record, Params, error) {
	if err := checkLuma(luma, width, height); err != nil {
		return nil, Params{}, err
	}
	if err := s.acquire(); err != nil {
		return nil, Params{}, err
	}
	defer s.mu.RUnlock()

	list, err := s.detectLocked(luma, width, height)
	if err != nil {
		return nil, Params{}, err
	}
	records, err := s.marshaller.Marshal(list)
	if err != nil {
		return nil, Params{}, err
	}
	return records, s.params, nil
}

// DetectRaw is Detect without marshalling. The caller must Release the
// returned list.
func (s *Session) DetectRaw(luma []byte, width, height int) (*apriltag.Detections, error) {
	if err := checkLuma(luma, width, height); err != nil {
		return nil, err
	}
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.mu.RUnlock()

	return s.detectLocked(luma, width, height)
}

func (s *Session) detectLocked(luma []byte, width, height int) (*apriltag.Detections, error) {
	s.detectMu.Lock()
	defer s.detectMu.Unlock()

	list, err := s.lib.Detect(s.det, apriltag.Gray{
		Width:  width,
		Height: height,
		Stride: width,
		Buf:    luma[:width*height],
	})
	if err != nil {
		return nil, &LibraryError{Err: err}
	}
	return list, nil
}

// acquire returns holding the read lock on a configured session.
func (s *Session) acquire() error {
	for {
		s.mu.RLock()
		if s.det != nil {
			return nil
		}
		s.mu.RUnlock()

		if err := s.EnsureDefault(); err != nil {
			return err
		}
	}
}

func (s *Session) configureLocked(p Params) error {
	s.releaseLocked()

	h, err := s.lib.NewFamily(p.Family)
	if err != nil {
		return &LibraryError{Err: err}
	}
	kind := p.Family
	fam := &familyHandle{
		kind:   kind,
		handle: h,
		destroy: func() {
			s.lib.DestroyFamily(h, kind)
		},
	}

	det, err := s.lib.NewDetector()
	if err != nil {
		fam.destroy()
		return &LibraryError{Err: err}
	}
	if err := s.lib.AttachFamily(det, h, p.ErrorBits); err != nil {
		s.lib.DestroyDetector(det)
		fam.destroy()
		return &LibraryError{Err: err}
	}

	det.SetDecimation(p.Decimation)
	det.SetSigma(p.Sigma)
	det.SetThreads(p.Threads)

	s.det = det
	s.family = fam
	s.params = p
	return nil
}

// releaseLocked destroys the detector before the family it references.
func (s *Session) releaseLocked() {
	if s.det != nil {
		s.lib.DestroyDetector(s.det)
		s.det = nil
	}
	if s.family != nil {
		s.family.destroy()
		s.family = nil
	}
	s.params = Params{}
}

func checkLuma(luma []byte, width, height int) error {
	if width <= 0 || height <= 0 {
		return &yuv.InputError{Field: "image dimensions", Expected: "positive", Actual: fmt.Sprintf("%dx%d", width, height)}
	}
	if len(luma) < width*height {
		return &yuv.InputError{Field: "image length", Expected: strconv.Itoa(width * height), Actual: strconv.Itoa(len(luma))}
	}
	return nil
}
