package detector

import (
	"errors"
	"sync"

	"github.com/ayusman/tagsight/internal/apriltag"
)

// ErrSharedInitialized is returned by InitShared once the process-wide
// session exists.
var ErrSharedInitialized = errors.New("shared detector session already initialized")

var (
	sharedMu      sync.Mutex
	sharedSession *Session
)

// InitShared creates the process-wide session over lib. It can succeed at
// most once per process.
func InitShared(lib apriltag.Library) (*Session, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if sharedSession != nil {
		return sharedSession, ErrSharedInitialized
	}
	s, err := NewSession(lib)
	if err != nil {
		return nil, err
	}
	sharedSession = s
	return s, nil
}

// Shared returns the process-wide session, creating it over the default
// library on first use. It panics if that library cannot bind to Record,
// which is a build defect rather than a runtime condition.
func Shared() *Session {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if sharedSession == nil {
		s, err := NewSession(apriltag.Default())
		if err != nil {
			panic(err)
		}
		sharedSession = s
	}
	return sharedSession
}

// Configure applies a configuration to the shared session.
func Configure(family string, errorBits int, decimation, sigma float64, threads int) error {
	p, err := ParseParams(family, errorBits, decimation, sigma, threads)
	if err != nil {
		return err
	}
	return Shared().Configure(p)
}

// Detect runs detection on the shared session.
func Detect(luma []byte, width, height int) ([]Record, error) {
	return Shared().Detect(luma, width, height)
}

// Teardown releases the shared session's detector and family.
func Teardown() {
	Shared().Teardown()
}
