// Package detector owns the process-wide AprilTag detector session and
// converts the detection library's results into plain records.
package detector

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/ayusman/tagsight/internal/apriltag"
)

// Default detector settings, applied when detection runs before any
// explicit configuration.
const (
	DefaultFamily     = apriltag.Tag36h11
	DefaultErrorBits  = 2
	DefaultDecimation = 2.0
	DefaultSigma      = 0.0
	DefaultThreads    = 4
)

// MaxErrorBits bounds the decoder tolerance. Accepting more corrected bits
// sharply increases false positives.
const MaxErrorBits = 3

var (
	// ErrInvalidConfig is wrapped by every ConfigError.
	ErrInvalidConfig = errors.New("invalid detector configuration")
	// ErrBinding is wrapped by every BindingError.
	ErrBinding = errors.New("detection record binding mismatch")
	// ErrLibrary is wrapped by every LibraryError.
	ErrLibrary = errors.New("detection library failure")
)

// Detector finds tags in grayscale frames. Session is the production
// implementation.
type Detector interface {
	// Detect returns the tags found in a width*height grayscale buffer.
	Detect(luma []byte, width, height int) ([]Record, error)
	// DetectWithParams is Detect that also returns the parameters the
	// detection ran with.
	DetectWithParams(luma []byte, width, height int) ([]Record, Params, error)
	// Configure replaces the active parameters.
	Configure(p Params) error
	// Params returns the active parameters, if any.
	Params() (Params, bool)
	// Teardown releases the detector until the next Detect or Configure.
	Teardown()
	// Close releases all resources.
	Close() error
}

// Params holds the detector configuration.
type Params struct {
	Family     apriltag.Family `json:"-"`
	ErrorBits  int             `json:"error_bits"`
	Decimation float64         `json:"decimation"`
	Sigma      float64         `json:"sigma"`
	Threads    int             `json:"threads"`
}

// DefaultParams returns the documented default configuration.
func DefaultParams() Params {
	return Params{
		Family:     DefaultFamily,
		ErrorBits:  DefaultErrorBits,
		Decimation: DefaultDecimation,
		Sigma:      DefaultSigma,
		Threads:    DefaultThreads,
	}
}

// ParseParams builds Params from a family name, resolving threads <= 0 to
// the number of CPUs.
func ParseParams(family string, errorBits int, decimation, sigma float64, threads int) (Params, error) {
	f, err := apriltag.ParseFamily(family)
	if err != nil {
		return Params{}, &ConfigError{Field: "family", Value: family, Err: err}
	}
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	p := Params{
		Family:     f,
		ErrorBits:  errorBits,
		Decimation: decimation,
		Sigma:      sigma,
		Threads:    threads,
	}
	return p, p.Validate()
}

// Validate checks every field without touching any detector state.
func (p Params) Validate() error {
	switch {
	case !p.Family.Valid():
		return &ConfigError{Field: "family", Value: p.Family.String()}
	case p.ErrorBits < 0 || p.ErrorBits > MaxErrorBits:
		return &ConfigError{Field: "error bits", Value: fmt.Sprint(p.ErrorBits)}
	case !(p.Decimation >= 1):
		return &ConfigError{Field: "decimation", Value: fmt.Sprint(p.Decimation)}
	case !(p.Sigma >= 0):
		return &ConfigError{Field: "sigma", Value: fmt.Sprint(p.Sigma)}
	case p.Threads < 1:
		return &ConfigError{Field: "threads", Value: fmt.Sprint(p.Threads)}
	}
	return nil
}

// ConfigError reports a rejected configuration. The session is left as it
// was before the call.
type ConfigError struct {
	Field string
	Value string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid detector %s %q: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("invalid detector %s %q", e.Field, e.Value)
}

func (e *ConfigError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidConfig, e.Err}
	}
	return []error{ErrInvalidConfig}
}

// BindingError reports that the library's detection shape does not fit
// Record. It is detected when a session is created.
type BindingError struct {
	Field string
	Want  int
	Got   int
}

func (e *BindingError) Error() string {
	return fmt.Sprintf("detection field %s: record holds %d values, library provides %d", e.Field, e.Want, e.Got)
}

func (e *BindingError) Unwrap() error {
	return ErrBinding
}

// LibraryError wraps a failure reported by the detection library.
type LibraryError struct {
	Err error
}

func (e *LibraryError) Error() string {
	return fmt.Sprintf("detect tags: %v", e.Err)
}

func (e *LibraryError) Unwrap() []error {
	return []error{ErrLibrary, e.Err}
}
