package detector

import (
	"sync"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu         sync.Mutex
	records    []Record
	err        error
	params     Params
	configured bool
	calls      int
	closed     bool
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetRecords sets the records that will be returned by Detect.
func (m *MockDetector) SetRecords(records []Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = records
}

// SetError sets the error that will be returned by Detect and Configure.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect was called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Closed reports whether Close was called.
func (m *MockDetector) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Detect returns the pre-configured records or error.
func (m *MockDetector) Detect(luma []byte, width, height int) ([]Record, error) {
	records, _, err := m.DetectWithParams(luma, width, height)
	return records, err
}

// DetectWithParams returns the pre-configured records with the active
// parameters.
func (m *MockDetector) DetectWithParams(luma []byte, width, height int) ([]Record, Params, error) {
	if err := checkLuma(luma, width, height); err != nil {
		return nil, Params{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, Params{}, m.err
	}
	if !m.configured {
		m.params = DefaultParams()
		m.configured = true
	}
	return append([]Record{}, m.records...), m.params, nil
}

// Configure validates p and records it.
func (m *MockDetector) Configure(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.params = p
	m.configured = true
	return nil
}

// Params returns the last configured parameters.
func (m *MockDetector) Params() (Params, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.params, m.configured
}

// Teardown forgets the configured parameters.
func (m *MockDetector) Teardown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.params = Params{}
	m.configured = false
}

// Close marks the mock closed.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.configured = false
	return nil
}

// TagRecord returns a Record for an axis-aligned square tag of side size
// centered at (cx, cy), with corners wound counter-clockwise from the
// bottom-left as libapriltag reports them.
func TagRecord(id int, cx, cy, size float64) Record {
	h := size / 2
	return Record{
		ID:      id,
		Center:  [2]float64{cx, cy},
		Corners: [8]float64{cx - h, cy + h, cx + h, cy + h, cx + h, cy - h, cx - h, cy - h},
	}
}
