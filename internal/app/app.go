// Package app runs the camera to tag detection pipeline.
package app

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/ayusman/tagsight/internal/capture"
	"github.com/ayusman/tagsight/internal/detector"
	"github.com/ayusman/tagsight/internal/store"
	"github.com/ayusman/tagsight/internal/yuv"
)

// Pipeline defaults.
const (
	DefaultQueueSize      = 10
	DefaultConvertWorkers = 4
	// PruneEvery is how many logged frames pass between history prunes.
	PruneEvery = 100
	// subscriberBuffer is the per-subscriber backlog before results are dropped.
	subscriberBuffer = 8
)

// ErrNoDetector is returned by New when Config.Detector is nil.
var ErrNoDetector = errors.New("app: no detector configured")

// Config holds configuration options for the application.
type Config struct {
	Store           *store.Store
	Detector        detector.Detector
	Camera          capture.Camera // nil opens CameraID with GoCV
	CameraID        int
	FPS             int
	QueueSize       int
	ConvertWorkers  int
	MotionThreshold float64 // 0 disables the motion gate
	HistoryLimit    int     // 0 keeps every logged frame
}

// Result is published for every processed frame.
type Result struct {
	FrameID    string            `json:"frame_id"`
	Timestamp  int64             `json:"timestamp"`
	Width      int               `json:"width"`
	Height     int               `json:"height"`
	Family     string            `json:"family"`
	Detections []detector.Record `json:"detections"`
	Skipped    bool              `json:"skipped,omitempty"`
	Elapsed    time.Duration     `json:"-"`
	ElapsedMs  float64           `json:"elapsed_ms"`
}

// Stats are pipeline counters.
type Stats struct {
	Processed  uint64  `json:"processed"`
	Dropped    uint64  `json:"dropped"`
	Skipped    uint64  `json:"skipped"`
	Failed     uint64  `json:"failed"`
	Detections uint64  `json:"detections"`
	QueueLen   int     `json:"queue_len"`
	FPS        float64 `json:"fps"`
	Enabled    bool    `json:"enabled"`
	Running    bool    `json:"running"`
}

// App is the main application that feeds camera frames to the detector.
type App struct {
	config   Config
	camera   capture.Camera
	gate     *capture.MotionGate
	detector detector.Detector
	frames   chan *capture.Frame

	enabled bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.RWMutex

	statsMu     sync.Mutex
	stats       Stats
	lastResult  *Result
	windowStart time.Time
	windowCount int
	logged      uint64

	previewMu sync.RWMutex
	preview   Preview

	subMu   sync.Mutex
	subs    map[int]chan Result
	nextSub int
}

// New creates a new App instance with the given configuration.
func New(config Config) (*App, error) {
	if config.Detector == nil {
		return nil, ErrNoDetector
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	if config.ConvertWorkers <= 0 {
		config.ConvertWorkers = DefaultConvertWorkers
	}

	a := &App{
		config:   config,
		camera:   config.Camera,
		detector: config.Detector,
		frames:   make(chan *capture.Frame, config.QueueSize),
		enabled:  true,
		subs:     make(map[int]chan Result),
	}
	if a.camera == nil {
		a.camera = capture.NewCamera(config.CameraID)
	}
	if config.FPS > 0 {
		a.camera.SetFPS(config.FPS)
	}
	if config.MotionThreshold > 0 {
		a.gate = capture.NewMotionGate(config.MotionThreshold)
	}

	if config.Store != nil {
		enabled, err := config.Store.Settings().Enabled()
		if err != nil {
			log.Printf("Failed to load pipeline state: %v", err)
		} else {
			a.enabled = enabled
		}
	}

	return a, nil
}

// SetEnabled enables or disables detection and remembers the choice.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	a.enabled = enabled
	a.mu.Unlock()

	if a.config.Store != nil {
		if err := a.config.Store.Settings().SetEnabled(enabled); err != nil {
			log.Printf("Failed to save pipeline state: %v", err)
		}
	}
}

// IsEnabled returns whether detection is currently enabled.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// IsRunning reports whether Start has been called without a matching Stop.
func (a *App) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stopCh != nil
}

// Start opens the camera and begins the capture and detection loops.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Don't start if already running
	if a.stopCh != nil {
		return nil
	}

	if err := a.camera.Open(); err != nil {
		return err
	}

	a.stopCh = make(chan struct{})
	a.wg.Add(2)
	go a.runCapture(a.stopCh)
	go a.runWorker(a.stopCh)

	log.Println("Detection pipeline started")
	return nil
}

// Stop halts both loops and closes the camera. Frames still queued are
// discarded.
func (a *App) Stop() {
	a.mu.Lock()
	if a.stopCh == nil {
		a.mu.Unlock()
		return
	}
	close(a.stopCh)
	a.stopCh = nil
	a.mu.Unlock()

	a.wg.Wait()

	if err := a.camera.Close(); err != nil {
		log.Printf("Error closing camera: %v", err)
	}
	if a.gate != nil {
		a.gate.Reset()
	}

	log.Println("Detection pipeline stopped")
}

// Camera returns the camera instance.
func (a *App) Camera() capture.Camera {
	return a.camera
}

// Detector returns the tag detector.
func (a *App) Detector() detector.Detector {
	return a.detector
}

// Stats returns a snapshot of the pipeline counters.
func (a *App) Stats() Stats {
	a.statsMu.Lock()
	s := a.stats
	a.statsMu.Unlock()

	s.QueueLen = len(a.frames)
	s.Enabled = a.IsEnabled()
	s.Running = a.IsRunning()
	return s
}

// LastResult returns the most recently published result, if any.
func (a *App) LastResult() (Result, bool) {
	a.statsMu.Lock()
	defer a.statsMu.Unlock()
	if a.lastResult == nil {
		return Result{}, false
	}
	return *a.lastResult, true
}

// Preview is the display image of the most recently processed frame.
type Preview struct {
	// Image is rotated into portrait orientation and must not be modified.
	Image *yuv.Image
	// Seq increases with every new preview.
	Seq uint64
	// Detections are in camera frame coordinates.
	Detections  []detector.Record
	FrameWidth  int
	FrameHeight int
}

// LatestPreview returns the newest preview. Image is nil until a frame has
// been processed.
func (a *App) LatestPreview() Preview {
	a.previewMu.RLock()
	defer a.previewMu.RUnlock()
	return a.preview
}

// Subscribe returns a channel receiving every published result and a
// function that cancels the subscription. Slow subscribers miss results.
func (a *App) Subscribe() (<-chan Result, func()) {
	a.subMu.Lock()
	defer a.subMu.Unlock()

	id := a.nextSub
	a.nextSub++
	ch := make(chan Result, subscriberBuffer)
	a.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			a.subMu.Lock()
			delete(a.subs, id)
			a.subMu.Unlock()
			close(ch)
		})
	}
}

func (a *App) publish(r Result) {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	for _, ch := range a.subs {
		select {
		case ch <- r:
		default:
		}
	}
}
