package app

import (
	"log"
	"time"

	"github.com/ayusman/tagsight/internal/capture"
	"github.com/ayusman/tagsight/internal/detector"
	"github.com/ayusman/tagsight/internal/store"
	"github.com/ayusman/tagsight/internal/yuv"
)

// Enqueue hands a frame to the detection worker without blocking. It
// returns false and counts a drop when the queue is full.
func (a *App) Enqueue(f *capture.Frame) bool {
	select {
	case a.frames <- f:
		return true
	default:
		a.statsMu.Lock()
		a.stats.Dropped++
		a.statsMu.Unlock()
		return false
	}
}

// runCapture reads frames at the camera's rate and queues them while
// detection is enabled.
func (a *App) runCapture(stop <-chan struct{}) {
	defer a.wg.Done()

	fps := a.camera.FPS()
	if fps <= 0 {
		fps = capture.DefaultFPS
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !a.IsEnabled() {
				continue
			}

			frame, err := a.camera.ReadFrame()
			if err != nil {
				log.Printf("Error reading frame: %v", err)
				continue
			}
			a.Enqueue(frame)
		}
	}
}

// runWorker processes queued frames one at a time.
func (a *App) runWorker(stop <-chan struct{}) {
	defer a.wg.Done()

	for {
		select {
		case <-stop:
			return
		case f := <-a.frames:
			if _, err := a.Process(f); err != nil {
				log.Printf("Error processing frame %s: %v", f.ID, err)
			}
		}
	}
}

// Process runs one frame through the pipeline: motion gate, tag
// detection, logging, publishing and preview conversion.
func (a *App) Process(f *capture.Frame) (Result, error) {
	start := time.Now()

	luma, err := f.Luma()
	if err != nil {
		a.countFailure()
		return Result{}, err
	}

	res := Result{
		FrameID:    f.ID,
		Timestamp:  f.Timestamp,
		Width:      f.Width,
		Height:     f.Height,
		Detections: []detector.Record{},
	}

	if a.gate != nil {
		changed, _, err := a.gate.Changed(f)
		if err != nil {
			a.countFailure()
			return Result{}, err
		}
		res.Skipped = !changed
	}

	if !res.Skipped {
		records, p, err := a.detector.DetectWithParams(luma, f.Width, f.Height)
		if err != nil {
			a.countFailure()
			return Result{}, err
		}
		res.Detections = records
		res.Family = p.Family.String()
	} else if p, ok := a.detector.Params(); ok {
		res.Family = p.Family.String()
	}
	res.Elapsed = time.Since(start)
	res.ElapsedMs = float64(res.Elapsed.Microseconds()) / 1000

	if err := a.logDetections(res); err != nil {
		log.Printf("Failed to log detections: %v", err)
	}

	a.record(res)
	a.publish(res)

	if err := a.updatePreview(f, res.Detections); err != nil {
		log.Printf("Failed to convert preview: %v", err)
	}

	return res, nil
}

func (a *App) logDetections(res Result) error {
	if a.config.Store == nil || len(res.Detections) == 0 {
		return nil
	}

	repo := a.config.Store.Detections()
	err := repo.Create(store.FrameLog{
		ID:         res.FrameID,
		Width:      res.Width,
		Height:     res.Height,
		Family:     res.Family,
		CapturedAt: res.Timestamp,
		Elapsed:    res.Elapsed,
	}, res.Detections)
	if err != nil {
		return err
	}

	a.statsMu.Lock()
	a.logged++
	prune := a.config.HistoryLimit > 0 && a.logged%PruneEvery == 0
	a.statsMu.Unlock()

	if prune {
		if _, err := repo.Prune(a.config.HistoryLimit); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) updatePreview(f *capture.Frame, records []detector.Record) error {
	img := yuv.NewImage(f.Width, f.Height)
	if err := yuv.ConvertRows(f.Data, f.Width, f.Height, img, a.config.ConvertWorkers); err != nil {
		return err
	}

	a.previewMu.Lock()
	a.preview = Preview{
		Image:       img,
		Seq:         a.preview.Seq + 1,
		Detections:  records,
		FrameWidth:  f.Width,
		FrameHeight: f.Height,
	}
	a.previewMu.Unlock()
	return nil
}

// record updates the counters and logs the frame rate once per second.
func (a *App) record(res Result) {
	a.statsMu.Lock()
	defer a.statsMu.Unlock()

	a.stats.Processed++
	a.stats.Detections += uint64(len(res.Detections))
	if res.Skipped {
		a.stats.Skipped++
	}
	a.lastResult = &res

	now := time.Now()
	if a.windowStart.IsZero() {
		a.windowStart = now
	}
	a.windowCount++
	if elapsed := now.Sub(a.windowStart); elapsed >= time.Second {
		a.stats.FPS = float64(a.windowCount) / elapsed.Seconds()
		log.Printf("Detection: %.1f fps, %d tags in last frame (%.2f ms)",
			a.stats.FPS, len(res.Detections), res.ElapsedMs)
		a.windowStart = now
		a.windowCount = 0
	}
}

func (a *App) countFailure() {
	a.statsMu.Lock()
	a.stats.Failed++
	a.statsMu.Unlock()
}
