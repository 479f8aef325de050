package app

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/tagsight/internal/apriltag"
	"github.com/ayusman/tagsight/internal/capture"
	"github.com/ayusman/tagsight/internal/detector"
	"github.com/ayusman/tagsight/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestApp(t *testing.T, cfg Config) (*App, *detector.MockDetector) {
	t.Helper()
	mock := detector.NewMockDetector()
	if cfg.Detector == nil {
		cfg.Detector = mock
	}
	if cfg.Camera == nil {
		cfg.Camera = capture.NewMockCamera([]*capture.Frame{capture.UniformFrame(8, 4, 128, 128, 128)}, true)
	}
	a, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(a.Stop)
	return a, mock
}

func TestNew_RequiresDetector(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNoDetector)
}

func TestNew_Defaults(t *testing.T) {
	a, _ := newTestApp(t, Config{})

	assert.Equal(t, DefaultQueueSize, cap(a.frames))
	assert.Nil(t, a.gate, "motion gate should be off by default")
	assert.True(t, a.IsEnabled())
	assert.False(t, a.IsRunning())
}

func TestApp_Process(t *testing.T) {
	s := newTestStore(t)
	a, mock := newTestApp(t, Config{Store: s})
	mock.SetRecords([]detector.Record{detector.TagRecord(7, 2, 2, 2)})

	results, cancel := a.Subscribe()
	defer cancel()

	frame := capture.UniformFrame(8, 4, 128, 128, 128)
	res, err := a.Process(frame)
	require.NoError(t, err)

	t.Run("result", func(t *testing.T) {
		assert.Equal(t, frame.ID, res.FrameID)
		assert.Equal(t, "tag36h11", res.Family)
		require.Len(t, res.Detections, 1)
		assert.Equal(t, 7, res.Detections[0].ID)
		assert.False(t, res.Skipped)
	})

	t.Run("published", func(t *testing.T) {
		select {
		case got := <-results:
			assert.Equal(t, frame.ID, got.FrameID)
		default:
			t.Fatal("subscriber did not receive the result")
		}
		last, ok := a.LastResult()
		assert.True(t, ok)
		assert.Equal(t, frame.ID, last.FrameID)
	})

	t.Run("logged", func(t *testing.T) {
		stored, err := s.Detections().ListRecent(10)
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.Equal(t, frame.ID, stored[0].FrameID)
		assert.Equal(t, res.Detections[0], stored[0].Record)
	})

	t.Run("preview rotated", func(t *testing.T) {
		p := a.LatestPreview()
		require.NotNil(t, p.Image)
		assert.Equal(t, uint64(1), p.Seq)
		assert.Equal(t, 4, p.Image.Width)
		assert.Equal(t, 8, p.Image.Height)
		assert.Equal(t, 4, p.FrameHeight)
		assert.Equal(t, res.Detections, p.Detections)
	})

	t.Run("stats", func(t *testing.T) {
		stats := a.Stats()
		assert.Equal(t, uint64(1), stats.Processed)
		assert.Equal(t, uint64(1), stats.Detections)
		assert.Zero(t, stats.Failed)
	})
}

func TestApp_ProcessNoTags(t *testing.T) {
	s := newTestStore(t)
	a, _ := newTestApp(t, Config{Store: s})

	res, err := a.Process(capture.UniformFrame(8, 4, 128, 128, 128))
	require.NoError(t, err)
	assert.NotNil(t, res.Detections)
	assert.Empty(t, res.Detections)

	stored, err := s.Detections().ListRecent(10)
	require.NoError(t, err)
	assert.Empty(t, stored, "frames without tags are not logged")
}

func TestApp_ProcessErrors(t *testing.T) {
	a, mock := newTestApp(t, Config{})

	_, err := a.Process(&capture.Frame{ID: "short", Data: make([]byte, 3), Width: 8, Height: 4})
	assert.Error(t, err)

	mock.SetError(errors.New("detector down"))
	_, err = a.Process(capture.UniformFrame(8, 4, 128, 128, 128))
	assert.Error(t, err)

	assert.Equal(t, uint64(2), a.Stats().Failed)
	assert.Zero(t, a.LatestPreview().Seq, "failed frames should not update the preview")
}

func TestApp_ProcessWithSession(t *testing.T) {
	lib := apriltag.NewFakeLibrary()
	lib.SetDetections([]apriltag.Detection{{
		ID: 11,
		C:  []float64{3, 1},
		P:  [][2]float64{{2, 2}, {4, 2}, {4, 0}, {2, 0}},
	}})
	session, err := detector.NewSession(lib)
	require.NoError(t, err)
	defer session.Close()

	a, _ := newTestApp(t, Config{Detector: session})

	res, err := a.Process(capture.UniformFrame(8, 4, 128, 128, 128))
	require.NoError(t, err)
	require.Len(t, res.Detections, 1)
	assert.Equal(t, detector.Record{ID: 11, Center: [2]float64{3, 1}, Corners: [8]float64{2, 2, 4, 2, 4, 0, 2, 0}}, res.Detections[0])
	assert.Equal(t, "tag36h11", res.Family, "first detection applies the default family")

	img := lib.LastImage()
	assert.Equal(t, 8, img.Width)
	assert.Len(t, img.Buf, 32, "only the luma plane reaches the library")
}

func TestApp_ProcessFamilyMatchesDetection(t *testing.T) {
	lib := apriltag.NewFakeLibrary()
	session, err := detector.NewSession(lib)
	require.NoError(t, err)
	defer session.Close()
	require.NoError(t, session.Configure(detector.DefaultParams()))

	a, _ := newTestApp(t, Config{Detector: session})

	gate := make(chan struct{})
	lib.SetGate(gate)

	type result struct {
		res Result
		err error
	}
	processed := make(chan result, 1)
	go func() {
		res, err := a.Process(capture.UniformFrame(8, 4, 128, 128, 128))
		processed <- result{res, err}
	}()
	require.Eventually(t, func() bool { return lib.MaxOverlap() == 1 }, time.Second, time.Millisecond)

	configured := make(chan error, 1)
	go func() {
		configured <- session.Configure(detector.Params{Family: apriltag.Tag25h9, Decimation: 1, Threads: 1})
	}()
	time.Sleep(20 * time.Millisecond)
	close(gate)

	got := <-processed
	require.NoError(t, <-configured)
	require.NoError(t, got.err)
	assert.Equal(t, "tag36h11", got.res.Family, "family of the detector that ran")

	p, ok := session.Params()
	require.True(t, ok)
	assert.Equal(t, apriltag.Tag25h9, p.Family)
}

func TestApp_EnqueueDropsWhenFull(t *testing.T) {
	a, _ := newTestApp(t, Config{QueueSize: 2})

	frame := capture.UniformFrame(8, 4, 128, 128, 128)
	assert.True(t, a.Enqueue(frame))
	assert.True(t, a.Enqueue(frame))
	assert.False(t, a.Enqueue(frame))

	stats := a.Stats()
	assert.Equal(t, uint64(1), stats.Dropped)
	assert.Equal(t, 2, stats.QueueLen)
}

func TestApp_StartStop(t *testing.T) {
	cam := capture.NewMockCamera([]*capture.Frame{capture.UniformFrame(8, 4, 128, 128, 128)}, true)
	a, mock := newTestApp(t, Config{Camera: cam, FPS: 50})
	mock.SetRecords([]detector.Record{detector.TagRecord(1, 2, 2, 2)})

	results, cancel := a.Subscribe()
	defer cancel()

	require.NoError(t, a.Start())
	require.NoError(t, a.Start(), "second Start should be a no-op")
	assert.True(t, a.IsRunning())
	assert.True(t, cam.IsOpen())

	select {
	case res := <-results:
		require.Len(t, res.Detections, 1)
		assert.Equal(t, 1, res.Detections[0].ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no result from the running pipeline")
	}

	a.Stop()
	a.Stop()
	assert.False(t, a.IsRunning())
	assert.False(t, cam.IsOpen())
}

func TestApp_DisabledSkipsCapture(t *testing.T) {
	a, mock := newTestApp(t, Config{FPS: 50})
	a.SetEnabled(false)

	require.NoError(t, a.Start())
	time.Sleep(100 * time.Millisecond)
	a.Stop()

	assert.Zero(t, mock.Calls())
}

func TestApp_EnabledPersists(t *testing.T) {
	s := newTestStore(t)

	a, _ := newTestApp(t, Config{Store: s})
	a.SetEnabled(false)

	b, _ := newTestApp(t, Config{Store: s})
	assert.False(t, b.IsEnabled())
}

func TestApp_Subscribe_Cancel(t *testing.T) {
	a, _ := newTestApp(t, Config{})

	results, cancel := a.Subscribe()
	cancel()
	cancel()

	_, ok := <-results
	assert.False(t, ok, "channel should be closed after cancel")

	// Publishing after cancel must not panic.
	_, err := a.Process(capture.UniformFrame(8, 4, 128, 128, 128))
	assert.NoError(t, err)
}

func TestApp_MotionGate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	a, mock := newTestApp(t, Config{MotionThreshold: 1})

	first, err := a.Process(capture.UniformFrame(64, 48, 16, 128, 128))
	require.NoError(t, err)
	assert.False(t, first.Skipped)

	second, err := a.Process(capture.UniformFrame(64, 48, 16, 128, 128))
	require.NoError(t, err)
	assert.True(t, second.Skipped)

	assert.Equal(t, 1, mock.Calls())
	assert.Equal(t, uint64(1), a.Stats().Skipped)
}
