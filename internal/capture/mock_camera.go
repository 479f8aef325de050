package capture

import (
	"fmt"
	"sync"

	"github.com/ayusman/tagsight/internal/yuv"
)

// MockCamera plays back in-memory NV21 frames for testing
type MockCamera struct {
	frames  []*Frame
	index   int
	loop    bool
	fps     int
	mu      sync.Mutex
	running bool
}

func NewMockCamera(frames []*Frame, loop bool) *MockCamera {
	return &MockCamera{
		frames: frames,
		loop:   loop,
		fps:    15,
	}
}

func (c *MockCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = true
	c.index = 0
	return nil
}

func (c *MockCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	return nil
}

func (c *MockCamera) ReadFrame() (*Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil, ErrCameraNotOpen
	}

	if len(c.frames) == 0 {
		return nil, fmt.Errorf("no frames available")
	}

	if c.index >= len(c.frames) {
		if c.loop {
			c.index = 0
		} else {
			return nil, fmt.Errorf("no more frames")
		}
	}

	// Copy the data so consumers can't modify the recording
	src := c.frames[c.index]
	c.index++

	return NewFrame(append([]byte(nil), src.Data...), src.Width, src.Height), nil
}

func (c *MockCamera) SetFPS(fps int) {
	if fps <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fps = fps
}

func (c *MockCamera) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fps
}

func (c *MockCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// SetFrames replaces the frame sequence
func (c *MockCamera) SetFrames(frames []*Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = frames
	c.index = 0
}

// Reset restarts playback from the beginning
func (c *MockCamera) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = 0
}

// UniformFrame returns an NV21 frame with every sample set to the given
// luma and chroma values.
func UniformFrame(width, height int, y, u, v byte) *Frame {
	data := make([]byte, yuv.FrameSize(width, height))
	planeSize := width * height
	for i := 0; i < planeSize; i++ {
		data[i] = y
	}
	for i := planeSize; i+1 < len(data); i += 2 {
		data[i] = v
		data[i+1] = u
	}
	return NewFrame(data, width, height)
}

// SquareFrame returns a light gray NV21 frame with a dark square of side size
// whose top-left corner is at (x, y).
func SquareFrame(width, height, x, y, size int) *Frame {
	f := UniformFrame(width, height, 200, 128, 128)
	for row := y; row < y+size && row < height; row++ {
		for col := x; col < x+size && col < width; col++ {
			f.Data[row*width+col] = 20
		}
	}
	return f
}
