package yuv

import (
	"fmt"
	"runtime"
	"sync"
)

// parallelMinPixels is the frame size below which Convert stays on the
// calling goroutine.
const parallelMinPixels = 64 * 1024

// FrameSize returns the byte length of an NV21 frame.
func FrameSize(width, height int) int {
	return width*height + width*height/2
}

// Luma returns the luma plane of an NV21 frame without copying it.
func Luma(src []byte, width, height int) ([]byte, error) {
	if err := checkDims(width, height); err != nil {
		return nil, err
	}
	if len(src) < width*height {
		return nil, &InputError{
			Field:    "luma plane length",
			Expected: fmt.Sprintf(">= %d bytes", width*height),
			Actual:   fmt.Sprintf("%d bytes", len(src)),
		}
	}
	return src[:width*height : width*height], nil
}

// Convert writes the NV21 frame src (width×height) into dst as opaque
// RGBA, rotated 90° clockwise into portrait orientation.
//
// Input pixel (i, j) lands at dst.Pix[(i+1)*height - j - 1]. The arithmetic
// is fixed point and bit-compatible with the classic 10-bit integer
// BT.601 conversion. dst is validated before anything is written.
func Convert(src []byte, width, height int, dst *Image) error {
	return ConvertRows(src, width, height, dst, 0)
}

// ConvertRows is Convert with an explicit worker count. workers <= 0 picks
// one worker per CPU for large frames and a single worker otherwise.
func ConvertRows(src []byte, width, height int, dst *Image, workers int) error {
	if err := validate(src, width, height, dst); err != nil {
		return err
	}

	if workers <= 0 {
		workers = 1
		if width*height >= parallelMinPixels {
			workers = runtime.NumCPU()
		}
	}
	if workers > height {
		workers = height
	}

	if workers == 1 {
		convertRows(src, width, height, dst.Pix, 0, height)
		return nil
	}

	band := (height + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < height; start += band {
		end := min(start+band, height)
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			convertRows(src, width, height, dst.Pix, start, end)
		}(start, end)
	}
	wg.Wait()

	return nil
}

func convertRows(src []byte, width, height int, dst []uint32, rowStart, rowEnd int) {
	uvStart := width * height
	for j := rowStart; j < rowEnd; j++ {
		row := src[j*width : (j+1)*width]
		uvRow := uvStart + (j>>1)*width
		for i := 0; i < width; i++ {
			offset := uvRow + (i &^ 1)
			dst[(i+1)*height-j-1] = pixel(int(row[i]), int(src[offset+1]), int(src[offset]))
		}
	}
}

// pixel converts one luma sample and its co-sited chroma pair.
func pixel(y, u, v int) uint32 {
	if y < 16 {
		y = 16
	}

	a0 := 1192 * (y - 16)
	a1 := 1634 * (v - 128)
	a2 := 832 * (v - 128)
	a3 := 400 * (u - 128)
	a4 := 2066 * (u - 128)

	r := clamp((a0 + a1) >> 10)
	g := clamp((a0 - a2 - a3) >> 10)
	b := clamp((a0 + a4) >> 10)

	return 0xff000000 | uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

func clamp(c int) int {
	if c < 0 {
		return 0
	}
	if c > 255 {
		return 255
	}
	return c
}

func checkDims(width, height int) error {
	if width <= 0 || height <= 0 || width%2 != 0 || height%2 != 0 {
		return &InputError{
			Field:    "frame dimensions",
			Expected: "positive even width and height",
			Actual:   fmt.Sprintf("%d x %d", width, height),
		}
	}
	return nil
}

func validate(src []byte, width, height int, dst *Image) error {
	if err := checkDims(width, height); err != nil {
		return err
	}

	if want := FrameSize(width, height); len(src) < want {
		return &InputError{
			Field:    "frame length",
			Expected: fmt.Sprintf(">= %d bytes", want),
			Actual:   fmt.Sprintf("%d bytes", len(src)),
		}
	}

	if dst == nil {
		return &InputError{Field: "destination", Expected: "non-nil image", Actual: "nil"}
	}

	if dst.Format != FormatRGBA8888 {
		return &InputError{
			Field:    "destination format",
			Expected: FormatRGBA8888.String(),
			Actual:   dst.Format.String(),
		}
	}

	if dst.Width*dst.Height != width*height || len(dst.Pix) != width*height {
		return &InputError{
			Field:    "destination size",
			Expected: fmt.Sprintf("%d pixels", width*height),
			Actual:   fmt.Sprintf("%d x %d (%d pixels)", dst.Width, dst.Height, len(dst.Pix)),
		}
	}

	return nil
}

// FromI420 interleaves a planar I420 buffer (Y, then U, then V) into a new
// NV21 frame.
func FromI420(i420 []byte, width, height int) ([]byte, error) {
	if err := checkDims(width, height); err != nil {
		return nil, err
	}
	size := FrameSize(width, height)
	if len(i420) < size {
		return nil, &InputError{
			Field:    "I420 length",
			Expected: fmt.Sprintf(">= %d bytes", size),
			Actual:   fmt.Sprintf("%d bytes", len(i420)),
		}
	}

	lumaLen := width * height
	quarter := lumaLen / 4
	u := i420[lumaLen : lumaLen+quarter]
	v := i420[lumaLen+quarter : lumaLen+2*quarter]

	out := make([]byte, size)
	copy(out, i420[:lumaLen])
	vu := out[lumaLen:]
	for k := 0; k < quarter; k++ {
		vu[2*k] = v[k]
		vu[2*k+1] = u[k]
	}

	return out, nil
}
