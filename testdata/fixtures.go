// Package testdata builds synthetic camera frames for pipeline tests.
package testdata

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/tagsight/internal/capture"
	"github.com/ayusman/tagsight/internal/yuv"
)

// MovingSquare returns n frames of a dark square sliding right by step
// pixels per frame, wrapping at the right edge.
func MovingSquare(width, height, size, step, n int) []*capture.Frame {
	frames := make([]*capture.Frame, 0, n)
	y := (height - size) / 2
	for i := 0; i < n; i++ {
		x := (i * step) % (width - size)
		frames = append(frames, capture.SquareFrame(width, height, x, y, size))
	}
	return frames
}

// StillSequence returns n identical frames.
func StillSequence(width, height, n int) []*capture.Frame {
	frames := make([]*capture.Frame, 0, n)
	for i := 0; i < n; i++ {
		frames = append(frames, capture.UniformFrame(width, height, 128, 128, 128))
	}
	return frames
}

// DrawnFrame renders filled rectangles on a white BGR canvas and converts
// the result to an NV21 frame.
func DrawnFrame(width, height int, rects ...image.Rectangle) (*capture.Frame, error) {
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), height, width, gocv.MatTypeCV8UC3)
	defer mat.Close()

	black := color.RGBA{A: 255}
	for _, r := range rects {
		gocv.Rectangle(&mat, r, black, -1)
	}
	return FromMat(mat)
}

// FromMat converts a BGR Mat with even dimensions to an NV21 frame.
func FromMat(mat gocv.Mat) (*capture.Frame, error) {
	width, height := mat.Cols(), mat.Rows()

	i420 := gocv.NewMat()
	defer i420.Close()
	if err := gocv.CvtColor(mat, &i420, gocv.ColorBGRToYUVI420); err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}

	data, err := yuv.FromI420(i420.ToBytes(), width, height)
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	return capture.NewFrame(data, width, height), nil
}
