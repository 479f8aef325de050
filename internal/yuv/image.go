// Package yuv converts NV21 camera frames into packed RGBA display images.
package yuv

import (
	"errors"
	"fmt"
	"image"
)

// PixelFormat identifies the layout of a destination pixel buffer.
type PixelFormat int

const (
	// FormatUnknown is the zero value and is never accepted by Convert.
	FormatUnknown PixelFormat = iota
	// FormatRGBA8888 stores one opaque 32-bit 0xAARRGGBB word per pixel.
	FormatRGBA8888
	// FormatRGB565 is a 16-bit format, listed so callers can describe buffers
	// that Convert must reject.
	FormatRGB565
)

func (f PixelFormat) String() string {
	switch f {
	case FormatRGBA8888:
		return "RGBA_8888"
	case FormatRGB565:
		return "RGB_565"
	default:
		return fmt.Sprintf("PixelFormat(%d)", int(f))
	}
}

// ErrInvalidInput is wrapped by every InputError.
var ErrInvalidInput = errors.New("invalid conversion input")

// InputError reports a malformed frame or destination. Nothing is written
// to the destination when Convert returns an InputError.
type InputError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("incorrect %s: expected %s, got %s", e.Field, e.Expected, e.Actual)
}

func (e *InputError) Unwrap() error {
	return ErrInvalidInput
}

// Image is a packed-pixel display buffer. It is logically rotated 90° from
// the camera frame: a width×height frame produces an image Width=height
// pixels wide and Height=width pixels tall.
type Image struct {
	Pix    []uint32
	Width  int
	Height int
	Format PixelFormat
}

// NewImage allocates a destination sized for a frameWidth×frameHeight frame.
func NewImage(frameWidth, frameHeight int) *Image {
	return &Image{
		Pix:    make([]uint32, frameWidth*frameHeight),
		Width:  frameHeight,
		Height: frameWidth,
		Format: FormatRGBA8888,
	}
}

// Bytes returns the pixels in R, G, B, A byte order.
func (m *Image) Bytes() []byte {
	out := make([]byte, len(m.Pix)*4)
	for i, p := range m.Pix {
		out[i*4+0] = byte(p >> 16)
		out[i*4+1] = byte(p >> 8)
		out[i*4+2] = byte(p)
		out[i*4+3] = byte(p >> 24)
	}
	return out
}

// NRGBA copies the image into a standard library image for encoding.
func (m *Image) NRGBA() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, m.Width, m.Height))
	copy(img.Pix, m.Bytes())
	return img
}
