//go:build cgo && apriltag

package apriltag

/*
#cgo pkg-config: apriltag

#include <apriltag/apriltag.h>
#include <apriltag/tag36h11.h>
#include <apriltag/tag25h9.h>
#include <apriltag/tag16h5.h>
#include <apriltag/tagCircle21h7.h>
#include <apriltag/tagStandard41h12.h>
#include <apriltag/tagCustom48h12.h>

static int tagsight_detections_len(zarray_t *za) {
	return zarray_size(za);
}

static apriltag_detection_t *tagsight_detection_at(zarray_t *za, int i) {
	apriltag_detection_t *det;
	zarray_get(za, i, &det);
	return det;
}

static zarray_t *tagsight_detect(apriltag_detector_t *td, int width, int height, int stride, uint8_t *buf) {
	image_u8_t im = { .width = width, .height = height, .stride = stride, .buf = buf };
	return apriltag_detector_detect(td, &im);
}
*/
import "C"

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"
)

// nativeFamilies pairs every family with its own constructor and destructor.
var nativeFamilies = map[Family]struct {
	create  func() *C.apriltag_family_t
	destroy func(*C.apriltag_family_t)
}{
	Tag36h11:         {func() *C.apriltag_family_t { return C.tag36h11_create() }, func(f *C.apriltag_family_t) { C.tag36h11_destroy(f) }},
	Tag25h9:          {func() *C.apriltag_family_t { return C.tag25h9_create() }, func(f *C.apriltag_family_t) { C.tag25h9_destroy(f) }},
	TagCircle21h7:    {func() *C.apriltag_family_t { return C.tagCircle21h7_create() }, func(f *C.apriltag_family_t) { C.tagCircle21h7_destroy(f) }},
	Tag16h5:          {func() *C.apriltag_family_t { return C.tag16h5_create() }, func(f *C.apriltag_family_t) { C.tag16h5_destroy(f) }},
	TagStandard41h12: {func() *C.apriltag_family_t { return C.tagStandard41h12_create() }, func(f *C.apriltag_family_t) { C.tagStandard41h12_destroy(f) }},
	TagCustom48h12:   {func() *C.apriltag_family_t { return C.tagCustom48h12_create() }, func(f *C.apriltag_family_t) { C.tagCustom48h12_destroy(f) }},
}

// NativeLibrary implements Library over libapriltag through cgo.
type NativeLibrary struct{}

// NewNativeLibrary returns the libapriltag-backed library.
func NewNativeLibrary() *NativeLibrary {
	return &NativeLibrary{}
}

type nativeFamily struct {
	kind Family
	tf   *C.apriltag_family_t
}

func (f *nativeFamily) Family() Family { return f.kind }

type nativeDetector struct {
	mu sync.Mutex
	td *C.apriltag_detector_t
}

func (d *nativeDetector) SetDecimation(factor float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.td.quad_decimate = C.float(factor)
}

func (d *nativeDetector) SetSigma(sigma float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.td.quad_sigma = C.float(sigma)
}

func (d *nativeDetector) SetThreads(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.td.nthreads = C.int(n)
}

func (l *NativeLibrary) Supports(f Family) bool {
	_, ok := nativeFamilies[f]
	return ok
}

func (l *NativeLibrary) NewFamily(f Family) (FamilyHandle, error) {
	pair, ok := nativeFamilies[f]
	if !ok {
		return nil, fmt.Errorf("%s: %w", f, ErrUnsupportedFamily)
	}
	tf := pair.create()
	if tf == nil {
		return nil, fmt.Errorf("create %s family failed", f)
	}
	return &nativeFamily{kind: f, tf: tf}, nil
}

func (l *NativeLibrary) DestroyFamily(h FamilyHandle, f Family) {
	fam, ok := h.(*nativeFamily)
	if !ok || fam.tf == nil {
		return
	}
	nativeFamilies[f].destroy(fam.tf)
	fam.tf = nil
}

func (l *NativeLibrary) NewDetector() (Detector, error) {
	td := C.apriltag_detector_create()
	if td == nil {
		return nil, errors.New("apriltag_detector_create returned nil")
	}
	return &nativeDetector{td: td}, nil
}

func (l *NativeLibrary) DestroyDetector(d Detector) {
	nd, ok := d.(*nativeDetector)
	if !ok || nd.td == nil {
		return
	}
	C.apriltag_detector_destroy(nd.td)
	nd.td = nil
}

func (l *NativeLibrary) AttachFamily(d Detector, h FamilyHandle, errorBits int) error {
	nd, ok := d.(*nativeDetector)
	if !ok || nd.td == nil {
		return errors.New("detector was not created by this library")
	}
	fam, ok := h.(*nativeFamily)
	if !ok || fam.tf == nil {
		return errors.New("family was not created by this library")
	}
	C.apriltag_detector_add_family_bits(nd.td, fam.tf, C.int(errorBits))
	return nil
}

func (l *NativeLibrary) Layout() Layout {
	return StandardLayout
}

func (l *NativeLibrary) Detect(d Detector, img Gray) (*Detections, error) {
	nd, ok := d.(*nativeDetector)
	if !ok || nd.td == nil {
		return nil, errors.New("detector was not created by this library")
	}
	if len(img.Buf) < img.Stride*img.Height || img.Height == 0 {
		return nil, fmt.Errorf("grayscale buffer holds %d bytes, need %d", len(img.Buf), img.Stride*img.Height)
	}

	// apriltag_detector_t keeps per-call scratch state.
	nd.mu.Lock()
	defer nd.mu.Unlock()

	za := C.tagsight_detect(nd.td, C.int(img.Width), C.int(img.Height), C.int(img.Stride),
		(*C.uint8_t)(unsafe.Pointer(&img.Buf[0])))
	if za == nil {
		return nil, errors.New("apriltag_detector_detect returned nil")
	}

	n := int(C.tagsight_detections_len(za))
	items := make([]*Detection, n)
	for i := 0; i < n; i++ {
		det := C.tagsight_detection_at(za, C.int(i))
		items[i] = &Detection{
			ID:      int(det.id),
			Hamming: int(det.hamming),
			C:       unsafe.Slice((*float64)(unsafe.Pointer(&det.c[0])), 2),
			P:       unsafe.Slice((*[2]float64)(unsafe.Pointer(&det.p[0])), 4),
		}
	}

	return NewDetections(items, func() { C.apriltag_detections_destroy(za) }), nil
}
