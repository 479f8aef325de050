package detector

import (
	"fmt"

	"github.com/ayusman/tagsight/internal/apriltag"
)

// Record is one detected marker.
type Record struct {
	// ID is the decoded payload.
	ID int `json:"id"`
	// Hamming is the number of corrected bit errors.
	Hamming int `json:"hamming"`
	// Center is (x, y) in input image coordinates.
	Center [2]float64 `json:"c"`
	// Corners holds four (x, y) pairs flattened as x0 y0 x1 y1 ..., in the
	// library's winding order.
	Corners [8]float64 `json:"p"`
}

// Corner returns corner k (0-3).
func (r Record) Corner(k int) (x, y float64) {
	return r.Corners[2*k], r.Corners[2*k+1]
}

// Marshaller copies opaque detection lists into Records.
type Marshaller struct {
	layout apriltag.Layout
}

// NewMarshaller checks once that layout fits Record and returns a
// BindingError if it does not.
func NewMarshaller(layout apriltag.Layout) (*Marshaller, error) {
	var r Record
	if layout.CenterLen != len(r.Center) {
		return nil, &BindingError{Field: "c", Want: len(r.Center), Got: layout.CenterLen}
	}
	if layout.CornerDims != 2 {
		return nil, &BindingError{Field: "p dims", Want: 2, Got: layout.CornerDims}
	}
	if n := layout.CornerCount * layout.CornerDims; n != len(r.Corners) {
		return nil, &BindingError{Field: "p", Want: len(r.Corners), Got: n}
	}
	return &Marshaller{layout: layout}, nil
}

// Marshal copies every entry of list, in order, then releases list. The
// result is never nil. On error the list is still released and no partial
// result is returned.
func (m *Marshaller) Marshal(list *apriltag.Detections) ([]Record, error) {
	if list == nil {
		return []Record{}, nil
	}
	defer list.Release()

	n := list.Len()
	records := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		det, err := list.At(i)
		if err != nil {
			return nil, fmt.Errorf("read detection %d: %w", i, err)
		}
		if len(det.C) != m.layout.CenterLen {
			return nil, &BindingError{Field: fmt.Sprintf("c of detection %d", i), Want: m.layout.CenterLen, Got: len(det.C)}
		}
		if len(det.P) != m.layout.CornerCount {
			return nil, &BindingError{Field: fmt.Sprintf("p of detection %d", i), Want: m.layout.CornerCount, Got: len(det.P)}
		}

		r := Record{ID: det.ID, Hamming: det.Hamming}
		copy(r.Center[:], det.C)
		for k, pt := range det.P {
			r.Corners[2*k] = pt[0]
			r.Corners[2*k+1] = pt[1]
		}
		records = append(records, r)
	}

	return records, nil
}
