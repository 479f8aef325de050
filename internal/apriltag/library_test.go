package apriltag

import (
	"errors"
	"runtime"
	"sync"
	"testing"

	"gocv.io/x/gocv"
)

func TestParseFamily(t *testing.T) {
	for _, f := range Families() {
		t.Run(f.String(), func(t *testing.T) {
			got, err := ParseFamily(f.String())
			if err != nil {
				t.Fatalf("ParseFamily(%q) error = %v", f, err)
			}
			if got != f {
				t.Errorf("ParseFamily(%q) = %v", f, got)
			}
			if !got.Valid() {
				t.Errorf("%v should be valid", got)
			}
		})
	}

	for _, name := range []string{"", "tag36h10", "TAG36H11", "36h11"} {
		if _, err := ParseFamily(name); err == nil {
			t.Errorf("ParseFamily(%q) should fail", name)
		}
	}

	if Family(0).Valid() || Family(99).Valid() {
		t.Error("out-of-range families should not be valid")
	}
}

func TestDetections_Release(t *testing.T) {
	calls := 0
	list := NewDetections([]*Detection{{ID: 1}, {ID: 2}}, func() { calls++ })

	if list.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", list.Len())
	}
	det, err := list.At(1)
	if err != nil || det.ID != 2 {
		t.Fatalf("At(1) = %v, %v", det, err)
	}

	list.Release()
	list.Release()

	if calls != 1 {
		t.Errorf("release callback ran %d times, want 1", calls)
	}
	if !list.Released() {
		t.Error("Released() should be true")
	}
	if list.Len() != 0 {
		t.Errorf("Len() after release = %d", list.Len())
	}
	if _, err := list.At(0); !errors.Is(err, ErrReleased) {
		t.Errorf("At() after release error = %v, want ErrReleased", err)
	}
}

func TestFakeLibrary_Lifecycle(t *testing.T) {
	lib := NewFakeLibrary()

	fam, err := lib.NewFamily(Tag25h9)
	if err != nil {
		t.Fatalf("NewFamily() error = %v", err)
	}
	det, err := lib.NewDetector()
	if err != nil {
		t.Fatalf("NewDetector() error = %v", err)
	}
	if err := lib.AttachFamily(det, fam, 1); err != nil {
		t.Fatalf("AttachFamily() error = %v", err)
	}

	if lib.LiveFamilies(Tag25h9) != 1 || lib.LiveDetectors() != 1 {
		t.Fatalf("live = %d families, %d detectors", lib.LiveFamilies(Tag25h9), lib.LiveDetectors())
	}

	t.Run("mismatched destructor is refused", func(t *testing.T) {
		lib.DestroyFamily(fam, Tag36h11)
		if lib.LiveFamilies(Tag25h9) != 1 {
			t.Error("family destroyed with the wrong destructor")
		}
	})

	lib.DestroyDetector(det)
	lib.DestroyFamily(fam, Tag25h9)

	if lib.LiveFamilyTotal() != 0 || lib.LiveDetectors() != 0 {
		t.Errorf("handles still live after destroy")
	}

	if _, err := lib.Detect(det, Gray{}); err == nil {
		t.Error("Detect on a destroyed detector should fail")
	}
}

func TestFakeLibrary_Unsupported(t *testing.T) {
	lib := NewFakeLibrary()
	lib.SetSupported(Tag36h11)

	if lib.Supports(Tag16h5) {
		t.Error("Tag16h5 should be unsupported")
	}
	if _, err := lib.NewFamily(Tag16h5); !errors.Is(err, ErrUnsupportedFamily) {
		t.Errorf("NewFamily() error = %v, want ErrUnsupportedFamily", err)
	}
}

func TestArucoLibrary_Supports(t *testing.T) {
	lib := NewArucoLibrary()

	for _, f := range []Family{Tag16h5, Tag25h9, Tag36h11} {
		if !lib.Supports(f) {
			t.Errorf("%v should be supported", f)
		}
	}
	for _, f := range []Family{TagCircle21h7, TagStandard41h12, TagCustom48h12} {
		if lib.Supports(f) {
			t.Errorf("%v should not be supported", f)
		}
		if _, err := lib.NewFamily(f); !errors.Is(err, ErrUnsupportedFamily) {
			t.Errorf("NewFamily(%v) error = %v", f, err)
		}
	}
	if lib.Layout() != StandardLayout {
		t.Errorf("Layout() = %+v", lib.Layout())
	}

	want := []Family{TagCircle21h7, TagStandard41h12, TagCustom48h12}
	got := Unsupported(lib)
	if len(got) != len(want) {
		t.Fatalf("Unsupported() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Unsupported()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if got := Unsupported(NewFakeLibrary()); len(got) != 0 {
		t.Errorf("Unsupported(fake) = %v, want none", got)
	}
}

func TestArucoDetector_SetThreads(t *testing.T) {
	prev := gocv.GetNumThreads()
	t.Cleanup(func() { gocv.SetNumThreads(prev) })

	lib := NewArucoLibrary()
	d, err := lib.NewDetector()
	if err != nil {
		t.Fatalf("NewDetector() error = %v", err)
	}
	defer lib.DestroyDetector(d)

	d.SetThreads(3)

	if got := d.(*arucoDetector).threads; got != 3 {
		t.Errorf("threads = %d, want 3", got)
	}
	// OpenCV built without a parallel backend always reports 1.
	if got := gocv.GetNumThreads(); got != 3 && got != 1 {
		t.Errorf("GetNumThreads() = %d, want 3", got)
	}
}

func TestFakeLibrary_MaxOverlap(t *testing.T) {
	lib := NewFakeLibrary()
	fam, _ := lib.NewFamily(Tag36h11)
	det, _ := lib.NewDetector()
	if err := lib.AttachFamily(det, fam, 0); err != nil {
		t.Fatalf("AttachFamily() error = %v", err)
	}

	gate := make(chan struct{})
	lib.SetGate(gate)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if list, err := lib.Detect(det, Gray{Width: 1, Height: 1, Stride: 1, Buf: []byte{0}}); err == nil {
				list.Release()
			}
		}()
	}
	for lib.MaxOverlap() < 2 {
		runtime.Gosched()
	}
	close(gate)
	wg.Wait()

	if got := lib.MaxOverlap(); got != 2 {
		t.Errorf("MaxOverlap() = %d, want 2", got)
	}
}
