// Package apriltag is the boundary to the external fiducial-marker detection
// library. It defines the handle-oriented operations the detector session
// drives and provides backends for them.
package apriltag

import "fmt"

// Family identifies a fixed marker encoding.
type Family int

const (
	Tag36h11 Family = iota + 1
	Tag25h9
	TagCircle21h7
	Tag16h5
	TagStandard41h12
	TagCustom48h12
)

var familyNames = map[Family]string{
	Tag36h11:         "tag36h11",
	Tag25h9:          "tag25h9",
	TagCircle21h7:    "tagCircle21h7",
	Tag16h5:          "tag16h5",
	TagStandard41h12: "tagStandard41h12",
	TagCustom48h12:   "tagCustom48h12",
}

func (f Family) String() string {
	if name, ok := familyNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Family(%d)", int(f))
}

// Valid reports whether f is one of the known families.
func (f Family) Valid() bool {
	_, ok := familyNames[f]
	return ok
}

// ParseFamily maps a family name such as "tag36h11" to its Family.
func ParseFamily(name string) (Family, error) {
	for f, n := range familyNames {
		if n == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unrecognized tag family %q", name)
}

// Families returns every known family in declaration order.
func Families() []Family {
	return []Family{Tag36h11, Tag25h9, TagCircle21h7, Tag16h5, TagStandard41h12, TagCustom48h12}
}

// Unsupported returns the known families lib cannot build.
func Unsupported(lib Library) []Family {
	var out []Family
	for _, f := range Families() {
		if !lib.Supports(f) {
			out = append(out, f)
		}
	}
	return out
}
