//go:build !(cgo && apriltag)

package apriltag

// Default returns the backend compiled into this binary. Build with
// -tags apriltag to link libapriltag instead of OpenCV.
func Default() Library {
	return NewArucoLibrary()
}
