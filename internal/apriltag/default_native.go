//go:build cgo && apriltag

package apriltag

// Default returns the libapriltag backend.
func Default() Library {
	return NewNativeLibrary()
}
