//go:build !linux

package execmem

// Alloc is unavailable on this platform.
func Alloc(size int) (mem []byte, release func(), err error) {
	return nil, nil, ErrUnsupported
}

// Seal is unavailable on this platform.
func Seal(mem []byte) error { return ErrUnsupported }

// Entry is unavailable on this platform.
func Entry(mem []byte) uintptr { return 0 }

// Load is unavailable on this platform.
func Load(code []byte) (entry uintptr, release func(), err error) {
	return 0, nil, ErrUnsupported
}
