//go:build linux

package execmem

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Alloc maps a fresh anonymous read+write region of at least size bytes,
// rounded up to the page size. release unmaps it.
func Alloc(size int) (mem []byte, release func(), err error) {
	if size <= 0 {
		return nil, nil, fmt.Errorf("execmem: bad size %d", size)
	}
	pageSize := unix.Getpagesize()
	allocSize := (size + pageSize - 1) / pageSize * pageSize
	mem, err = unix.Mmap(-1, 0, allocSize,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, nil, fmt.Errorf("execmem: mmap: %w", err)
	}
	return mem, func() { _ = unix.Munmap(mem) }, nil
}

// Seal flips a region returned by Alloc to read+execute. The region must
// not be written afterwards.
func Seal(mem []byte) error {
	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return fmt.Errorf("execmem: mprotect: %w", err)
	}
	return nil
}

// Entry returns the address of the first byte of a sealed region.
func Entry(mem []byte) uintptr { return uintptr(unsafe.Pointer(&mem[0])) }

// Load copies a position-independent image into executable memory and
// returns its entry address. The entry is invalid after release.
func Load(code []byte) (entry uintptr, release func(), err error) {
	mem, release, err := Alloc(len(code))
	if err != nil {
		return 0, nil, err
	}
	copy(mem, code)
	if err := Seal(mem); err != nil {
		release()
		return 0, nil, err
	}
	return Entry(mem), release, nil
}
