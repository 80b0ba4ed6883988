// Package target holds the static per-architecture facts that the rest of
// the code generator consults: word size, byte order, the special-register
// stack layout, and the relocation vocabulary tag for the object-file side.
package target

import "encoding/binary"

// Arch enumerates the supported target architectures.
type Arch uint8

const (
	// AMD64 is the x86-64 architecture.
	AMD64 Arch = iota
	// ARM64 is the AArch64 architecture.
	ARM64
)

func (a Arch) String() string {
	switch a {
	case AMD64:
		return "x86_64"
	case ARM64:
		return "aarch64"
	}
	return "unknown"
}

// ObjFormat tags the object-file format used for a target.
type ObjFormat uint8

const (
	// ELF is the only object-file format currently emitted.
	ELF ObjFormat = iota
)

// NumSpecial is the number of special runtime registers threaded through
// the calling convention. It mirrors regs.NumSpecial; the duplication
// avoids an import cycle between the two packages.
const NumSpecial = 5

// Info is the immutable descriptor for one target architecture. An Info is
// looked up once per compilation session and never mutated.
type Info struct {
	Name      string           // canonical target name
	Aliases   []string         // accepted alternate spellings
	Triple    string           // target triple string
	Arch      Arch             // architecture tag
	Format    ObjFormat        // object-file format
	ByteOrder binary.ByteOrder // byte order of the target
	WordSzB   int              // machine word size in bytes

	NumRegArgs     int  // argument slots in the calling convention
	NumCalleeSaves int  // registers carrying callee-save values
	HasPCRel       bool // target supports PC-relative addressing

	// StkOffset gives, per special register, the byte offset from the
	// hardware stack pointer where the register lives. A zero entry means
	// the register is machine-resident instead.
	StkOffset [NumSpecial]int

	CallGCOffset     int // stack offset of the call-gc entry address
	RaiseOvflwOffset int // stack offset of the raise-overflow entry address
	AllocSlopSzB     int // allocation slop in bytes
}

// WordSz returns the machine word size in bits.
func (t *Info) WordSz() int { return 8 * t.WordSzB }

// Is64Bit reports whether the target has 8-byte words.
func (t *Info) Is64Bit() bool { return t.WordSzB == 8 }

// RoundToWordSz rounds nBytes up to the next multiple of the word size.
func (t *Info) RoundToWordSz(nBytes uint64) uint64 {
	mask := uint64(t.WordSzB - 1)
	return (nBytes + mask) &^ mask
}

// NumGCRoots returns the number of garbage-collection roots: the standard
// link, closure, continuation, and argument slots plus the callee saves.
func (t *Info) NumGCRoots() int { return t.NumCalleeSaves + 4 }

// UsesBasePtr reports whether clusters on this target need an explicit
// base-address register for position-independent label arithmetic.
func (t *Info) UsesBasePtr() bool { return !t.HasPCRel }
