package target

import (
	"encoding/binary"
	"fmt"
	"runtime"
	"sort"
)

// The registry is process-wide state with an init-once, no-teardown
// lifecycle. Initialize must be called before any lookup; it is idempotent
// and must never be re-run concurrently with lookups (the whole pipeline
// is single-threaded by design).

var (
	registered  bool
	byName      map[string]*Info
	orderedInfo []*Info
)

// amd64Info keeps StorePtr, ExnPtr, and VarPtr in the runtime frame
// because x86-64 does not have enough free registers once the argument
// slots are pinned.
var amd64Info = Info{
	Name:           "x86_64",
	Aliases:        []string{"amd64", "x86-64"},
	Triple:         "x86_64-unknown-linux-gnu",
	Arch:           AMD64,
	Format:         ELF,
	ByteOrder:      binary.LittleEndian,
	WordSzB:        8,
	NumRegArgs:     6,
	NumCalleeSaves: 3,
	HasPCRel:       true,
	StkOffset: [NumSpecial]int{
		0,  // allocPtr: machine resident
		0,  // limitPtr: machine resident
		24, // storePtr
		32, // exnPtr
		40, // varPtr
	},
	CallGCOffset:     8,
	RaiseOvflwOffset: 16,
	AllocSlopSzB:     1024,
}

// arm64Info has registers to spare, so every special register is
// machine resident.
var arm64Info = Info{
	Name:           "aarch64",
	Aliases:        []string{"arm64"},
	Triple:         "aarch64-unknown-linux-gnu",
	Arch:           ARM64,
	Format:         ELF,
	ByteOrder:      binary.LittleEndian,
	WordSzB:        8,
	NumRegArgs:     8,
	NumCalleeSaves: 3,
	HasPCRel:       true,
	StkOffset:      [NumSpecial]int{},

	CallGCOffset:     8,
	RaiseOvflwOffset: 16,
	AllocSlopSzB:     1024,
}

// Initialize registers the built-in targets. It must run exactly once
// before any Context is created; later calls are no-ops.
func Initialize() {
	if registered {
		return
	}
	byName = make(map[string]*Info)
	for _, info := range []*Info{&amd64Info, &arm64Info} {
		byName[info.Name] = info
		for _, alias := range info.Aliases {
			byName[alias] = info
		}
		orderedInfo = append(orderedInfo, info)
	}
	registered = true
}

// Lookup resolves a target by name or alias.
func Lookup(name string) (*Info, error) {
	if !registered {
		return nil, fmt.Errorf("target: registry not initialized")
	}
	info, ok := byName[name]
	if !ok {
		return nil, fmt.Errorf("target: unknown or unsupported target %q", name)
	}
	return info, nil
}

// Native returns the descriptor for the host architecture, or an error if
// the host is not a supported target.
func Native() (*Info, error) {
	return Lookup(runtime.GOARCH)
}

// Names returns the canonical names of all registered targets, sorted.
func Names() []string {
	names := make([]string, 0, len(orderedInfo))
	for _, info := range orderedInfo {
		names = append(names, info.Name)
	}
	sort.Strings(names)
	return names
}
