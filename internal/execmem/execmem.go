// Package execmem places compiled code into executable memory. Images
// with absolute relocations need the load address before patching, so
// the loader is two-phase: Alloc a writable region, patch into it, then
// Seal it read+execute. Load is the one-shot convenience for
// position-independent images.
package execmem

import "errors"

// ErrUnsupported is returned on platforms without an exec loader.
var ErrUnsupported = errors.New("execmem: unsupported platform")
