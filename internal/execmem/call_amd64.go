//go:build linux && amd64

package execmem

// Call invokes compiled code at entry through a trampoline that reserves
// the runtime frame area in its own stack frame. Intended for test
// fixtures: the callee must leave the Go ABI callee-saved registers
// intact and return with RET, result in RAX.
func Call(entry uintptr) uint64 {
	return call(entry)
}

// implemented in call_amd64.s
func call(entry uintptr) uint64
