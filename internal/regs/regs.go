// Package regs models the special runtime registers of the abstract
// machine (allocation pointer, limit pointer, store list, exception
// handler, var pointer) and how each one is bound on a given target:
// either pinned to a machine register and threaded through the calling
// convention, or resident at a fixed offset from the hardware stack
// pointer.
package regs

import (
	"errors"
	"fmt"

	"cgen/internal/lir"
	"cgen/internal/target"
)

// ID identifies one special register.
type ID uint8

const (
	// AllocPtr is the heap allocation pointer.
	AllocPtr ID = iota
	// LimitPtr is the heap-limit pointer.
	LimitPtr
	// StorePtr points to the list of store records.
	StorePtr
	// ExnPtr is the current exception handler.
	ExnPtr
	// VarPtr is the var-pointer register.
	VarPtr
	// NumSpecial is the number of special registers.
	NumSpecial
)

var regNames = [NumSpecial]string{
	"allocPtr", "limitPtr", "storePtr", "exnPtr", "varPtr",
}

func (id ID) String() string {
	if id < NumSpecial {
		return regNames[id]
	}
	return fmt.Sprintf("reg(%d)", uint8(id))
}

// ErrNoBasePtr is returned when the base pointer is requested for a
// cluster that does not carry one.
var ErrNoBasePtr = errors.New("regs: cluster has no base pointer")

// Info describes the binding of one special register on one target.
type Info struct {
	id     ID
	index  int // parameter index in the calling convention; -1 if in memory
	offset int // stack offset for memory-resident registers
}

// ID returns the register's identity.
func (ri *Info) ID() ID { return ri.id }

// Index returns the convention parameter index, or -1 for memory-resident
// registers.
func (ri *Info) Index() int { return ri.index }

// Offset returns the stack offset of a memory-resident register.
func (ri *Info) Offset() int { return ri.offset }

// Name returns the register's symbolic name.
func (ri *Info) Name() string { return ri.id.String() }

// IsMachineReg reports whether the register is pinned to a machine
// register.
func (ri *Info) IsMachineReg() bool { return ri.index >= 0 }

// IsMemReg reports whether the register lives in the runtime frame.
func (ri *Info) IsMemReg() bool { return ri.index < 0 }

// Conventions holds the per-target binding of every special register.
// It is computed once at context creation and never changes within a
// module.
type Conventions struct {
	usesBasePtr bool
	info        [NumSpecial]*Info
	machine     []*Info
}

// NewConventions derives the register bindings for a target.
func NewConventions(tgt *target.Info) *Conventions {
	c := &Conventions{usesBasePtr: tgt.UsesBasePtr()}
	idx := 0
	for i := ID(0); i < NumSpecial; i++ {
		if off := tgt.StkOffset[i]; off != 0 {
			c.info[i] = &Info{id: i, index: -1, offset: off}
			continue
		}
		c.info[i] = &Info{id: i, index: idx}
		idx++
	}
	// The machine-resident specials form the leading parameters of the
	// calling convention, in register order.
	for i := ID(0); i < NumSpecial; i++ {
		if c.info[i].IsMachineReg() {
			c.machine = append(c.machine, c.info[i])
		}
	}
	return c
}

// UsesBasePtr reports whether clusters need the base-address register.
func (c *Conventions) UsesBasePtr() bool { return c.usesBasePtr }

// Info returns the binding for a special register.
func (c *Conventions) Info(id ID) *Info { return c.info[id] }

// MachineRegs returns the machine-resident specials in convention order.
func (c *Conventions) MachineRegs() []*Info { return c.machine }

// NumMachineRegs returns the number of machine-resident specials.
func (c *Conventions) NumMachineRegs() int { return len(c.machine) }

// State tracks the current symbolic value of each machine-resident
// special register while a fragment is being lowered. Memory-resident
// registers never appear here; they are always live in the runtime frame.
type State struct {
	basePtr *lir.Value
	val     [NumSpecial]*lir.Value
}

// Get returns the current value of a register, or nil when the register
// is memory-resident (or not yet set).
func (s *State) Get(id ID) *lir.Value { return s.val[id] }

// Set records a new value for a machine-resident register.
func (s *State) Set(id ID, v *lir.Value) { s.val[id] = v }

// BasePtr returns the cluster's base-address value. Requesting it for a
// cluster that declared none is an unrecoverable error; callers must not
// fall back to a stale or zero value.
func (s *State) BasePtr() (*lir.Value, error) {
	if s.basePtr == nil {
		return nil, ErrNoBasePtr
	}
	return s.basePtr, nil
}

// SetBasePtr installs the base-address value for the cluster.
func (s *State) SetBasePtr(v *lir.Value) { s.basePtr = v }

// CopyFrom restores the register state from a snapshot. The base pointer
// is not copied: it is invariant for the duration of a cluster.
func (s *State) CopyFrom(snap *State) {
	for i := range s.val {
		s.val[i] = snap.val[i]
	}
}

// CopyTo saves the register state into a snapshot.
func (s *State) CopyTo(snap *State) { snap.CopyFrom(s) }

// Clear resets all register values (the base pointer included).
func (s *State) Clear() {
	s.basePtr = nil
	for i := range s.val {
		s.val[i] = nil
	}
}
