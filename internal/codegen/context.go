// Package codegen lowers a CFG compilation unit into the low-level IR,
// one module at a time. The Context owns all per-module state: the symbol
// tables, the special-register convention for the current cluster, and
// the module under construction.
package codegen

import (
	"fmt"

	"cgen/internal/cfg"
	"cgen/internal/lir"
	"cgen/internal/pwrite"
	"cgen/internal/regs"
	"cgen/internal/target"
)

// stdContUnusedSlots is the number of convention slots that the
// standard-continuation entry leaves unused (the link and closure slots
// of the standard-function convention). They are padded with word
// parameters so both entry conventions have a stable physical layout.
const stdContUnusedSlots = 2

// Context orchestrates code generation for one module. It is
// single-threaded and owned by one compilation session.
type Context struct {
	tgt  *target.Info
	conv *regs.Conventions

	module *lir.Module
	build  lir.Builder
	objBuf pwrite.Buffer

	curFn      *lir.Func
	curCluster *cfg.Cluster

	clusterMap map[cfg.LVar]*cfg.Cluster // label -> cluster (per module)
	fragMap    map[cfg.LVar]*cfg.Frag    // label -> fragment (per module)
	fnMap      map[cfg.LVar]*lir.Func    // cluster label -> function
	blockMap   map[cfg.LVar]*lir.Block   // fragment label -> block (per cluster)
	vMap       map[cfg.LVar]*lir.Value   // local bindings (per fragment)

	state      regs.State
	overflowBB *lir.Block // shared per-cluster overflow raise block

	inModule bool
}

// New creates a Context for the given target. target.Initialize must have
// run first.
func New(tgt *target.Info) *Context {
	return &Context{
		tgt:  tgt,
		conv: regs.NewConventions(tgt),
	}
}

// NewFor resolves the named target and creates a Context for it.
func NewFor(name string) (*Context, error) {
	tgt, err := target.Lookup(name)
	if err != nil {
		return nil, err
	}
	return New(tgt), nil
}

// Target returns the target descriptor.
func (cx *Context) Target() *target.Info { return cx.tgt }

// Conventions returns the special-register conventions for the target.
func (cx *Context) Conventions() *regs.Conventions { return cx.conv }

// Module returns the module under construction.
func (cx *Context) Module() *lir.Module { return cx.module }

// ObjBuf returns the byte sink that Compile emits the object image into.
func (cx *Context) ObjBuf() *pwrite.Buffer { return &cx.objBuf }

func (cx *Context) requireModule() {
	if !cx.inModule {
		panic("codegen: operation outside BeginModule/EndModule bracket")
	}
}

// BeginModule resets all per-module tables and creates a fresh module
// sized with a cluster-count capacity hint.
func (cx *Context) BeginModule(name string, nClusters int) {
	if cx.inModule {
		panic("codegen: BeginModule inside an open module")
	}
	cx.module = lir.NewModule(name, nClusters)
	cx.clusterMap = make(map[cfg.LVar]*cfg.Cluster, nClusters)
	cx.fragMap = make(map[cfg.LVar]*cfg.Frag)
	cx.fnMap = make(map[cfg.LVar]*lir.Func, nClusters)
	cx.inModule = true
}

// CompleteModule finishes IR construction for the module.
func (cx *Context) CompleteModule() error {
	cx.requireModule()
	return cx.module.Validate()
}

// EndModule releases the module and its tables.
func (cx *Context) EndModule() {
	cx.requireModule()
	cx.module = nil
	cx.clusterMap = nil
	cx.fragMap = nil
	cx.fnMap = nil
	cx.blockMap = nil
	cx.vMap = nil
	cx.curFn = nil
	cx.curCluster = nil
	cx.overflowBB = nil
	cx.state.Clear()
	cx.inModule = false
}

// InsertCluster records a label -> cluster binding.
func (cx *Context) InsertCluster(lab cfg.LVar, c *cfg.Cluster) {
	cx.requireModule()
	cx.clusterMap[lab] = c
}

// LookupCluster resolves a label to a cluster, or nil.
func (cx *Context) LookupCluster(lab cfg.LVar) *cfg.Cluster { return cx.clusterMap[lab] }

// InsertFrag records a label -> fragment binding.
func (cx *Context) InsertFrag(lab cfg.LVar, f *cfg.Frag) {
	cx.requireModule()
	cx.fragMap[lab] = f
}

// LookupFrag resolves a label to a fragment, or nil.
func (cx *Context) LookupFrag(lab cfg.LVar) *cfg.Frag { return cx.fragMap[lab] }

// InsertVal binds a local value for the current fragment.
func (cx *Context) InsertVal(lv cfg.LVar, v *lir.Value) { cx.vMap[lv] = v }

// LookupVal resolves a local binding, or nil.
func (cx *Context) LookupVal(lv cfg.LVar) *lir.Value { return cx.vMap[lv] }

// BeginCluster establishes fn as the current function and re-derives the
// per-cluster state: the label overlay for fragment blocks, the overflow
// block memo, and the register state.
func (cx *Context) BeginCluster(c *cfg.Cluster, fn *lir.Func) {
	cx.requireModule()
	cx.curCluster = c
	cx.curFn = fn
	cx.blockMap = make(map[cfg.LVar]*lir.Block, len(c.Frags))
	cx.overflowBB = nil
	cx.state.Clear()
	cx.build = lir.Builder{F: fn}
}

// EndCluster finalizes the cluster.
func (cx *Context) EndCluster() {
	cx.curCluster = nil
	cx.curFn = nil
	cx.blockMap = nil
	cx.overflowBB = nil
}

// BeginFrag resets the local value bindings; the caller sets the insert
// block immediately after.
func (cx *Context) BeginFrag() {
	cx.requireModule()
	cx.vMap = make(map[cfg.LVar]*lir.Value)
}

// SetInsertBlock moves the builder to the given block.
func (cx *Context) SetInsertBlock(b *lir.Block) { cx.build.SetBlock(b) }

// NewBlock creates a fresh block in the current function.
func (cx *Context) NewBlock(name string) *lir.Block { return cx.curFn.NewBlock(name) }

// argInfo describes the physical argument layout for a fragment kind.
type argInfo struct {
	nExtra  int // machine-resident special registers
	basePtr int // 1 if the cluster carries a base-pointer parameter
	nUnused int // padded slots for the continuation convention
}

func (ai argInfo) total(n int) int { return n + ai.nExtra + ai.basePtr + ai.nUnused }

// The base-pointer slot of entry conventions depends only on the target;
// per-cluster base needs are satisfied by recomputing the base at entry.
// Internal transfers stay within a cluster, so they may thread the base
// through a parameter either way.
func (cx *Context) argInfoFor(kind cfg.FragKind) argInfo {
	ai := argInfo{nExtra: cx.conv.NumMachineRegs()}
	if kind == cfg.Internal {
		if cx.usesBasePtr() {
			ai.basePtr = 1
		}
	} else if cx.conv.UsesBasePtr() {
		ai.basePtr = 1
	}
	if kind == cfg.StdCont {
		ai.nUnused = stdContUnusedSlots
	}
	return ai
}

func (cx *Context) usesBasePtr() bool {
	if cx.conv.UsesBasePtr() {
		return true
	}
	return cx.curCluster != nil && cx.curCluster.Attrs.NeedsBasePtr
}

// ParamTys computes the convention prefix of the physical parameter list
// for a fragment of the given kind: the machine-resident special
// registers, the optional base pointer, and the unused continuation
// slots. The n explicit parameters follow the prefix and are appended by
// the caller; n only sizes the allocation. This is the single source of
// truth for the convention layout; NewFunction and Args must both go
// through it or call sites desynchronize from function entries.
func (cx *Context) ParamTys(kind cfg.FragKind, n int) []lir.Type {
	ai := cx.argInfoFor(kind)
	tys := make([]lir.Type, 0, ai.total(n))
	for range cx.conv.MachineRegs() {
		tys = append(tys, lir.Ptr)
	}
	if ai.basePtr == 1 {
		tys = append(tys, lir.Word)
	}
	for i := 0; i < ai.nUnused; i++ {
		tys = append(tys, lir.Word)
	}
	return tys
}

// Args seeds the physical argument list for a transfer to a fragment of
// the given kind: current special-register values, the base pointer, and
// padding for unused slots. The caller appends the explicit arguments.
func (cx *Context) Args(kind cfg.FragKind, n int) ([]*lir.Value, error) {
	ai := cx.argInfoFor(kind)
	args := make([]*lir.Value, 0, ai.total(n))
	for _, ri := range cx.conv.MachineRegs() {
		v := cx.state.Get(ri.ID())
		if v == nil {
			return nil, fmt.Errorf("codegen: special register %s has no value at transfer", ri.Name())
		}
		args = append(args, v)
	}
	if ai.basePtr == 1 {
		base, err := cx.state.BasePtr()
		if err != nil {
			return nil, fmt.Errorf("codegen: %w", err)
		}
		args = append(args, base)
	}
	for i := 0; i < ai.nUnused; i++ {
		args = append(args, cx.curFn.WordConst(0))
	}
	return args, nil
}

// NewFunction creates the machine function for a cluster whose entry
// fragment has the given kind and explicit parameter types. isFirst marks
// the module entry, which alone is exported.
func (cx *Context) NewFunction(kind cfg.FragKind, paramTys []lir.Type, name string, isFirst bool) *lir.Func {
	cx.requireModule()
	prefix := cx.ParamTys(kind, len(paramTys))
	hasBase := false
	if cx.conv.UsesBasePtr() {
		hasBase = true
	}
	fn := cx.module.NewFunc(name, cx.conv.NumMachineRegs(), hasBase, isFirst)
	for _, ty := range prefix {
		fn.AddParam(fn.Entry(), ty)
	}
	for _, ty := range paramTys {
		fn.AddParam(fn.Entry(), ty)
	}
	return fn
}

// Reg returns the current value of a special register. Machine-resident
// registers come from the tracked state; memory-resident ones are loaded
// from their fixed frame slot, transparently to the caller.
func (cx *Context) Reg(id regs.ID) *lir.Value {
	info := cx.conv.Info(id)
	if info.IsMemReg() {
		return cx.loadMemReg(info)
	}
	return cx.state.Get(id)
}

// SetReg assigns a value to a special register, storing through to the
// frame slot for memory-resident registers.
func (cx *Context) SetReg(id regs.ID, v *lir.Value) {
	info := cx.conv.Info(id)
	if info.IsMemReg() {
		cx.storeMemReg(info, v)
		return
	}
	cx.state.Set(id, v)
}

func (cx *Context) loadMemReg(info *regs.Info) *lir.Value {
	addr := cx.StkAddr(info.Offset())
	return cx.build.Load(lir.Ptr, addr, cx.tgt.WordSzB)
}

func (cx *Context) storeMemReg(info *regs.Info, v *lir.Value) {
	addr := cx.StkAddr(info.Offset())
	cx.build.Store(cx.build.AsPtr(v), addr, cx.tgt.WordSzB)
}

// SaveRegState snapshots the machine-resident register values. It must
// bracket any lowering of a non-tail control transfer.
func (cx *Context) SaveRegState(snap *regs.State) { cx.state.CopyTo(snap) }

// RestoreRegState restores a snapshot taken by SaveRegState.
func (cx *Context) RestoreRegState(snap *regs.State) { cx.state.CopyFrom(snap) }

// gcReloadRegs lists the machine-resident specials the collector hands
// back refreshed: the heap frontier pair. Memory-resident ones are
// updated in place in the runtime frame by the collector itself.
func (cx *Context) gcReloadRegs() []regs.ID {
	ids := make([]regs.ID, 0, 2)
	for _, id := range []regs.ID{regs.AllocPtr, regs.LimitPtr} {
		if !cx.conv.Info(id).IsMemReg() {
			ids = append(ids, id)
		}
	}
	return ids
}

// BasePtr returns the cluster's base-address value; it is an error for a
// cluster that declares no base pointer.
func (cx *Context) BasePtr() (*lir.Value, error) {
	return cx.state.BasePtr()
}
