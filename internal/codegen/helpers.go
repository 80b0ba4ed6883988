package codegen

import (
	"cgen/internal/lir"
	"cgen/internal/regs"
)

// AllocRecord emits a heap allocation: the optional descriptor word goes
// at the current allocation pointer, the fields follow, the allocation
// pointer is bumped past them, and the result points at the first field.
// Store-list records pass a nil descriptor and get a bare block.
func (cx *Context) AllocRecord(desc *lir.Value, fields []*lir.Value) *lir.Value {
	w := cx.tgt.WordSzB
	alloc := cx.Reg(regs.AllocPtr)
	off := 0
	if desc != nil {
		cx.build.Store(desc, alloc, w)
		off = w
	}
	for _, f := range fields {
		addr := cx.build.AddrOffset(alloc, cx.curFn.WordConst(int64(off)))
		cx.build.Store(f, addr, w)
		off += w
	}
	res := alloc
	if desc != nil {
		res = cx.build.AddrOffset(alloc, cx.curFn.WordConst(int64(w)))
	}
	cx.SetReg(regs.AllocPtr,
		cx.build.AddrOffset(alloc, cx.curFn.WordConst(int64(off))))
	return res
}

// OverflowBB returns the cluster's shared overflow block, creating it on
// first use. Every checked-arithmetic fork branches here on overflow.
func (cx *Context) OverflowBB() *lir.Block {
	if cx.overflowBB == nil {
		blk := cx.curFn.NewBlock("overflow")
		blk.Term = lir.Terminator{Kind: lir.TermRaiseOvflw}
		cx.overflowBB = blk
	}
	return cx.overflowBB
}

// StkAddr returns the address of a runtime frame slot at the given byte
// offset from the hardware stack pointer. The stack pointer is invariant
// for the duration of a cluster, so the read is always valid.
func (cx *Context) StkAddr(off int) *lir.Value {
	sp := cx.build.ReadSP()
	return cx.build.AddrOffset(sp, cx.curFn.WordConst(int64(off)))
}
