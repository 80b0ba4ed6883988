package lir

import "fmt"

// Builder appends instructions to a block of a function. The zero Builder
// is unusable; bind it with SetBlock first.
type Builder struct {
	F *Func
	B *Block
}

// SetBlock moves the insert point to the given block.
func (b *Builder) SetBlock(blk *Block) { b.B = blk }

// Block returns the current insert block.
func (b *Builder) Block() *Block { return b.B }

func (b *Builder) emit(ins Instr) *Value {
	b.B.Instrs = append(b.B.Instrs, ins)
	return ins.Res
}

// AsInt coerces a value to the native integer representation. Pointers are
// converted with ptrtoint; integer values pass through unchanged.
func (b *Builder) AsInt(v *Value) *Value {
	if v.Type != Ptr {
		return v
	}
	res := b.F.NewValue(Word)
	return b.emit(Instr{Op: OpPtrToInt, Ty: Word, Args: []*Value{v}, Res: res})
}

// AsPtr coerces a value to the pointer representation.
func (b *Builder) AsPtr(v *Value) *Value {
	if v.Type == Ptr {
		return v
	}
	res := b.F.NewValue(Ptr)
	return b.emit(Instr{Op: OpIntToPtr, Ty: Ptr, Args: []*Value{v}, Res: res})
}

func (b *Builder) binary(op Op, a, c *Value) *Value {
	a, c = b.AsInt(a), b.AsInt(c)
	res := b.F.NewValue(a.Type)
	return b.emit(Instr{Op: op, Ty: a.Type, Args: []*Value{a, c}, Res: res})
}

// Add emits integer addition, coercing pointer operands.
func (b *Builder) Add(a, c *Value) *Value { return b.binary(OpAdd, a, c) }

// Sub emits integer subtraction.
func (b *Builder) Sub(a, c *Value) *Value { return b.binary(OpSub, a, c) }

// Mul emits integer multiplication.
func (b *Builder) Mul(a, c *Value) *Value { return b.binary(OpMul, a, c) }

// SDiv emits signed division.
func (b *Builder) SDiv(a, c *Value) *Value { return b.binary(OpSDiv, a, c) }

// UDiv emits unsigned division.
func (b *Builder) UDiv(a, c *Value) *Value { return b.binary(OpUDiv, a, c) }

// SRem emits signed remainder.
func (b *Builder) SRem(a, c *Value) *Value { return b.binary(OpSRem, a, c) }

// URem emits unsigned remainder.
func (b *Builder) URem(a, c *Value) *Value { return b.binary(OpURem, a, c) }

// And emits bitwise and.
func (b *Builder) And(a, c *Value) *Value { return b.binary(OpAnd, a, c) }

// Or emits bitwise or.
func (b *Builder) Or(a, c *Value) *Value { return b.binary(OpOr, a, c) }

// Xor emits bitwise exclusive or.
func (b *Builder) Xor(a, c *Value) *Value { return b.binary(OpXor, a, c) }

// Shl emits a left shift.
func (b *Builder) Shl(a, c *Value) *Value { return b.binary(OpShl, a, c) }

// LShr emits a logical right shift.
func (b *Builder) LShr(a, c *Value) *Value { return b.binary(OpLShr, a, c) }

// AShr emits an arithmetic right shift.
func (b *Builder) AShr(a, c *Value) *Value { return b.binary(OpAShr, a, c) }

// ICmp emits an integer comparison producing an I8 boolean.
func (b *Builder) ICmp(p Pred, a, c *Value) *Value {
	a, c = b.AsInt(a), b.AsInt(c)
	res := b.F.NewValue(I8)
	return b.emit(Instr{Op: OpICmp, Pred: p, Ty: I8, Args: []*Value{a, c}, Res: res})
}

// ArithOvflw emits overflow-checked signed arithmetic. It returns the
// result value and the overflow flag.
func (b *Builder) ArithOvflw(op Op, a, c *Value) (*Value, *Value) {
	a, c = b.AsInt(a), b.AsInt(c)
	res := b.F.NewValue(a.Type)
	flag := b.F.NewValue(I8)
	b.emit(Instr{Op: op, Ty: a.Type, Args: []*Value{a, c}, Res: res, Flag: flag})
	return res, flag
}

func (b *Builder) fbinary(op Op, a, c *Value) *Value {
	res := b.F.NewValue(a.Type)
	return b.emit(Instr{Op: op, Ty: a.Type, Args: []*Value{a, c}, Res: res})
}

// FAdd emits float addition.
func (b *Builder) FAdd(a, c *Value) *Value { return b.fbinary(OpFAdd, a, c) }

// FSub emits float subtraction.
func (b *Builder) FSub(a, c *Value) *Value { return b.fbinary(OpFSub, a, c) }

// FMul emits float multiplication.
func (b *Builder) FMul(a, c *Value) *Value { return b.fbinary(OpFMul, a, c) }

// FDiv emits float division.
func (b *Builder) FDiv(a, c *Value) *Value { return b.fbinary(OpFDiv, a, c) }

func (b *Builder) funary(op Op, v *Value) *Value {
	res := b.F.NewValue(v.Type)
	return b.emit(Instr{Op: op, Ty: v.Type, Args: []*Value{v}, Res: res})
}

// FNeg emits float negation.
func (b *Builder) FNeg(v *Value) *Value { return b.funary(OpFNeg, v) }

// FAbs emits float absolute value.
func (b *Builder) FAbs(v *Value) *Value { return b.funary(OpFAbs, v) }

// FSqrt emits float square root.
func (b *Builder) FSqrt(v *Value) *Value { return b.funary(OpFSqrt, v) }

// FCmp emits a float comparison producing an I8 boolean.
func (b *Builder) FCmp(p Pred, a, c *Value) *Value {
	res := b.F.NewValue(I8)
	return b.emit(Instr{Op: OpFCmp, Pred: p, Ty: I8, Args: []*Value{a, c}, Res: res})
}

// Load emits a load of ty from addr with the given alignment (0 for the
// type's natural alignment).
func (b *Builder) Load(ty Type, addr *Value, align int) *Value {
	addr = b.AsPtr(addr)
	res := b.F.NewValue(ty)
	return b.emit(Instr{Op: OpLoad, Ty: ty, Align: align, Args: []*Value{addr}, Res: res})
}

// Store emits a store of v to addr.
func (b *Builder) Store(v, addr *Value, align int) {
	addr = b.AsPtr(addr)
	b.emit(Instr{Op: OpStore, Ty: v.Type, Align: align, Args: []*Value{v, addr}})
}

// Cast emits a cast instruction producing ty.
func (b *Builder) Cast(op Op, v *Value, ty Type) *Value {
	res := b.F.NewValue(ty)
	return b.emit(Instr{Op: op, Ty: ty, Args: []*Value{v}, Res: res})
}

// AddrOffset emits addr + off bytes, producing a pointer.
func (b *Builder) AddrOffset(addr *Value, off *Value) *Value {
	addr = b.AsPtr(addr)
	res := b.F.NewValue(Ptr)
	return b.emit(Instr{Op: OpAddrOffset, Ty: Ptr, Args: []*Value{addr, b.AsInt(off)}, Res: res})
}

// ReadSP emits a read of the hardware stack pointer.
func (b *Builder) ReadSP() *Value {
	res := b.F.NewValue(Word)
	return b.emit(Instr{Op: OpReadSP, Ty: Word, Res: res})
}

// CallGC emits a call to the collector slow path with the given roots.
// It returns the rebound root values and the refreshed values of the
// nReloads pinned heap registers, which the collector hands back after
// moving the heap.
func (b *Builder) CallGC(roots []*Value, nReloads int) (rebound, reloaded []*Value) {
	results := make([]*Value, len(roots)+nReloads)
	for i := range results {
		results[i] = b.F.NewValue(Ptr)
	}
	b.emit(Instr{Op: OpCallGC, Args: roots, Results: results})
	return results[:len(roots)], results[len(roots):]
}

func (b *Builder) setTerm(t Terminator) {
	if b.B.Terminated() {
		panic(fmt.Sprintf("lir: block %s already terminated", b.B.Name))
	}
	b.B.Term = t
}

// Br terminates the block with an unconditional branch.
func (b *Builder) Br(target *Block, args []*Value) {
	b.setTerm(Terminator{Kind: TermBr, Br: BrTerm{Target: target, Args: args}})
}

// CondBr terminates the block with a conditional branch.
func (b *Builder) CondBr(cond *Value, then, els *Block, prob int) {
	b.setTerm(Terminator{Kind: TermCondBr, CondBr: CondBrTerm{
		Cond: cond, Then: then, Else: els, Prob: prob,
	}})
}

// CondBrArgs is CondBr with block arguments on both edges.
func (b *Builder) CondBrArgs(cond *Value, then, els *Block, thenArgs, elseArgs []*Value, prob int) {
	b.setTerm(Terminator{Kind: TermCondBr, CondBr: CondBrTerm{
		Cond: cond, Then: then, Else: els,
		ThenArgs: thenArgs, ElseArgs: elseArgs, Prob: prob,
	}})
}

// Switch terminates the block with an indexed multi-way branch.
func (b *Builder) Switch(index *Value, targets []*Block) {
	b.setTerm(Terminator{Kind: TermSwitch, Switch: SwitchTerm{Index: b.AsInt(index), Targets: targets}})
}

// TailCall terminates the block with a tail transfer to callee.
func (b *Builder) TailCall(callee *Value, args []*Value) {
	b.setTerm(Terminator{Kind: TermTailCall, TailCall: TailCallTerm{Callee: callee, Args: args}})
}

// Ret terminates the block returning v to the caller.
func (b *Builder) Ret(v *Value) {
	b.setTerm(Terminator{Kind: TermRet, Ret: RetTerm{Value: v}})
}

// RaiseOvflw terminates the block by raising the overflow condition.
func (b *Builder) RaiseOvflw() {
	b.setTerm(Terminator{Kind: TermRaiseOvflw})
}

// Unreachable marks the block as never reached.
func (b *Builder) Unreachable() {
	b.setTerm(Terminator{Kind: TermUnreachable})
}
