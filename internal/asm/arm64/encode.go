package arm64

import (
	"fmt"
	"math"

	"cgen/internal/asm"
	"cgen/internal/lir"
	"cgen/internal/target"
)

// Special registers in convention order: allocation pointer, heap limit,
// store list, exception handler, var pointer.
var specialRegs = [...]int{X25, X24, X23, X22, X21}

// Argument registers of the tail-call convention.
var argRegs = [...]int{X0, X1, X2, X3, X4, X5, X6, X7}

// spillBase is the first free byte of the spill area in the runtime frame.
const spillBase = 64

type branchFixup struct {
	off    int
	cond   bool
	target lir.BlockID
}

type jumpTable struct {
	sym     string
	fnStart int
	targets []lir.BlockID
}

type encoder struct {
	a    Assembler
	prog *asm.Program
	tgt  *target.Info

	fn       *lir.Func
	fnStart  int
	slots    map[lir.ValueID]int32
	nextSlot int32
	blockOff map[lir.BlockID]int
	fixups   []branchFixup
	tables   []jumpTable
	nTables  int
}

// EncodeModule encodes every function of the module into one text image.
// The first function (the module entry) starts at offset zero.
func EncodeModule(tgt *target.Info, m *lir.Module) (*asm.Program, error) {
	e := &encoder{prog: &asm.Program{}, tgt: tgt}
	for _, fn := range m.Funcs {
		if err := e.encodeFunc(fn); err != nil {
			return nil, fmt.Errorf("arm64: func %s: %w", fn.Name, err)
		}
	}
	e.prog.Text = e.a.Bytes()
	return e.prog, nil
}

func (e *encoder) encodeFunc(fn *lir.Func) error {
	e.fn = fn
	e.fnStart = e.a.Len()
	e.slots = make(map[lir.ValueID]int32)
	e.nextSlot = spillBase
	e.blockOff = make(map[lir.BlockID]int, len(fn.Blocks))
	e.fixups = e.fixups[:0]
	e.tables = e.tables[:0]

	e.prog.Syms = append(e.prog.Syms, asm.Symbol{
		Name:   fn.Name,
		Off:    e.fnStart,
		Global: fn.Exported,
	})

	for i, blk := range fn.Blocks {
		e.blockOff[blk.ID] = e.a.Len()
		if i == 0 {
			if err := e.bindEntryParams(blk); err != nil {
				return err
			}
		}
		for j := range blk.Instrs {
			if err := e.instr(&blk.Instrs[j]); err != nil {
				return err
			}
		}
		if err := e.term(blk); err != nil {
			return err
		}
	}

	for _, fx := range e.fixups {
		off, ok := e.blockOff[fx.target]
		if !ok {
			return fmt.Errorf("branch to unencoded block %d", fx.target)
		}
		if fx.cond {
			e.a.PatchBcond(fx.off, off)
		} else {
			e.a.PatchB(fx.off, off)
		}
	}
	e.emitJumpTables()
	return nil
}

func (e *encoder) bindEntryParams(entry *lir.Block) error {
	for i, p := range entry.Params {
		reg, err := physReg(i, e.fn.NSpecialParams)
		if err != nil {
			return err
		}
		e.a.StrX(reg, SP, e.slot(p))
	}
	return nil
}

func physReg(i, nSpecial int) (int, error) {
	if i < nSpecial {
		if i >= len(specialRegs) {
			return 0, fmt.Errorf("special parameter %d out of range", i)
		}
		return specialRegs[i], nil
	}
	j := i - nSpecial
	if j >= len(argRegs) {
		return 0, fmt.Errorf("argument %d exceeds the %d register slots", i, len(argRegs))
	}
	return argRegs[j], nil
}

func (e *encoder) slot(v *lir.Value) int32 {
	s, ok := e.slots[v.ID]
	if !ok {
		s = e.nextSlot
		e.nextSlot += 8
		e.slots[v.ID] = s
	}
	return s
}

func (e *encoder) newTempSlot() int32 {
	s := e.nextSlot
	e.nextSlot += 8
	return s
}

func (e *encoder) reloc(kind asm.RelocKind, off int, sym string, addend int64) {
	e.prog.Relocs = append(e.prog.Relocs, asm.Reloc{
		Kind: kind, Off: off, Sym: sym, Addend: addend,
	})
}

// symAddr materializes the address of a symbol with an adrp/add pair.
func (e *encoder) symAddr(reg int, sym string) {
	e.reloc(asm.RelocAdrPage21, e.a.Adrp(reg), sym, 0)
	e.reloc(asm.RelocAddLo12, e.a.AddLo12(reg, reg), sym, 0)
}

// loadVal materializes v into a general-purpose register. Float values
// move as raw bits.
func (e *encoder) loadVal(v *lir.Value, reg int) {
	if v.Const {
		switch {
		case v.IsFnAddr():
			e.symAddr(reg, v.Fn.Name)
		case v.Type.IsFloat():
			e.a.MovImm64(reg, math.Float64bits(v.FltVal))
		default:
			e.a.MovImm64(reg, uint64(v.IntVal))
		}
		return
	}
	e.a.LdrX(reg, SP, e.slot(v))
}

func (e *encoder) storeVal(v *lir.Value, reg int) {
	e.a.StrX(reg, SP, e.slot(v))
}

// loadF materializes a float value into an FP register.
func (e *encoder) loadF(v *lir.Value, dreg int) {
	if v.Const {
		e.a.MovImm64(X16, math.Float64bits(v.FltVal))
		e.a.FMovFromX(dreg, X16)
		return
	}
	e.a.LdrD(dreg, SP, e.slot(v))
}

func (e *encoder) storeF(v *lir.Value, dreg int) {
	e.a.StrD(dreg, SP, e.slot(v))
}

func (e *encoder) instr(ins *lir.Instr) error {
	switch ins.Op {
	case lir.OpAdd, lir.OpSub, lir.OpMul, lir.OpAnd, lir.OpOr, lir.OpXor,
		lir.OpShl, lir.OpLShr, lir.OpAShr, lir.OpSDiv, lir.OpUDiv, lir.OpAddrOffset:
		e.loadVal(ins.Args[0], X9)
		e.loadVal(ins.Args[1], X10)
		switch ins.Op {
		case lir.OpAdd, lir.OpAddrOffset:
			e.a.AddReg(X9, X9, X10)
		case lir.OpSub:
			e.a.SubReg(X9, X9, X10)
		case lir.OpMul:
			e.a.Mul(X9, X9, X10)
		case lir.OpAnd:
			e.a.AndReg(X9, X9, X10)
		case lir.OpOr:
			e.a.OrrReg(X9, X9, X10)
		case lir.OpXor:
			e.a.EorReg(X9, X9, X10)
		case lir.OpShl:
			e.a.Lslv(X9, X9, X10)
		case lir.OpLShr:
			e.a.Lsrv(X9, X9, X10)
		case lir.OpAShr:
			e.a.Asrv(X9, X9, X10)
		case lir.OpSDiv:
			e.a.SDiv(X9, X9, X10)
		case lir.OpUDiv:
			e.a.UDiv(X9, X9, X10)
		}
		e.storeVal(ins.Res, X9)

	case lir.OpSRem, lir.OpURem:
		e.loadVal(ins.Args[0], X9)
		e.loadVal(ins.Args[1], X10)
		if ins.Op == lir.OpSRem {
			e.a.SDiv(X11, X9, X10)
		} else {
			e.a.UDiv(X11, X9, X10)
		}
		e.a.MSub(X9, X11, X10, X9)
		e.storeVal(ins.Res, X9)

	case lir.OpICmp:
		e.loadVal(ins.Args[0], X9)
		e.loadVal(ins.Args[1], X10)
		e.a.Cmp(X9, X10)
		e.a.Cset(X9, icond(ins.Pred))
		e.storeVal(ins.Res, X9)

	case lir.OpAddOvflw, lir.OpSubOvflw:
		e.loadVal(ins.Args[0], X9)
		e.loadVal(ins.Args[1], X10)
		if ins.Op == lir.OpAddOvflw {
			e.a.AddsReg(X9, X9, X10)
		} else {
			e.a.SubsReg(X9, X9, X10)
		}
		e.a.Cset(X11, condVS)
		e.storeVal(ins.Res, X9)
		e.storeVal(ins.Flag, X11)

	case lir.OpMulOvflw:
		e.loadVal(ins.Args[0], X9)
		e.loadVal(ins.Args[1], X10)
		e.a.Mul(X11, X9, X10)
		e.a.Smulh(X16, X9, X10)
		// Overflow iff the high half is not the sign extension of the low.
		e.a.CmpAsr63(X16, X11)
		e.a.Cset(X9, condNE)
		e.storeVal(ins.Res, X11)
		e.storeVal(ins.Flag, X9)

	case lir.OpFAdd, lir.OpFSub, lir.OpFMul, lir.OpFDiv:
		e.loadF(ins.Args[0], D0)
		e.loadF(ins.Args[1], D1)
		switch ins.Op {
		case lir.OpFAdd:
			e.a.FAdd(D0, D0, D1)
		case lir.OpFSub:
			e.a.FSub(D0, D0, D1)
		case lir.OpFMul:
			e.a.FMul(D0, D0, D1)
		case lir.OpFDiv:
			e.a.FDiv(D0, D0, D1)
		}
		e.storeF(ins.Res, D0)

	case lir.OpFNeg:
		e.loadF(ins.Args[0], D0)
		e.a.FNeg(D0, D0)
		e.storeF(ins.Res, D0)

	case lir.OpFAbs:
		e.loadF(ins.Args[0], D0)
		e.a.FAbs(D0, D0)
		e.storeF(ins.Res, D0)

	case lir.OpFSqrt:
		e.loadF(ins.Args[0], D0)
		e.a.FSqrt(D0, D0)
		e.storeF(ins.Res, D0)

	case lir.OpFCmp:
		e.loadF(ins.Args[0], D0)
		e.loadF(ins.Args[1], D1)
		e.a.FCmp(D0, D1)
		e.a.Cset(X9, fcond(ins.Pred))
		e.storeVal(ins.Res, X9)

	case lir.OpLoad:
		e.loadVal(ins.Args[0], X10)
		if ins.Ty.IsFloat() {
			if ins.Ty == lir.F32 {
				e.a.LdrS(D0, X10, 0)
				e.a.FcvtSD(D0, D0)
			} else {
				e.a.LdrD(D0, X10, 0)
			}
			e.storeF(ins.Res, D0)
			break
		}
		e.a.LdrSz(X9, X10, 0, ins.Ty.SizeB())
		e.storeVal(ins.Res, X9)

	case lir.OpStore:
		e.loadVal(ins.Args[1], X10)
		if ins.Args[0].Type == lir.F32 {
			e.loadF(ins.Args[0], D0)
			e.a.FcvtDS(D0, D0)
			e.a.StrS(D0, X10, 0)
			break
		}
		e.loadVal(ins.Args[0], X9)
		e.a.StrSz(X9, X10, 0, ins.Args[0].Type.SizeB())

	case lir.OpPtrToInt, lir.OpIntToPtr:
		e.loadVal(ins.Args[0], X9)
		e.storeVal(ins.Res, X9)

	case lir.OpSExt:
		e.loadVal(ins.Args[0], X9)
		if sz := ins.Args[0].Type.SizeB(); sz < 8 {
			e.a.Sxt(X9, X9, sz)
		}
		e.storeVal(ins.Res, X9)

	case lir.OpZExt:
		e.loadVal(ins.Args[0], X9)
		if sz := ins.Args[0].Type.SizeB(); sz < 8 {
			e.a.Uxt(X9, X9, sz)
		}
		e.storeVal(ins.Res, X9)

	case lir.OpTrunc:
		e.loadVal(ins.Args[0], X9)
		if sz := ins.Ty.SizeB(); sz < 8 {
			e.a.Uxt(X9, X9, sz)
		}
		e.storeVal(ins.Res, X9)

	case lir.OpSIToFP:
		e.loadVal(ins.Args[0], X9)
		e.a.Scvtf(D0, X9)
		e.storeF(ins.Res, D0)

	case lir.OpFPToSI:
		e.loadF(ins.Args[0], D0)
		e.a.Fcvtzs(X9, D0)
		e.storeVal(ins.Res, X9)

	case lir.OpReadSP:
		e.a.MovSP(X9)
		e.storeVal(ins.Res, X9)

	case lir.OpCallGC:
		nRoots := len(ins.Args)
		if nRoots > len(argRegs) {
			return fmt.Errorf("callgc with %d roots exceeds the %d register slots",
				nRoots, len(argRegs))
		}
		reload := specialRegs[:2] // allocation pointer, heap limit
		if n := len(ins.Results) - nRoots; n > len(reload) {
			return fmt.Errorf("callgc reloads %d registers, convention has %d", n, len(reload))
		}
		for i, root := range ins.Args {
			e.loadVal(root, argRegs[i])
		}
		e.a.LdrX(X16, SP, int32(e.tgt.CallGCOffset))
		e.a.Blr(X16)
		// Rebound roots come back in the argument registers; the fresh
		// heap frontier comes back pinned and must be respilled.
		for i, res := range ins.Results {
			if i < nRoots {
				e.storeVal(res, argRegs[i])
			} else {
				e.storeVal(res, reload[i-nRoots])
			}
		}

	default:
		return fmt.Errorf("unsupported op %v", ins.Op)
	}
	return nil
}

func (e *encoder) term(blk *lir.Block) error {
	t := &blk.Term
	switch t.Kind {
	case lir.TermBr:
		tmps := make([]int32, len(t.Br.Args))
		for i, arg := range t.Br.Args {
			tmps[i] = e.newTempSlot()
			e.loadVal(arg, X9)
			e.a.StrX(X9, SP, tmps[i])
		}
		for i, p := range t.Br.Target.Params {
			e.a.LdrX(X9, SP, tmps[i])
			e.a.StrX(X9, SP, e.slot(p))
		}
		e.fixups = append(e.fixups, branchFixup{off: e.a.B(), target: t.Br.Target.ID})

	case lir.TermCondBr:
		if len(t.CondBr.ThenArgs) != 0 || len(t.CondBr.ElseArgs) != 0 {
			return fmt.Errorf("conditional branch with block arguments")
		}
		e.loadVal(t.CondBr.Cond, X9)
		e.a.Cmp(X9, XZR)
		e.fixups = append(e.fixups,
			branchFixup{off: e.a.Bcond(condNE), cond: true, target: t.CondBr.Then.ID},
			branchFixup{off: e.a.B(), target: t.CondBr.Else.ID})

	case lir.TermSwitch:
		sym := fmt.Sprintf("%s.jt%d", e.fn.Name, e.nTables)
		e.nTables++
		e.loadVal(t.Switch.Index, X9)
		e.symAddr(X11, sym)
		e.a.LdrIndex8(X11, X11, X9)
		e.a.Br(X11)
		targets := make([]lir.BlockID, len(t.Switch.Targets))
		for i, tb := range t.Switch.Targets {
			targets[i] = tb.ID
		}
		e.tables = append(e.tables, jumpTable{sym: sym, fnStart: e.fnStart, targets: targets})

	case lir.TermTailCall:
		for i, arg := range t.TailCall.Args {
			reg, err := physReg(i, e.fn.NSpecialParams)
			if err != nil {
				return err
			}
			e.loadVal(arg, reg)
		}
		if t.TailCall.Callee.IsFnAddr() {
			e.reloc(asm.RelocBranch26, e.a.B(), t.TailCall.Callee.Fn.Name, 0)
		} else {
			e.loadVal(t.TailCall.Callee, X16)
			e.a.Br(X16)
		}

	case lir.TermRet:
		if t.Ret.Value != nil {
			e.loadVal(t.Ret.Value, X0)
		}
		e.a.Ret()

	case lir.TermRaiseOvflw:
		e.a.LdrX(X16, SP, int32(e.tgt.RaiseOvflwOffset))
		e.a.Br(X16)

	case lir.TermUnreachable:
		e.a.Brk()

	default:
		return fmt.Errorf("unterminated block %s", blk.Name)
	}
	return nil
}

func (e *encoder) emitJumpTables() {
	for _, jt := range e.tables {
		sec := e.prog.Section(".rodata", 8)
		e.prog.Syms = append(e.prog.Syms, asm.Symbol{
			Name: jt.sym, Section: ".rodata", Off: len(sec.Bytes),
		})
		for _, blkID := range jt.targets {
			sec.Relocs = append(sec.Relocs, asm.Reloc{
				Kind:   asm.RelocAbs64,
				Off:    len(sec.Bytes),
				Sym:    e.fn.Name,
				Addend: int64(e.blockOff[blkID] - jt.fnStart),
			})
			sec.Bytes = append(sec.Bytes, 0, 0, 0, 0, 0, 0, 0, 0)
		}
	}
}

func icond(p lir.Pred) int {
	switch p {
	case lir.PredEQ:
		return condEQ
	case lir.PredNE:
		return condNE
	case lir.PredSLT:
		return condLT
	case lir.PredSLE:
		return condLE
	case lir.PredSGT:
		return condGT
	case lir.PredSGE:
		return condGE
	case lir.PredULT:
		return condCC
	case lir.PredULE:
		return condLS
	case lir.PredUGT:
		return condHI
	}
	return condCS // uge
}

// fcond maps a float predicate to the condition after fcmp.
func fcond(p lir.Pred) int {
	switch p {
	case lir.PredEQ:
		return condEQ
	case lir.PredNE:
		return condNE
	case lir.PredSLT:
		return condMI
	case lir.PredSLE:
		return condLS
	case lir.PredSGT:
		return condGT
	}
	return condGE
}
