package amd64

import (
	"fmt"
	"math"

	"cgen/internal/asm"
	"cgen/internal/lir"
	"cgen/internal/target"
)

// Argument registers of the tail-call convention, in order. The special
// registers ride ahead of them in R12 (allocation pointer) and R13
// (heap limit).
var argRegs = [...]int{RDI, RSI, RDX, RCX, R8, R9}

const (
	allocReg = R12
	limitReg = R13
)

// spillBase is the first free byte of the spill area in the runtime
// frame; everything below it belongs to the runtime (collector entry,
// overflow entry, memory-resident special registers).
const spillBase = 64

// Mask literal section for float negate/abs.
const cstSection = ".rodata.cst16"

type blockFixup struct {
	off    int // rel32 field (absolute text offset)
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
	blockOff    map[lir.BlockID]int
	fixups      []blockFixup
	tables      []jumpTable
	nTables     int
	scratchSlot int32

	maskSyms bool
}

// EncodeModule encodes every function of the module into one text image.
// The first function (the module entry) starts at offset zero.
func EncodeModule(tgt *target.Info, m *lir.Module) (*asm.Program, error) {
	e := &encoder{prog: &asm.Program{}, tgt: tgt}
	for _, fn := range m.Funcs {
		if err := e.encodeFunc(fn); err != nil {
			return nil, fmt.Errorf("amd64: func %s: %w", fn.Name, err)
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
	e.scratchSlot = 0

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
		e.a.Patch32(fx.off, uint32(int32(off-(fx.off+4))))
	}
	e.emitJumpTables()
	return nil
}

// bindEntryParams spills the incoming physical argument registers into
// the parameter slots.
func (e *encoder) bindEntryParams(entry *lir.Block) error {
	for i, p := range entry.Params {
		reg, err := physReg(i, e.fn.NSpecialParams)
		if err != nil {
			return err
		}
		e.a.MovMemReg(RSP, e.slot(p), reg)
	}
	return nil
}

func physReg(i, nSpecial int) (int, error) {
	if i < nSpecial {
		return [...]int{allocReg, limitReg}[i], nil
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

// loadVal materializes v into a general-purpose register. Float values
// move as raw bits.
func (e *encoder) loadVal(v *lir.Value, reg int) {
	if v.Const {
		switch {
		case v.IsFnAddr():
			off := e.a.LeaRIP(reg)
			e.reloc(asm.RelocPCRel32, off, v.Fn.Name, -4)
		case v.Type.IsFloat():
			e.a.MovRegImm64(reg, math.Float64bits(v.FltVal))
		case v.IntVal >= math.MinInt32 && v.IntVal <= math.MaxInt32:
			e.a.MovRegImm32(reg, int32(v.IntVal))
		default:
			e.a.MovRegImm64(reg, uint64(v.IntVal))
		}
		return
	}
	e.a.MovRegMem(reg, RSP, e.slot(v))
}

func (e *encoder) storeVal(v *lir.Value, reg int) {
	e.a.MovMemReg(RSP, e.slot(v), reg)
}

// loadF materializes a float value into an XMM register. Spilled floats
// live in their slots as raw double bits; constants bounce through the
// per-function scratch slot.
func (e *encoder) loadF(v *lir.Value, xreg int) {
	if v.Const {
		e.loadVal(v, RAX)
		if e.scratchSlot == 0 {
			e.scratchSlot = e.newTempSlot()
		}
		e.a.MovMemReg(RSP, e.scratchSlot, RAX)
		e.a.MovsdLoad(xreg, RSP, e.scratchSlot, 8)
		return
	}
	e.a.MovsdLoad(xreg, RSP, e.slot(v), 8)
}

func (e *encoder) reloc(kind asm.RelocKind, off int, sym string, addend int64) {
	e.prog.Relocs = append(e.prog.Relocs, asm.Reloc{
		Kind: kind, Off: off, Sym: sym, Addend: addend,
	})
}

func (e *encoder) instr(ins *lir.Instr) error {
	switch ins.Op {
	case lir.OpAdd, lir.OpSub, lir.OpMul, lir.OpAnd, lir.OpOr, lir.OpXor:
		e.loadVal(ins.Args[0], RAX)
		e.loadVal(ins.Args[1], R10)
		switch ins.Op {
		case lir.OpAdd:
			e.a.AddRegReg(RAX, R10)
		case lir.OpSub:
			e.a.SubRegReg(RAX, R10)
		case lir.OpMul:
			e.a.IMulRegReg(RAX, R10)
		case lir.OpAnd:
			e.a.AndRegReg(RAX, R10)
		case lir.OpOr:
			e.a.OrRegReg(RAX, R10)
		case lir.OpXor:
			e.a.XorRegReg(RAX, R10)
		}
		e.storeVal(ins.Res, RAX)

	case lir.OpShl, lir.OpLShr, lir.OpAShr:
		e.loadVal(ins.Args[1], RCX)
		e.loadVal(ins.Args[0], RAX)
		sub := map[lir.Op]int{lir.OpShl: 4, lir.OpLShr: 5, lir.OpAShr: 7}[ins.Op]
		e.a.ShiftCL(sub, RAX)
		e.storeVal(ins.Res, RAX)

	case lir.OpSDiv, lir.OpSRem:
		e.loadVal(ins.Args[1], R10)
		e.loadVal(ins.Args[0], RAX)
		e.a.Cqo()
		e.a.IDivReg(R10)
		if ins.Op == lir.OpSRem {
			e.storeVal(ins.Res, RDX)
		} else {
			e.storeVal(ins.Res, RAX)
		}

	case lir.OpUDiv, lir.OpURem:
		e.loadVal(ins.Args[1], R10)
		e.loadVal(ins.Args[0], RAX)
		e.a.XorRdxRdx()
		e.a.DivReg(R10)
		if ins.Op == lir.OpURem {
			e.storeVal(ins.Res, RDX)
		} else {
			e.storeVal(ins.Res, RAX)
		}

	case lir.OpICmp:
		e.loadVal(ins.Args[0], RAX)
		e.loadVal(ins.Args[1], R10)
		e.a.CmpRegReg(RAX, R10)
		e.a.Setcc(icc(ins.Pred), RAX)
		e.a.MovzxRegReg8(RAX, RAX)
		e.storeVal(ins.Res, RAX)

	case lir.OpAddOvflw, lir.OpSubOvflw, lir.OpMulOvflw:
		e.loadVal(ins.Args[0], RAX)
		e.loadVal(ins.Args[1], R10)
		switch ins.Op {
		case lir.OpAddOvflw:
			e.a.AddRegReg(RAX, R10)
		case lir.OpSubOvflw:
			e.a.SubRegReg(RAX, R10)
		case lir.OpMulOvflw:
			e.a.IMulRegReg(RAX, R10)
		}
		e.a.Setcc(0x0, R11) // seto
		e.a.MovzxRegReg8(R11, R11)
		e.storeVal(ins.Res, RAX)
		e.storeVal(ins.Flag, R11)

	case lir.OpFAdd, lir.OpFSub, lir.OpFMul, lir.OpFDiv:
		e.loadF(ins.Args[0], XMM0)
		e.loadF(ins.Args[1], XMM1)
		op := map[lir.Op]byte{
			lir.OpFAdd: 0x58, lir.OpFSub: 0x5C,
			lir.OpFMul: 0x59, lir.OpFDiv: 0x5E,
		}[ins.Op]
		e.a.FArith(op, XMM0, XMM1)
		e.a.MovsdStore(RSP, e.slot(ins.Res), XMM0, 8)

	case lir.OpFSqrt:
		e.loadF(ins.Args[0], XMM0)
		e.a.FArith(0x51, XMM0, XMM0)
		e.a.MovsdStore(RSP, e.slot(ins.Res), XMM0, 8)

	case lir.OpFNeg:
		e.loadF(ins.Args[0], XMM0)
		e.maskReloc(e.a.XorpdMemRIP(XMM0), "Lfsgnmask")
		e.a.MovsdStore(RSP, e.slot(ins.Res), XMM0, 8)

	case lir.OpFAbs:
		e.loadF(ins.Args[0], XMM0)
		e.maskReloc(e.a.AndpdMemRIP(XMM0), "Lfabsmask")
		e.a.MovsdStore(RSP, e.slot(ins.Res), XMM0, 8)

	case lir.OpFCmp:
		e.loadF(ins.Args[0], XMM0)
		e.loadF(ins.Args[1], XMM1)
		e.a.Ucomisd(XMM0, XMM1)
		e.a.Setcc(fcc(ins.Pred), RAX)
		e.a.MovzxRegReg8(RAX, RAX)
		e.storeVal(ins.Res, RAX)

	case lir.OpLoad:
		e.loadVal(ins.Args[0], R10)
		if ins.Ty.IsFloat() {
			e.a.MovsdLoad(XMM0, R10, 0, ins.Ty.SizeB())
			if ins.Ty == lir.F32 {
				e.a.Cvtss2sd(XMM0, XMM0)
			}
			e.a.MovsdStore(RSP, e.slot(ins.Res), XMM0, 8)
			break
		}
		e.a.MovRegMemSz(RAX, R10, 0, ins.Ty.SizeB())
		e.storeVal(ins.Res, RAX)

	case lir.OpStore:
		e.loadVal(ins.Args[1], R10)
		e.loadVal(ins.Args[0], RAX)
		e.a.MovMemRegSz(R10, 0, RAX, ins.Args[0].Type.SizeB())

	case lir.OpPtrToInt, lir.OpIntToPtr:
		e.loadVal(ins.Args[0], RAX)
		e.storeVal(ins.Res, RAX)

	case lir.OpSExt:
		e.loadVal(ins.Args[0], RAX)
		if sz := ins.Args[0].Type.SizeB(); sz < 8 {
			e.a.MovsxRegReg(RAX, RAX, sz)
		}
		e.storeVal(ins.Res, RAX)

	case lir.OpZExt:
		e.loadVal(ins.Args[0], RAX)
		if sz := ins.Args[0].Type.SizeB(); sz < 8 {
			e.a.MovzxRegReg(RAX, RAX, sz)
		}
		e.storeVal(ins.Res, RAX)

	case lir.OpTrunc:
		e.loadVal(ins.Args[0], RAX)
		if sz := ins.Ty.SizeB(); sz < 8 {
			e.a.MovzxRegReg(RAX, RAX, sz)
		}
		e.storeVal(ins.Res, RAX)

	case lir.OpSIToFP:
		e.loadVal(ins.Args[0], RAX)
		e.a.Cvtsi2sd(XMM0, RAX)
		e.a.MovsdStore(RSP, e.slot(ins.Res), XMM0, 8)

	case lir.OpFPToSI:
		e.loadF(ins.Args[0], XMM0)
		e.a.Cvttsd2si(RAX, XMM0)
		e.storeVal(ins.Res, RAX)

	case lir.OpAddrOffset:
		e.loadVal(ins.Args[0], RAX)
		e.loadVal(ins.Args[1], R10)
		e.a.AddRegReg(RAX, R10)
		e.storeVal(ins.Res, RAX)

	case lir.OpReadSP:
		e.a.MovRegRSP(RAX)
		e.storeVal(ins.Res, RAX)

	case lir.OpCallGC:
		nRoots := len(ins.Args)
		if nRoots > len(argRegs) {
			return fmt.Errorf("callgc with %d roots exceeds the %d register slots",
				nRoots, len(argRegs))
		}
		reload := [...]int{allocReg, limitReg}
		if n := len(ins.Results) - nRoots; n > len(reload) {
			return fmt.Errorf("callgc reloads %d registers, convention has %d", n, len(reload))
		}
		for i, root := range ins.Args {
			e.loadVal(root, argRegs[i])
		}
		e.a.CallMem(RSP, int32(e.tgt.CallGCOffset))
		// Rebound roots come back in the argument registers; the fresh
		// heap frontier comes back in the pinned pair and must be
		// respilled, or the continuation allocates through the old one.
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
		// Branch arguments move in two phases through fresh temporaries,
		// so a value swap between loop-carried parameters cannot clobber.
		tmps := make([]int32, len(t.Br.Args))
		for i, arg := range t.Br.Args {
			tmps[i] = e.newTempSlot()
			e.loadVal(arg, RAX)
			e.a.MovMemReg(RSP, tmps[i], RAX)
		}
		for i, p := range t.Br.Target.Params {
			e.a.MovRegMem(RAX, RSP, tmps[i])
			e.a.MovMemReg(RSP, e.slot(p), RAX)
		}
		e.fixups = append(e.fixups, blockFixup{off: e.a.Jmp(), target: t.Br.Target.ID})

	case lir.TermCondBr:
		if len(t.CondBr.ThenArgs) != 0 || len(t.CondBr.ElseArgs) != 0 {
			return fmt.Errorf("conditional branch with block arguments")
		}
		e.loadVal(t.CondBr.Cond, RAX)
		e.a.TestRegReg(RAX, RAX)
		e.fixups = append(e.fixups, blockFixup{off: e.a.Jcc(0x5), target: t.CondBr.Then.ID}) // jne
		e.fixups = append(e.fixups, blockFixup{off: e.a.Jmp(), target: t.CondBr.Else.ID})

	case lir.TermSwitch:
		sym := fmt.Sprintf("%s.jt%d", e.fn.Name, e.nTables)
		e.nTables++
		e.loadVal(t.Switch.Index, RAX)
		off := e.a.LeaRIP(R11)
		e.reloc(asm.RelocPCRel32, off, sym, -4)
		e.a.MovRegMemIndex8(R11, R11, RAX)
		e.a.JmpReg(R11)
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
			off := e.a.Jmp()
			e.reloc(asm.RelocPCRel32, off, t.TailCall.Callee.Fn.Name, -4)
		} else {
			e.loadVal(t.TailCall.Callee, RAX)
			e.a.JmpReg(RAX)
		}

	case lir.TermRet:
		if t.Ret.Value != nil {
			e.loadVal(t.Ret.Value, RAX)
		}
		e.a.Ret()

	case lir.TermRaiseOvflw:
		e.a.JmpMem(RSP, int32(e.tgt.RaiseOvflwOffset))

	case lir.TermUnreachable:
		e.a.Ud2()

	default:
		return fmt.Errorf("unterminated block %s", blk.Name)
	}
	return nil
}

// maskReloc points a packed-op displacement at one of the two constant
// masks, creating the literal section on first use.
func (e *encoder) maskReloc(off int, sym string) {
	if !e.maskSyms {
		sec := e.prog.Section(cstSection, 16)
		signOff := len(sec.Bytes)
		sec.Bytes = append(sec.Bytes,
			0, 0, 0, 0, 0, 0, 0, 0x80, 0, 0, 0, 0, 0, 0, 0, 0)
		absOff := len(sec.Bytes)
		sec.Bytes = append(sec.Bytes,
			0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x7F, 0, 0, 0, 0, 0, 0, 0, 0)
		e.prog.Syms = append(e.prog.Syms,
			asm.Symbol{Name: "Lfsgnmask", Section: cstSection, Off: signOff},
			asm.Symbol{Name: "Lfabsmask", Section: cstSection, Off: absOff})
		e.maskSyms = true
	}
	e.reloc(asm.RelocPCRel32, off, sym, -4)
}

// emitJumpTables appends the pending switch tables to the read-only data
// section, one 64-bit absolute entry per target block.
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

// icc maps an integer predicate to an x86 condition nibble.
func icc(p lir.Pred) byte {
	switch p {
	case lir.PredEQ:
		return 0x4
	case lir.PredNE:
		return 0x5
	case lir.PredSLT:
		return 0xC
	case lir.PredSLE:
		return 0xE
	case lir.PredSGT:
		return 0xF
	case lir.PredSGE:
		return 0xD
	case lir.PredULT:
		return 0x2
	case lir.PredULE:
		return 0x6
	case lir.PredUGT:
		return 0x7
	}
	return 0x3 // uge
}

// fcc maps a float predicate to the condition nibble after ucomisd.
func fcc(p lir.Pred) byte {
	switch p {
	case lir.PredEQ:
		return 0x4
	case lir.PredNE:
		return 0x5
	case lir.PredSLT:
		return 0x2 // below
	case lir.PredSLE:
		return 0x6
	case lir.PredSGT:
		return 0x7
	}
	return 0x3 // sge: above or equal
}
