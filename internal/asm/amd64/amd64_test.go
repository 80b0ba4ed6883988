package amd64

import (
	"testing"

	"golang.org/x/arch/x86/x86asm"

	"cgen/internal/asm"
	"cgen/internal/lir"
	"cgen/internal/target"
)

func amd64Target(t *testing.T) *target.Info {
	t.Helper()
	target.Initialize()
	tgt, err := target.Lookup("amd64")
	if err != nil {
		t.Fatal(err)
	}
	return tgt
}

// disasm decodes the whole text image, failing the test on any byte
// sequence the reference decoder rejects.
func disasm(t *testing.T, text []byte) []x86asm.Inst {
	t.Helper()
	var out []x86asm.Inst
	for off := 0; off < len(text); {
		inst, err := x86asm.Decode(text[off:], 64)
		if err != nil {
			t.Fatalf("undecodable instruction at %#x: % x: %v", off, text[off:min(off+8, len(text))], err)
		}
		out = append(out, inst)
		off += inst.Len
	}
	return out
}

func TestEncodeRetConstant(t *testing.T) {
	tgt := amd64Target(t)
	mod := lir.NewModule("m", 1)
	fn := mod.NewFunc("f", 0, false, true)
	b := lir.Builder{F: fn, B: fn.Entry()}
	b.Ret(fn.WordConst(42))

	prog, err := EncodeModule(tgt, mod)
	if err != nil {
		t.Fatal(err)
	}
	insts := disasm(t, prog.Text)
	if len(insts) != 2 || insts[0].Op != x86asm.MOV || insts[1].Op != x86asm.RET {
		t.Fatalf("insts = %v, want MOV; RET", insts)
	}
	if imm, ok := insts[0].Args[1].(x86asm.Imm); !ok || imm != 42 {
		t.Errorf("mov immediate = %v, want 42", insts[0].Args[1])
	}
	sym := prog.FindSym("f")
	if sym == nil || sym.Off != 0 || !sym.Global {
		t.Errorf("symbol f = %+v, want global at 0", sym)
	}
}

func TestArithmeticDecodes(t *testing.T) {
	tgt := amd64Target(t)
	mod := lir.NewModule("m", 1)
	fn := mod.NewFunc("f", 0, false, true)
	p := fn.AddParam(fn.Entry(), lir.Word)
	q := fn.AddParam(fn.Entry(), lir.Word)
	b := lir.Builder{F: fn, B: fn.Entry()}
	sum := b.Add(p, q)
	prod := b.Mul(sum, fn.WordConst(3))
	quot := b.SDiv(prod, q)
	cmp := b.ICmp(lir.PredSLT, quot, p)
	b.Ret(cmp)

	prog, err := EncodeModule(tgt, mod)
	if err != nil {
		t.Fatal(err)
	}
	insts := disasm(t, prog.Text)
	var ops []x86asm.Op
	for _, in := range insts {
		ops = append(ops, in.Op)
	}
	for _, want := range []x86asm.Op{x86asm.ADD, x86asm.IMUL, x86asm.CQO, x86asm.IDIV, x86asm.CMP, x86asm.SETL} {
		found := false
		for _, op := range ops {
			if op == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("%v not found in %v", want, ops)
		}
	}
}

func TestBranchBackpatching(t *testing.T) {
	tgt := amd64Target(t)
	mod := lir.NewModule("m", 1)
	fn := mod.NewFunc("f", 0, false, true)
	next := fn.NewBlock("next")
	b := lir.Builder{F: fn, B: fn.Entry()}
	b.Br(next, nil)
	b.SetBlock(next)
	b.Ret(fn.WordConst(0))

	prog, err := EncodeModule(tgt, mod)
	if err != nil {
		t.Fatal(err)
	}
	// The jump lands exactly on the next block: rel32 of zero.
	insts := disasm(t, prog.Text)
	if insts[0].Op != x86asm.JMP {
		t.Fatalf("first inst = %v, want JMP", insts[0].Op)
	}
	if rel, ok := insts[0].Args[0].(x86asm.Rel); !ok || rel != 0 {
		t.Errorf("jmp rel = %v, want 0", insts[0].Args[0])
	}
}

func TestTailCallEmitsReloc(t *testing.T) {
	tgt := amd64Target(t)
	mod := lir.NewModule("m", 2)
	callee := mod.NewFunc("g", 0, false, false)
	bg := lir.Builder{F: callee, B: callee.Entry()}
	bg.Ret(callee.WordConst(0))

	fn := mod.NewFunc("f", 0, false, true)
	b := lir.Builder{F: fn, B: fn.Entry()}
	b.TailCall(fn.FnAddr(callee), nil)

	prog, err := EncodeModule(tgt, mod)
	if err != nil {
		t.Fatal(err)
	}
	var found *asm.Reloc
	for i := range prog.Relocs {
		if prog.Relocs[i].Sym == "g" {
			found = &prog.Relocs[i]
		}
	}
	if found == nil {
		t.Fatal("no relocation against g")
	}
	if found.Kind != asm.RelocPCRel32 || found.Addend != -4 {
		t.Errorf("reloc = %+v, want pcrel32 addend -4", found)
	}
}

func TestSwitchEmitsJumpTable(t *testing.T) {
	tgt := amd64Target(t)
	mod := lir.NewModule("m", 1)
	fn := mod.NewFunc("f", 0, false, true)
	idx := fn.AddParam(fn.Entry(), lir.Word)
	c0 := fn.NewBlock("c0")
	c1 := fn.NewBlock("c1")
	b := lir.Builder{F: fn, B: fn.Entry()}
	b.Switch(idx, []*lir.Block{c0, c1})
	b.SetBlock(c0)
	b.Ret(fn.WordConst(0))
	b.SetBlock(c1)
	b.Ret(fn.WordConst(1))

	prog, err := EncodeModule(tgt, mod)
	if err != nil {
		t.Fatal(err)
	}
	var rodata *asm.DataSection
	for i := range prog.Data {
		if prog.Data[i].Name == ".rodata" {
			rodata = &prog.Data[i]
		}
	}
	if rodata == nil {
		t.Fatal("no .rodata section for the jump table")
	}
	if len(rodata.Bytes) != 16 || len(rodata.Relocs) != 2 {
		t.Fatalf("table has %d bytes / %d relocs, want 16/2", len(rodata.Bytes), len(rodata.Relocs))
	}
	for _, r := range rodata.Relocs {
		if r.Kind != asm.RelocAbs64 || r.Sym != "f" {
			t.Errorf("table reloc = %+v, want abs64 against f", r)
		}
		if r.Addend <= 0 {
			t.Errorf("table addend = %d, want positive block offset", r.Addend)
		}
	}
	if prog.FindSym("f.jt0") == nil {
		t.Error("jump table symbol missing")
	}
}

func TestFloatNegUsesMaskPool(t *testing.T) {
	tgt := amd64Target(t)
	mod := lir.NewModule("m", 1)
	fn := mod.NewFunc("f", 0, false, true)
	x := fn.AddParam(fn.Entry(), lir.F64)
	b := lir.Builder{F: fn, B: fn.Entry()}
	neg := b.FNeg(x)
	_ = b.FAbs(neg)
	b.Ret(nil)

	prog, err := EncodeModule(tgt, mod)
	if err != nil {
		t.Fatal(err)
	}
	var cst *asm.DataSection
	for i := range prog.Data {
		if prog.Data[i].Name == cstSection {
			cst = &prog.Data[i]
		}
	}
	if cst == nil {
		t.Fatal("no mask literal section")
	}
	if len(cst.Bytes) != 32 || cst.Align != 16 {
		t.Fatalf("mask section %d bytes align %d, want 32/16", len(cst.Bytes), cst.Align)
	}
	if cst.Bytes[7] != 0x80 {
		t.Errorf("sign mask high byte = %#x, want 0x80", cst.Bytes[7])
	}
	if prog.FindSym("Lfsgnmask") == nil || prog.FindSym("Lfabsmask") == nil {
		t.Error("mask symbols missing")
	}
}

func TestEntryParamsExceedRegisters(t *testing.T) {
	tgt := amd64Target(t)
	mod := lir.NewModule("m", 1)
	fn := mod.NewFunc("f", 2, false, true)
	for i := 0; i < 9; i++ {
		fn.AddParam(fn.Entry(), lir.Word)
	}
	b := lir.Builder{F: fn, B: fn.Entry()}
	b.Ret(nil)

	if _, err := EncodeModule(tgt, mod); err == nil {
		t.Fatal("expected error for arguments beyond the register slots")
	}
}

func TestCallGCRespillsFrontier(t *testing.T) {
	tgt := amd64Target(t)
	mod := lir.NewModule("m", 1)
	fn := mod.NewFunc("f", 0, false, true)
	root := fn.AddParam(fn.Entry(), lir.Ptr)
	b := lir.Builder{F: fn, B: fn.Entry()}
	_, reloaded := b.CallGC([]*lir.Value{root}, 2)
	b.Ret(b.AsInt(reloaded[0]))

	prog, err := EncodeModule(tgt, mod)
	if err != nil {
		t.Fatal(err)
	}
	insts := disasm(t, prog.Text)
	callIdx := -1
	for i, in := range insts {
		if in.Op == x86asm.CALL {
			callIdx = i
		}
	}
	if callIdx < 0 {
		t.Fatal("no collector call encoded")
	}
	// After the call the pinned frontier pair must be spilled back into
	// the value slots; otherwise the continuation reads pre-collection
	// pointers.
	saved := map[x86asm.Reg]bool{}
	for _, in := range insts[callIdx+1:] {
		if in.Op != x86asm.MOV {
			continue
		}
		mem, isMem := in.Args[0].(x86asm.Mem)
		reg, isReg := in.Args[1].(x86asm.Reg)
		if isMem && isReg && mem.Base == x86asm.RSP {
			saved[reg] = true
		}
	}
	if !saved[x86asm.R12] || !saved[x86asm.R13] {
		t.Errorf("post-call spills = %v, want R12 and R13 respilled", saved)
	}
}
