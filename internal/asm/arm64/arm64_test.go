package arm64

import (
	"testing"

	"golang.org/x/arch/arm64/arm64asm"

	"cgen/internal/asm"
	"cgen/internal/lir"
	"cgen/internal/target"
)

func arm64Target(t *testing.T) *target.Info {
	t.Helper()
	target.Initialize()
	tgt, err := target.Lookup("arm64")
	if err != nil {
		t.Fatal(err)
	}
	return tgt
}

// disasm decodes the whole text image with the reference decoder.
func disasm(t *testing.T, text []byte) []arm64asm.Inst {
	t.Helper()
	var out []arm64asm.Inst
	for off := 0; off < len(text); off += 4 {
		inst, err := arm64asm.Decode(text[off:])
		if err != nil {
			t.Fatalf("undecodable instruction at %#x: % x: %v", off, text[off:off+4], err)
		}
		out = append(out, inst)
	}
	return out
}

func hasOp(insts []arm64asm.Inst, op arm64asm.Op) bool {
	for _, in := range insts {
		if in.Op == op {
			return true
		}
	}
	return false
}

func TestEncodeRetConstant(t *testing.T) {
	tgt := arm64Target(t)
	mod := lir.NewModule("m", 1)
	fn := mod.NewFunc("f", 0, false, true)
	b := lir.Builder{F: fn, B: fn.Entry()}
	b.Ret(fn.WordConst(42))

	prog, err := EncodeModule(tgt, mod)
	if err != nil {
		t.Fatal(err)
	}
	insts := disasm(t, prog.Text)
	if len(insts) != 2 {
		t.Fatalf("got %d instructions, want movz; ret", len(insts))
	}
	if insts[0].Op != arm64asm.MOVZ || insts[1].Op != arm64asm.RET {
		t.Fatalf("insts = %v, want MOVZ; RET", insts)
	}
}

func TestArithmeticDecodes(t *testing.T) {
	tgt := arm64Target(t)
	mod := lir.NewModule("m", 1)
	fn := mod.NewFunc("f", 0, false, true)
	p := fn.AddParam(fn.Entry(), lir.Word)
	q := fn.AddParam(fn.Entry(), lir.Word)
	b := lir.Builder{F: fn, B: fn.Entry()}
	sum := b.Add(p, q)
	quot := b.SDiv(sum, q)
	rem := b.SRem(quot, p)
	cmp := b.ICmp(lir.PredULT, rem, p)
	b.Ret(cmp)

	prog, err := EncodeModule(tgt, mod)
	if err != nil {
		t.Fatal(err)
	}
	insts := disasm(t, prog.Text)
	for _, want := range []arm64asm.Op{arm64asm.ADD, arm64asm.SDIV, arm64asm.MSUB, arm64asm.CSINC} {
		if !hasOp(insts, want) {
			t.Errorf("%v not found in %v", want, insts)
		}
	}
}

func TestMulOverflowSequence(t *testing.T) {
	tgt := arm64Target(t)
	mod := lir.NewModule("m", 1)
	fn := mod.NewFunc("f", 0, false, true)
	p := fn.AddParam(fn.Entry(), lir.Word)
	b := lir.Builder{F: fn, B: fn.Entry()}
	res, _ := b.ArithOvflw(lir.OpMulOvflw, p, p)
	b.Ret(res)

	prog, err := EncodeModule(tgt, mod)
	if err != nil {
		t.Fatal(err)
	}
	insts := disasm(t, prog.Text)
	if !hasOp(insts, arm64asm.MUL) || !hasOp(insts, arm64asm.SMULH) {
		t.Fatalf("mul overflow must use mul+smulh: %v", insts)
	}
}

func TestBranchBackpatching(t *testing.T) {
	tgt := arm64Target(t)
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
	insts := disasm(t, prog.Text)
	if insts[0].Op != arm64asm.B {
		t.Fatalf("first inst = %v, want B", insts[0].Op)
	}
	// The branch lands on the next word.
	if pc, ok := insts[0].Args[0].(arm64asm.PCRel); !ok || pc != 4 {
		t.Errorf("branch offset = %v, want +4", insts[0].Args[0])
	}
}

func TestTailCallEmitsBranchReloc(t *testing.T) {
	tgt := arm64Target(t)
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
	if found.Kind != asm.RelocBranch26 {
		t.Errorf("reloc kind = %v, want branch26", found.Kind)
	}
}

func TestFnAddrUsesAdrpAddPair(t *testing.T) {
	tgt := arm64Target(t)
	mod := lir.NewModule("m", 1)
	fn := mod.NewFunc("f", 0, false, true)
	b := lir.Builder{F: fn, B: fn.Entry()}
	b.Ret(fn.FnAddr(fn))

	prog, err := EncodeModule(tgt, mod)
	if err != nil {
		t.Fatal(err)
	}
	var kinds []asm.RelocKind
	for _, r := range prog.Relocs {
		kinds = append(kinds, r.Kind)
	}
	if len(kinds) != 2 || kinds[0] != asm.RelocAdrPage21 || kinds[1] != asm.RelocAddLo12 {
		t.Fatalf("relocs = %v, want adr_page21 then add_lo12", kinds)
	}
	insts := disasm(t, prog.Text)
	if insts[0].Op != arm64asm.ADRP {
		t.Errorf("first inst = %v, want ADRP", insts[0].Op)
	}
}

func TestSwitchEmitsJumpTable(t *testing.T) {
	tgt := arm64Target(t)
	mod := lir.NewModule("m", 1)
	fn := mod.NewFunc("f", 0, false, true)
	idx := fn.AddParam(fn.Entry(), lir.Word)
	c0 := fn.NewBlock("c0")
	c1 := fn.NewBlock("c1")
	c2 := fn.NewBlock("c2")
	b := lir.Builder{F: fn, B: fn.Entry()}
	b.Switch(idx, []*lir.Block{c0, c1, c2})
	for i, blk := range []*lir.Block{c0, c1, c2} {
		b.SetBlock(blk)
		b.Ret(fn.WordConst(int64(i)))
	}

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
	if rodata == nil || len(rodata.Bytes) != 24 || len(rodata.Relocs) != 3 {
		t.Fatalf("jump table section = %+v, want 24 bytes / 3 relocs", rodata)
	}
}

func TestCallGCRespillsFrontier(t *testing.T) {
	tgt := arm64Target(t)
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
		if in.Op == arm64asm.BLR {
			callIdx = i
		}
	}
	if callIdx < 0 {
		t.Fatal("no collector call encoded")
	}
	// The pinned frontier pair comes back refreshed and must be spilled
	// into the value slots after the call.
	saved := map[arm64asm.Reg]bool{}
	for _, in := range insts[callIdx+1:] {
		if in.Op != arm64asm.STR {
			continue
		}
		if reg, ok := in.Args[0].(arm64asm.Reg); ok {
			saved[reg] = true
		}
	}
	if !saved[arm64asm.X25] || !saved[arm64asm.X24] {
		t.Errorf("post-call stores = %v, want X25 and X24 respilled", saved)
	}
}
