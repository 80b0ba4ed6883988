package lir

import (
	"strings"
	"testing"
)

func TestBuilderCoercions(t *testing.T) {
	m := NewModule("t", 1)
	f := m.NewFunc("f", 0, false, true)
	p := f.AddParam(f.Entry(), Ptr)
	q := f.AddParam(f.Entry(), Word)
	b := &Builder{F: f}
	b.SetBlock(f.Entry())

	sum := b.Add(p, q)
	if sum.Type != Word {
		t.Fatalf("Add result type = %v, want Word", sum.Type)
	}
	// The pointer operand must have been converted first.
	if got := f.Entry().Instrs[0].Op; got != OpPtrToInt {
		t.Fatalf("first instr = %v, want ptrtoint", got)
	}
	// An integer operand passes through without a conversion.
	n := len(f.Entry().Instrs)
	b.Add(q, q)
	if len(f.Entry().Instrs) != n+1 {
		t.Fatalf("Add(q, q) emitted %d instrs, want 1", len(f.Entry().Instrs)-n)
	}
	b.Ret(sum)
	if err := f.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestDoubleTerminatePanics(t *testing.T) {
	m := NewModule("t", 1)
	f := m.NewFunc("f", 0, false, false)
	b := &Builder{F: f}
	b.SetBlock(f.Entry())
	b.Ret(f.WordConst(0))
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on second terminator")
		}
	}()
	b.Ret(f.WordConst(1))
}

func TestValidateBranchArity(t *testing.T) {
	m := NewModule("t", 1)
	f := m.NewFunc("f", 0, false, false)
	join := f.NewBlock("join")
	f.AddParam(join, Word)
	b := &Builder{F: f}
	b.SetBlock(f.Entry())
	b.Br(join, nil) // missing the argument
	b.SetBlock(join)
	b.Ret(join.Params[0])
	err := f.Validate()
	if err == nil || !strings.Contains(err.Error(), "br passes 0 args") {
		t.Fatalf("Validate = %v, want branch arity error", err)
	}
}

func TestValidateUnterminated(t *testing.T) {
	m := NewModule("t", 1)
	f := m.NewFunc("f", 0, false, false)
	if err := f.Validate(); err == nil {
		t.Fatal("expected unterminated-block error")
	}
}

func TestOverflowArith(t *testing.T) {
	m := NewModule("t", 1)
	f := m.NewFunc("f", 0, false, false)
	b := &Builder{F: f}
	b.SetBlock(f.Entry())
	res, flag := b.ArithOvflw(OpAddOvflw, f.IConst(I32, 1), f.IConst(I32, 2))
	if res.Type != I32 || flag.Type != I8 {
		t.Fatalf("ovflw types = %v/%v, want i32/i8", res.Type, flag.Type)
	}
	b.Ret(nil)
	if err := f.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestPrintContainsStructure(t *testing.T) {
	m := NewModule("unit", 1)
	f := m.NewFunc("entry42", 2, false, true)
	f.AddParam(f.Entry(), Ptr)
	f.AddParam(f.Entry(), Ptr)
	b := &Builder{F: f}
	b.SetBlock(f.Entry())
	b.Ret(f.WordConst(7))

	var sb strings.Builder
	m.Print(&sb)
	out := sb.String()
	for _, want := range []string{"module \"unit\"", "export func entry42", "ret word 7"} {
		if !strings.Contains(out, want) {
			t.Errorf("Print output missing %q:\n%s", want, out)
		}
	}
}
