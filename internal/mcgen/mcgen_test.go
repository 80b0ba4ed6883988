package mcgen

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"cgen/internal/codegen"
	"cgen/internal/lir"
	"cgen/internal/target"
)

func genFor(t *testing.T, m *lir.Module) (*Gen, *codegen.Context) {
	t.Helper()
	target.Initialize()
	cx, err := codegen.NewFor("amd64")
	if err != nil {
		t.Fatal(err)
	}
	g := New(cx)
	g.BeginModule(m)
	return g, cx
}

func TestPipelineOrder(t *testing.T) {
	g, _ := genFor(t, lir.NewModule("m", 0))
	want := []string{
		"simplify-cfg", "instcombine", "reassociate", "const-prop",
		"early-cse", "gvn", "dce", "simplify-cfg",
	}
	if got := g.Passes(); !reflect.DeepEqual(got, want) {
		t.Errorf("Passes() = %v, want %v", got, want)
	}
}

func mustPanic(t *testing.T, what string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s did not panic", what)
		}
	}()
	fn()
}

func TestStateMachinePanics(t *testing.T) {
	target.Initialize()
	cx, err := codegen.NewFor("amd64")
	if err != nil {
		t.Fatal(err)
	}
	g := New(cx)
	mustPanic(t, "Optimize before BeginModule", g.Optimize)

	m := lir.NewModule("m", 0)
	g.BeginModule(m)
	mustPanic(t, "double BeginModule", func() { g.BeginModule(m) })

	g.EndModule()
	mustPanic(t, "Optimize after EndModule", g.Optimize)
	mustPanic(t, "double EndModule", g.EndModule)
}

func TestConstantsFoldThroughPipeline(t *testing.T) {
	m := lir.NewModule("m", 1)
	fn := m.NewFunc("f", 0, false, true)
	b := lir.Builder{F: fn, B: fn.Entry()}
	sum := b.Add(fn.WordConst(2), fn.WordConst(3))
	b.Ret(b.Mul(sum, fn.WordConst(4)))

	g, _ := genFor(t, m)
	g.Optimize()
	if n := len(fn.Entry().Instrs); n != 0 {
		t.Fatalf("entry still has %d instructions", n)
	}
	v := fn.Entry().Term.Ret.Value
	if !v.Const || v.IntVal != 20 {
		t.Errorf("ret value = %+v, want constant 20", v)
	}
}

func TestKnownBranchPrunesDeadBlock(t *testing.T) {
	m := lir.NewModule("m", 1)
	fn := m.NewFunc("f", 0, false, true)
	then := fn.NewBlock("then")
	els := fn.NewBlock("else")
	b := lir.Builder{F: fn, B: fn.Entry()}
	cond := b.ICmp(lir.PredEQ, fn.WordConst(1), fn.WordConst(1))
	b.CondBr(cond, then, els, 0)
	b.SetBlock(then)
	b.Ret(fn.WordConst(1))
	b.SetBlock(els)
	b.Ret(fn.WordConst(2))

	g, _ := genFor(t, m)
	g.Optimize()
	if len(fn.Blocks) != 2 {
		t.Fatalf("blocks = %d, want entry + taken arm", len(fn.Blocks))
	}
	if fn.Entry().Term.Kind != lir.TermBr || fn.Entry().Term.Br.Target != then {
		t.Errorf("entry terminator = %+v, want br to then", fn.Entry().Term)
	}
}

func TestGVNSharesAcrossBlocks(t *testing.T) {
	m := lir.NewModule("m", 1)
	fn := m.NewFunc("f", 0, false, true)
	p := fn.AddParam(fn.Entry(), lir.Word)
	q := fn.AddParam(fn.Entry(), lir.Word)
	next := fn.NewBlock("next")
	b := lir.Builder{F: fn, B: fn.Entry()}
	first := b.Add(p, q)
	b.Store(first, b.AsPtr(p), 8) // keep the first sum live
	b.Br(next, nil)
	b.SetBlock(next)
	b.Ret(b.Add(p, q))

	g, _ := genFor(t, m)
	g.Optimize()
	if v := next.Term.Ret.Value; v != first {
		t.Errorf("ret value = %+v, want the dominating sum", v)
	}
	if n := len(next.Instrs); n != 0 {
		t.Errorf("redundant block still has %d instructions", n)
	}
}

func TestCompileWritesObjectImage(t *testing.T) {
	m := lir.NewModule("m", 1)
	fn := m.NewFunc("f", 0, false, true)
	b := lir.Builder{F: fn, B: fn.Entry()}
	b.Ret(fn.WordConst(7))

	g, cx := genFor(t, m)
	if err := g.Compile(); err != nil {
		t.Fatal(err)
	}
	img := cx.ObjBuf().Bytes()
	if !bytes.HasPrefix(img, []byte("\x7fELF")) {
		t.Fatalf("object image does not start with ELF magic: % x", img[:8])
	}
}

func TestDumpCodeDerivesFilenames(t *testing.T) {
	m := lir.NewModule("m", 1)
	fn := m.NewFunc("f", 0, false, true)
	b := lir.Builder{F: fn, B: fn.Entry()}
	b.Ret(fn.WordConst(7))

	g, _ := genFor(t, m)
	stem := filepath.Join(t.TempDir(), "unit")
	if err := g.DumpCode(stem, true); err != nil {
		t.Fatal(err)
	}
	text, err := os.ReadFile(stem + ".s")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(text), ".text") || !strings.Contains(string(text), "f:") {
		t.Errorf("listing missing directives or label:\n%s", text)
	}

	if err := g.DumpCode(stem, false); err != nil {
		t.Fatal(err)
	}
	obj, err := os.ReadFile(stem + ".o")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(obj, []byte("\x7fELF")) {
		t.Errorf("object file does not start with ELF magic")
	}
}
