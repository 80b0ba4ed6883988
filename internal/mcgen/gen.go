// Package mcgen is the machine-code emission pipeline. A Gen owns the
// function-level optimization passes and the per-architecture emitter for
// one module; it is single-threaded and owned by its codegen Context.
//
// State machine: Created -> BeginModule -> Ready -> (Optimize* |
// Compile | DumpCode)* -> EndModule -> Disposed. Any call outside its
// state panics; that is a programmer error, not an input error.
package mcgen

import (
	"fmt"
	"io"
	"os"

	"cgen/internal/asm"
	"cgen/internal/asm/amd64"
	"cgen/internal/asm/arm64"
	"cgen/internal/codegen"
	"cgen/internal/lir"
	"cgen/internal/objfile"
	"cgen/internal/target"
)

type state int

const (
	stCreated state = iota
	stReady
	stDisposed
)

// Gen drives optimization and emission for one module.
type Gen struct {
	cx     *codegen.Context
	mod    *lir.Module
	passes []Pass
	st     state
}

// New creates a pipeline bound to a Context. BeginModule must follow
// before any other call.
func New(cx *codegen.Context) *Gen {
	return &Gen{cx: cx, st: stCreated}
}

func (g *Gen) require(want state, op string) {
	if g.st != want {
		panic(fmt.Sprintf("mcgen: %s in state %d", op, g.st))
	}
}

// BeginModule attaches the target triple and builds the fixed pass
// pipeline. The order is chosen to expose redundancy before eliminating
// it: folds and reassociation first, then propagation, then the two
// redundancy passes, then cleanup.
func (g *Gen) BeginModule(m *lir.Module) {
	g.require(stCreated, "BeginModule")
	m.Triple = g.cx.Target().Triple
	g.mod = m
	g.passes = []Pass{
		{"simplify-cfg", simplifyCFG},
		{"instcombine", instCombine},
		{"reassociate", reassociate},
		{"const-prop", constProp},
		{"early-cse", earlyCSE},
		{"gvn", gvn},
		{"dce", dce},
		{"simplify-cfg", simplifyCFG},
	}
	g.st = stReady
}

// Passes returns the names of the pipeline in run order.
func (g *Gen) Passes() []string {
	g.require(stReady, "Passes")
	names := make([]string, len(g.passes))
	for i, p := range g.passes {
		names[i] = p.Name
	}
	return names
}

// Optimize runs the pipeline once over every function of the module.
func (g *Gen) Optimize() {
	g.require(stReady, "Optimize")
	for _, fn := range g.mod.Funcs {
		for _, p := range g.passes {
			p.Run(fn)
		}
	}
}

// Compile encodes the module and writes the relocatable object image
// into the Context's byte sink.
func (g *Gen) Compile() error {
	g.require(stReady, "Compile")
	prog, err := g.encode()
	if err != nil {
		return err
	}
	buf := g.cx.ObjBuf()
	buf.Reset()
	return objfile.Write(buf, g.cx.Target(), prog)
}

func (g *Gen) encode() (*asm.Program, error) {
	tgt := g.cx.Target()
	switch tgt.Arch {
	case target.AMD64:
		return amd64.EncodeModule(tgt, g.mod)
	case target.ARM64:
		return arm64.EncodeModule(tgt, g.mod)
	}
	return nil, fmt.Errorf("mcgen: no encoder for %v", tgt.Arch)
}

// DumpCode writes the compiled module to a file derived from stem:
// <stem>.s for assembly text, <stem>.o for the object image. A stem of
// "-" sends assembly to stdout and the object to out.o.
func (g *Gen) DumpCode(stem string, asmText bool) error {
	g.require(stReady, "DumpCode")
	if asmText {
		if stem == "-" {
			return g.dumpAsm(os.Stdout)
		}
		f, err := os.Create(stem + ".s")
		if err != nil {
			return err
		}
		defer f.Close()
		return g.dumpAsm(f)
	}
	name := "out.o"
	if stem != "-" {
		name = stem + ".o"
	}
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()
	prog, err := g.encode()
	if err != nil {
		return err
	}
	return objfile.Write(f, g.cx.Target(), prog)
}

func (g *Gen) dumpAsm(w io.Writer) error {
	prog, err := g.encode()
	if err != nil {
		return err
	}
	return writeListing(w, g.cx.Target(), prog)
}

// EndModule drops the module and the pipeline.
func (g *Gen) EndModule() {
	g.require(stReady, "EndModule")
	g.mod = nil
	g.passes = nil
	g.st = stDisposed
}
