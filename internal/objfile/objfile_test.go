package objfile

import (
	"bytes"
	"debug/elf"
	"testing"

	"cgen/internal/asm"
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

func sampleProgram() *asm.Program {
	prog := &asm.Program{
		Text: []byte{0x48, 0x8D, 0x05, 0, 0, 0, 0, 0xC3}, // lea rax,[rip+0]; ret
		Syms: []asm.Symbol{
			{Name: "entry", Off: 0, Global: true},
			{Name: "local", Off: 7},
		},
		Relocs: []asm.Reloc{
			{Kind: asm.RelocPCRel32, Off: 3, Sym: "entry", Addend: -4},
		},
	}
	sec := prog.Section(".rodata", 8)
	sec.Bytes = append(sec.Bytes, make([]byte, 8)...)
	sec.Relocs = append(sec.Relocs, asm.Reloc{
		Kind: asm.RelocAbs64, Off: 0, Sym: "entry", Addend: 4,
	})
	return prog
}

func TestWriteReadRoundTrip(t *testing.T) {
	tgt := amd64Target(t)
	var buf bytes.Buffer
	if err := Write(&buf, tgt, sampleProgram()); err != nil {
		t.Fatal(err)
	}

	obj, err := Read(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if obj.Machine != elf.EM_X86_64 {
		t.Errorf("machine = %v", obj.Machine)
	}
	text := obj.FindSection(".text")
	if text == nil || !text.Exec {
		t.Fatalf("text section = %+v", text)
	}
	if !bytes.Equal(text.Bytes, sampleProgram().Text) {
		t.Errorf("text bytes = % x", text.Bytes)
	}
	if len(text.Relocs) != 1 {
		t.Fatalf("text has %d relocs", len(text.Relocs))
	}
	r := text.Relocs[0]
	if r.Type != uint32(elf.R_X86_64_PC32) || r.Off != 3 || r.Addend != -4 {
		t.Errorf("text reloc = %+v", r)
	}
	if r.SymSection != ".text" || r.SymValue != 0 {
		t.Errorf("reloc target = %s+%d, want .text+0", r.SymSection, r.SymValue)
	}

	rodata := obj.FindSection(".rodata")
	if rodata == nil || len(rodata.Relocs) != 1 {
		t.Fatalf("rodata = %+v", rodata)
	}
	if rodata.Relocs[0].Type != uint32(elf.R_X86_64_64) || rodata.Relocs[0].Addend != 4 {
		t.Errorf("rodata reloc = %+v", rodata.Relocs[0])
	}
}

func TestSymbolBinding(t *testing.T) {
	tgt := amd64Target(t)
	var buf bytes.Buffer
	if err := Write(&buf, tgt, sampleProgram()); err != nil {
		t.Fatal(err)
	}
	obj, err := Read(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	byName := make(map[string]Symbol)
	for _, s := range obj.Syms {
		byName[s.Name] = s
	}
	if s := byName["entry"]; !s.Global || s.Section != ".text" {
		t.Errorf("entry = %+v, want global in .text", s)
	}
	if s := byName["local"]; s.Global || s.Value != 7 {
		t.Errorf("local = %+v, want local at 7", s)
	}
}

func TestReadRejectsNonRelocatable(t *testing.T) {
	if _, err := Read([]byte("not an elf file at all, padded to enough length...")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestWriteRejectsUnknownRelocSymbol(t *testing.T) {
	tgt := amd64Target(t)
	prog := &asm.Program{
		Text:   []byte{0xC3},
		Relocs: []asm.Reloc{{Kind: asm.RelocPCRel32, Off: 0, Sym: "nowhere"}},
	}
	if err := Write(&bytes.Buffer{}, tgt, prog); err == nil {
		t.Fatal("expected unknown-symbol error")
	}
}

func TestArm64RelocTypes(t *testing.T) {
	target.Initialize()
	tgt, err := target.Lookup("arm64")
	if err != nil {
		t.Fatal(err)
	}
	prog := &asm.Program{
		Text: make([]byte, 8),
		Syms: []asm.Symbol{{Name: "f", Global: true}},
		Relocs: []asm.Reloc{
			{Kind: asm.RelocAdrPage21, Off: 0, Sym: "f"},
			{Kind: asm.RelocAddLo12, Off: 4, Sym: "f"},
		},
	}
	var buf bytes.Buffer
	if err := Write(&buf, tgt, prog); err != nil {
		t.Fatal(err)
	}
	obj, err := Read(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	relocs := obj.FindSection(".text").Relocs
	if len(relocs) != 2 {
		t.Fatalf("got %d relocs", len(relocs))
	}
	if relocs[0].Type != uint32(elf.R_AARCH64_ADR_PREL_PG_HI21) ||
		relocs[1].Type != uint32(elf.R_AARCH64_ADD_ABS_LO12_NC) {
		t.Errorf("types = %d/%d", relocs[0].Type, relocs[1].Type)
	}
}
