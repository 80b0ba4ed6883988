package codeobj

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"strings"
	"testing"

	"cgen/internal/asm"
	"cgen/internal/objfile"
	"cgen/internal/target"
)

func targetFor(t *testing.T, name string) *target.Info {
	t.Helper()
	target.Initialize()
	tgt, err := target.Lookup(name)
	if err != nil {
		t.Fatal(err)
	}
	return tgt
}

// image writes prog through the object writer and returns the bytes.
func image(t *testing.T, tgt *target.Info, prog *asm.Program) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := objfile.Write(&buf, tgt, prog); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func amd64Sample() *asm.Program {
	prog := &asm.Program{
		// lea rax,[rip+0]; ret
		Text: []byte{0x48, 0x8D, 0x05, 0, 0, 0, 0, 0xC3},
		Syms: []asm.Symbol{{Name: "entry", Off: 0, Global: true}},
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

func TestLayoutTextFirst(t *testing.T) {
	tgt := targetFor(t, "amd64")
	co, err := New(tgt, image(t, tgt, amd64Sample()))
	if err != nil {
		t.Fatal(err)
	}
	if co.Size() != 16 {
		t.Errorf("Size() = %d, want 16", co.Size())
	}
	if co.secs[0].sec.Name != ".text" || co.secs[0].off != 0 {
		t.Errorf("first section = %s at %d, want .text at 0", co.secs[0].sec.Name, co.secs[0].off)
	}
	off, err := co.offsetOf(".rodata")
	if err != nil || off != 8 {
		t.Errorf("rodata at %d (%v), want 8", off, err)
	}
}

func TestGetCodePatchesForBase(t *testing.T) {
	tgt := targetFor(t, "amd64")
	co, err := New(tgt, image(t, tgt, amd64Sample()))
	if err != nil {
		t.Fatal(err)
	}
	const base = 0x7f0000400000
	code := make([]byte, co.Size())
	if err := co.GetCode(code, base); err != nil {
		t.Fatal(err)
	}
	// PC-relative: base cancels. S+A-P = (base+0) + (-4) - (base+3) = -7.
	if got := int32(binary.LittleEndian.Uint32(code[3:])); got != -7 {
		t.Errorf("lea displacement = %d, want -7", got)
	}
	// Absolute: the table entry holds the load address plus the addend.
	if got := binary.LittleEndian.Uint64(code[8:]); got != base+4 {
		t.Errorf("table entry = %#x, want %#x", got, uint64(base+4))
	}
}

func TestArm64AdrpAddPatch(t *testing.T) {
	tgt := targetFor(t, "arm64")
	prog := &asm.Program{
		Text: make([]byte, 12),
		Syms: []asm.Symbol{{Name: "f", Global: true}},
		Relocs: []asm.Reloc{
			{Kind: asm.RelocAdrPage21, Off: 0, Sym: "f"},
			{Kind: asm.RelocAddLo12, Off: 4, Sym: "f"},
		},
	}
	binary.LittleEndian.PutUint32(prog.Text[0:], 0x90000000)  // adrp x0, 0
	binary.LittleEndian.PutUint32(prog.Text[4:], 0x91000000)  // add x0, x0, #0
	binary.LittleEndian.PutUint32(prog.Text[8:], 0xD65F03C0)  // ret

	co, err := New(tgt, image(t, tgt, prog))
	if err != nil {
		t.Fatal(err)
	}
	const base = 0x10123 // deliberately not page aligned
	code := make([]byte, co.Size())
	if err := co.GetCode(code, base); err != nil {
		t.Fatal(err)
	}
	// Symbol and patch site share a page, so the adrp immediate is zero.
	adrp := binary.LittleEndian.Uint32(code[0:])
	if adrp != 0x90000000 {
		t.Errorf("adrp = %#x, want zero page delta", adrp)
	}
	add := binary.LittleEndian.Uint32(code[4:])
	if imm := (add >> 10) & 0xFFF; imm != base&0xFFF {
		t.Errorf("add lo12 = %#x, want %#x", imm, base&0xFFF)
	}
}

func TestUnknownRelocTypeRejected(t *testing.T) {
	tgt := targetFor(t, "amd64")
	obj := &objfile.Object{
		Machine: elf.EM_X86_64,
		Sections: []objfile.Section{{
			Name:  ".text",
			Bytes: []byte{0xC3, 0, 0, 0, 0, 0, 0, 0},
			Exec:  true,
			Relocs: []objfile.Reloc{{
				Type:       uint32(elf.R_X86_64_GOTPCREL),
				Off:        1,
				SymSection: ".text",
			}},
		}},
	}
	co, err := fromObject(tgt, obj)
	if err != nil {
		t.Fatal(err)
	}
	err = co.GetCode(make([]byte, co.Size()), 0)
	if err == nil || !strings.Contains(err.Error(), "unknown relocation") {
		t.Fatalf("err = %v, want unknown relocation type", err)
	}
}

func TestGetCodeRejectsShortBuffer(t *testing.T) {
	tgt := targetFor(t, "amd64")
	co, err := New(tgt, image(t, tgt, amd64Sample()))
	if err != nil {
		t.Fatal(err)
	}
	if err := co.GetCode(make([]byte, co.Size()-1), 0); err == nil {
		t.Fatal("expected short-buffer error")
	}
}

func TestDumpFormat(t *testing.T) {
	tgt := targetFor(t, "amd64")
	co, err := New(tgt, image(t, tgt, amd64Sample()))
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if err := co.Dump(&out, 32); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("dump lines = %d, want 3:\n%s", len(lines), out.String())
	}
	if !strings.HasPrefix(lines[0], "; .text") || !strings.HasPrefix(lines[1], "; .rodata") {
		t.Errorf("section headers = %q, %q", lines[0], lines[1])
	}
	// Dump patches for base 0: the displacement at offset 3 becomes -7.
	if !strings.HasPrefix(lines[2], "00000000: 488d05f9") {
		t.Errorf("dump line = %q", lines[2])
	}
}
