// Package codeobj materializes an in-memory code object from a
// relocatable object image: the text plus whatever data sections the
// target policy carries along (literal pools, jump tables), laid out at
// word-aligned offsets, with relocations patched for the final load
// address.
package codeobj

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"fortio.org/safecast"

	"cgen/internal/objfile"
	"cgen/internal/target"
)

type placed struct {
	sec *objfile.Section
	off int
}

// CodeObject is the layout of one compiled unit, ready to be copied out.
type CodeObject struct {
	tgt     *target.Info
	secs    []placed
	size    int
	dropped int
}

// New parses a relocatable image and computes the code-object layout.
// The text goes first, so the module entry sits at offset zero.
func New(tgt *target.Info, image []byte) (*CodeObject, error) {
	obj, err := objfile.Read(image)
	if err != nil {
		return nil, err
	}
	return fromObject(tgt, obj)
}

func fromObject(tgt *target.Info, obj *objfile.Object) (*CodeObject, error) {
	co := &CodeObject{tgt: tgt, dropped: obj.Dropped}
	text := obj.FindSection(".text")
	if text == nil || len(text.Bytes) == 0 {
		return nil, fmt.Errorf("codeobj: object has no text")
	}
	co.place(text)
	for i := range obj.Sections {
		sec := &obj.Sections[i]
		if sec == text || !co.includeData(sec.Name) {
			continue
		}
		co.place(sec)
	}
	return co, nil
}

// includeData is the per-architecture data-section policy: both targets
// carry the jump tables in .rodata; x86-64 additionally emits literal
// pools for the float mask constants.
func (co *CodeObject) includeData(name string) bool {
	switch co.tgt.Arch {
	case target.AMD64:
		return strings.HasPrefix(name, ".rodata") || strings.HasPrefix(name, ".literal")
	default:
		return strings.HasPrefix(name, ".rodata")
	}
}

// place appends a section at the next word-aligned offset. Offsets are
// strictly increasing; the entry text is always first.
func (co *CodeObject) place(sec *objfile.Section) {
	off := int(co.tgt.RoundToWordSz(uint64(co.size)))
	if a := int(sec.Align); a > co.tgt.WordSzB {
		off = (off + a - 1) &^ (a - 1)
	}
	co.secs = append(co.secs, placed{sec: sec, off: off})
	co.size = off + len(sec.Bytes)
}

// Size returns the total byte size of the code object.
func (co *CodeObject) Size() int { return int(co.tgt.RoundToWordSz(uint64(co.size))) }

func (co *CodeObject) offsetOf(section string) (int, error) {
	for _, p := range co.secs {
		if p.sec.Name == section {
			return p.off, nil
		}
	}
	return 0, fmt.Errorf("codeobj: relocation against excluded section %s", section)
}

// GetCode copies the laid-out sections into code and patches every
// relocation for a load address of base. len(code) must be at least
// Size().
func (co *CodeObject) GetCode(code []byte, base uint64) error {
	if len(code) < co.Size() {
		return fmt.Errorf("codeobj: buffer %d bytes, object needs %d", len(code), co.Size())
	}
	for _, p := range co.secs {
		copy(code[p.off:], p.sec.Bytes)
	}
	for _, p := range co.secs {
		for _, r := range p.sec.Relocs {
			symOff, err := co.offsetOf(r.SymSection)
			if err != nil {
				return err
			}
			fieldOff, err := safecast.Conv[int](r.Off)
			if err != nil {
				return fmt.Errorf("codeobj: relocation offset overflow: %w", err)
			}
			s := base + uint64(symOff) + r.SymValue
			pAddr := base + uint64(p.off) + r.Off
			field := code[p.off+fieldOff:]
			if err := co.patch(field, r.Type, s, uint64(r.Addend), pAddr); err != nil {
				return err
			}
		}
	}
	return nil
}

// patch applies one relocation: the classic value is S + A - P for
// PC-relative types and S + A for absolute ones.
func (co *CodeObject) patch(field []byte, typ uint32, s, a, p uint64) error {
	switch co.tgt.Arch {
	case target.AMD64:
		return patchAMD64(field, typ, s, a, p)
	case target.ARM64:
		return patchARM64(field, typ, s, a, p)
	}
	return fmt.Errorf("codeobj: no patch policy for %v", co.tgt.Arch)
}

// patchAMD64 writes the relocated value a byte at a time; x86-64 fields
// are plain little-endian integers at arbitrary offsets.
func patchAMD64(field []byte, typ uint32, s, a, p uint64) error {
	switch elf.R_X86_64(typ) {
	case elf.R_X86_64_PC32:
		v := uint32(s + a - p)
		for i := 0; i < 4; i++ {
			field[i] = byte(v >> (8 * i))
		}
	case elf.R_X86_64_32:
		v := uint32(s + a)
		for i := 0; i < 4; i++ {
			field[i] = byte(v >> (8 * i))
		}
	case elf.R_X86_64_64:
		v := s + a
		for i := 0; i < 8; i++ {
			field[i] = byte(v >> (8 * i))
		}
	default:
		return fmt.Errorf("codeobj: unknown relocation type %d at %#x", typ, p)
	}
	return nil
}

// patchARM64 rewrites immediate fields inside 32-bit instruction words.
func patchARM64(field []byte, typ uint32, s, a, p uint64) error {
	word := binary.LittleEndian.Uint32(field)
	switch elf.R_AARCH64(typ) {
	case elf.R_AARCH64_ADR_PREL_PG_HI21:
		delta := int64((s+a)&^0xFFF) - int64(p&^0xFFF)
		imm := uint32(delta>>12) & 0x1FFFFF
		word &^= 3<<29 | 0x7FFFF<<5
		word |= (imm&3)<<29 | (imm>>2)<<5
	case elf.R_AARCH64_ADD_ABS_LO12_NC:
		word &^= 0xFFF << 10
		word |= uint32((s+a)&0xFFF) << 10
	case elf.R_AARCH64_LDST64_ABS_LO12_NC:
		word &^= 0xFFF << 10
		word |= uint32((s+a)&0xFFF>>3) << 10
	case elf.R_AARCH64_JUMP26, elf.R_AARCH64_CALL26:
		delta := int64(s+a) - int64(p)
		word &^= 0x03FFFFFF
		word |= uint32(delta>>2) & 0x03FFFFFF
	case elf.R_AARCH64_PREL32:
		binary.LittleEndian.PutUint32(field, uint32(s+a-p))
		return nil
	case elf.R_AARCH64_ABS64:
		binary.LittleEndian.PutUint64(field, s+a)
		return nil
	default:
		return fmt.Errorf("codeobj: unknown relocation type %d at %#x", typ, p)
	}
	binary.LittleEndian.PutUint32(field, word)
	return nil
}

// Dump writes the section layout and a hex dump of the materialized
// object, grouped into words of the given bit width.
func (co *CodeObject) Dump(w io.Writer, bits int) error {
	for _, p := range co.secs {
		nrel := len(p.sec.Relocs)
		if _, err := fmt.Fprintf(w, "; %-16s off=%#06x size=%#06x relocs=%d\n",
			p.sec.Name, p.off, len(p.sec.Bytes), nrel); err != nil {
			return err
		}
	}
	if co.dropped > 0 {
		if _, err := fmt.Fprintf(w, "; %d relocation(s) against undefined symbols dropped\n", co.dropped); err != nil {
			return err
		}
	}
	code := make([]byte, co.Size())
	if err := co.GetCode(code, 0); err != nil {
		return err
	}
	group := bits / 8
	if group <= 0 {
		group = 4
	}
	for off := 0; off < len(code); off += 16 {
		end := off + 16
		if end > len(code) {
			end = len(code)
		}
		if _, err := fmt.Fprintf(w, "%08x:", off); err != nil {
			return err
		}
		for i := off; i < end; i++ {
			if (i-off)%group == 0 {
				fmt.Fprint(w, " ")
			}
			fmt.Fprintf(w, "%02x", code[i])
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}
