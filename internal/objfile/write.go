// Package objfile writes and reads relocatable ELF64 objects. The writer
// turns an encoded program into an object file image; the reader wraps
// debug/elf and presents the sections and relocations in the normalized
// form the code-object materializer consumes.
package objfile

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"

	"cgen/internal/asm"
	"cgen/internal/target"
)

const (
	ehSize    = 64
	shEntSize = 64
	symSize   = 24
	relaSize  = 24
)

// relocType maps a target-neutral relocation kind to the ELF relocation
// type of the architecture.
func relocType(arch target.Arch, kind asm.RelocKind) (uint32, error) {
	switch arch {
	case target.AMD64:
		switch kind {
		case asm.RelocPCRel32:
			return uint32(elf.R_X86_64_PC32), nil
		case asm.RelocAbs32:
			return uint32(elf.R_X86_64_32), nil
		case asm.RelocAbs64:
			return uint32(elf.R_X86_64_64), nil
		}
	case target.ARM64:
		switch kind {
		case asm.RelocAdrPage21:
			return uint32(elf.R_AARCH64_ADR_PREL_PG_HI21), nil
		case asm.RelocAddLo12:
			return uint32(elf.R_AARCH64_ADD_ABS_LO12_NC), nil
		case asm.RelocBranch26:
			return uint32(elf.R_AARCH64_JUMP26), nil
		case asm.RelocCall26:
			return uint32(elf.R_AARCH64_CALL26), nil
		case asm.RelocAbs64:
			return uint32(elf.R_AARCH64_ABS64), nil
		case asm.RelocPCRel32:
			return uint32(elf.R_AARCH64_PREL32), nil
		}
	}
	return 0, fmt.Errorf("objfile: relocation %v unsupported on %v", kind, arch)
}

type strtab struct {
	buf []byte
	off map[string]uint32
}

func newStrtab() *strtab {
	return &strtab{buf: []byte{0}, off: map[string]uint32{"": 0}}
}

func (st *strtab) add(s string) uint32 {
	if off, ok := st.off[s]; ok {
		return off
	}
	off := uint32(len(st.buf))
	st.buf = append(st.buf, s...)
	st.buf = append(st.buf, 0)
	st.off[s] = off
	return off
}

type outSection struct {
	name      string
	typ       elf.SectionType
	flags     elf.SectionFlag
	align     uint64
	body      []byte
	link      uint32 // for rela/symtab
	info      uint32
	entsize   uint64
	nameOff   uint32
	bodyStart uint64
}

// Write emits prog as a relocatable ELF object.
func Write(w io.Writer, tgt *target.Info, prog *asm.Program) error {
	shstr := newStrtab()
	str := newStrtab()

	var secs []*outSection
	addSec := func(s *outSection) int {
		secs = append(secs, s)
		return len(secs) // section header index (after the null entry)
	}

	textIdx := addSec(&outSection{
		name: ".text", typ: elf.SHT_PROGBITS,
		flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR,
		align: 16, body: prog.Text,
	})
	dataIdx := make(map[string]int, len(prog.Data))
	for i := range prog.Data {
		d := &prog.Data[i]
		dataIdx[d.Name] = addSec(&outSection{
			name: d.Name, typ: elf.SHT_PROGBITS,
			flags: elf.SHF_ALLOC,
			align: uint64(d.Align), body: d.Bytes,
		})
	}
	secIdxOf := func(section string) int {
		if section == "" {
			return textIdx
		}
		return dataIdx[section]
	}

	// Symbol table: null, section symbols, local labels, then globals.
	type symEnt struct {
		name    uint32
		info    byte
		shndx   uint16
		value   uint64
		isLocal bool
	}
	var syms []symEnt
	symIdx := make(map[string]uint32)
	syms = append(syms, symEnt{isLocal: true}) // null entry
	for i := range secs {
		syms = append(syms, symEnt{
			info:    byte(elf.STB_LOCAL)<<4 | byte(elf.STT_SECTION),
			shndx:   uint16(i + 1),
			isLocal: true,
		})
	}
	addSym := func(ps asm.Symbol, local bool) {
		bind := elf.STB_GLOBAL
		if local {
			bind = elf.STB_LOCAL
		}
		symIdx[ps.Name] = uint32(len(syms))
		syms = append(syms, symEnt{
			name:    str.add(ps.Name),
			info:    byte(bind)<<4 | byte(elf.STT_FUNC),
			shndx:   uint16(secIdxOf(ps.Section)),
			value:   uint64(ps.Off),
			isLocal: local,
		})
	}
	for _, ps := range prog.Syms {
		if !ps.Global {
			addSym(ps, true)
		}
	}
	firstGlobal := len(syms)
	for _, ps := range prog.Syms {
		if ps.Global {
			addSym(ps, false)
		}
	}

	// Relocation sections.
	buildRela := func(relocs []asm.Reloc) ([]byte, error) {
		var buf bytes.Buffer
		for _, r := range relocs {
			typ, err := relocType(tgt.Arch, r.Kind)
			if err != nil {
				return nil, err
			}
			idx, ok := symIdx[r.Sym]
			if !ok {
				return nil, fmt.Errorf("objfile: relocation against unknown symbol %q", r.Sym)
			}
			var ent [relaSize]byte
			binary.LittleEndian.PutUint64(ent[0:], uint64(r.Off))
			binary.LittleEndian.PutUint64(ent[8:], uint64(idx)<<32|uint64(typ))
			binary.LittleEndian.PutUint64(ent[16:], uint64(r.Addend))
			buf.Write(ent[:])
		}
		return buf.Bytes(), nil
	}

	type relaPlan struct {
		name   string
		target int
		relocs []asm.Reloc
	}
	plans := []relaPlan{{".rela.text", textIdx, prog.Relocs}}
	for i := range prog.Data {
		d := &prog.Data[i]
		if len(d.Relocs) > 0 {
			plans = append(plans, relaPlan{".rela" + d.Name, dataIdx[d.Name], d.Relocs})
		}
	}
	symtabIdx := len(secs) + len(plans) + 1
	for _, p := range plans {
		body, err := buildRela(p.relocs)
		if err != nil {
			return err
		}
		addSec(&outSection{
			name: p.name, typ: elf.SHT_RELA, align: 8,
			body: body, link: uint32(symtabIdx), info: uint32(p.target),
			entsize: relaSize,
		})
	}

	var symBody bytes.Buffer
	for _, s := range syms {
		var ent [symSize]byte
		binary.LittleEndian.PutUint32(ent[0:], s.name)
		ent[4] = s.info
		binary.LittleEndian.PutUint16(ent[6:], s.shndx)
		binary.LittleEndian.PutUint64(ent[8:], s.value)
		symBody.Write(ent[:])
	}
	strtabIdx := symtabIdx + 1
	addSec(&outSection{
		name: ".symtab", typ: elf.SHT_SYMTAB, align: 8,
		body: symBody.Bytes(), link: uint32(strtabIdx),
		info: uint32(firstGlobal), entsize: symSize,
	})
	addSec(&outSection{
		name: ".strtab", typ: elf.SHT_STRTAB, align: 1, body: str.buf,
	})
	shstrIdx := len(secs) + 1
	shstrSec := &outSection{name: ".shstrtab", typ: elf.SHT_STRTAB, align: 1}
	addSec(shstrSec)
	for _, s := range secs {
		s.nameOff = shstr.add(s.name)
	}
	shstrSec.body = shstr.buf

	// Lay out bodies after the ELF header, then the section header table.
	off := uint64(ehSize)
	for _, s := range secs {
		if s.align > 1 {
			off = (off + s.align - 1) &^ (s.align - 1)
		}
		s.bodyStart = off
		off += uint64(len(s.body))
	}
	shoff := (off + 7) &^ 7

	machine := elf.EM_X86_64
	if tgt.Arch == target.ARM64 {
		machine = elf.EM_AARCH64
	}
	var out bytes.Buffer
	out.Write([]byte{0x7F, 'E', 'L', 'F',
		byte(elf.ELFCLASS64), byte(elf.ELFDATA2LSB), byte(elf.EV_CURRENT),
		0, 0, 0, 0, 0, 0, 0, 0, 0})
	hdr := make([]byte, ehSize-16)
	binary.LittleEndian.PutUint16(hdr[0:], uint16(elf.ET_REL))
	binary.LittleEndian.PutUint16(hdr[2:], uint16(machine))
	binary.LittleEndian.PutUint32(hdr[4:], uint32(elf.EV_CURRENT))
	binary.LittleEndian.PutUint64(hdr[24:], shoff)
	binary.LittleEndian.PutUint16(hdr[36:], ehSize)
	binary.LittleEndian.PutUint16(hdr[42:], shEntSize)
	binary.LittleEndian.PutUint16(hdr[44:], uint16(len(secs)+1))
	binary.LittleEndian.PutUint16(hdr[46:], uint16(shstrIdx))
	out.Write(hdr)

	for _, s := range secs {
		for uint64(out.Len()) < s.bodyStart {
			out.WriteByte(0)
		}
		out.Write(s.body)
	}
	for uint64(out.Len()) < shoff {
		out.WriteByte(0)
	}
	// Null section header.
	out.Write(make([]byte, shEntSize))
	for _, s := range secs {
		var sh [shEntSize]byte
		binary.LittleEndian.PutUint32(sh[0:], s.nameOff)
		binary.LittleEndian.PutUint32(sh[4:], uint32(s.typ))
		binary.LittleEndian.PutUint64(sh[8:], uint64(s.flags))
		binary.LittleEndian.PutUint64(sh[24:], s.bodyStart)
		binary.LittleEndian.PutUint64(sh[32:], uint64(len(s.body)))
		binary.LittleEndian.PutUint32(sh[40:], s.link)
		binary.LittleEndian.PutUint32(sh[44:], s.info)
		binary.LittleEndian.PutUint64(sh[48:], s.align)
		binary.LittleEndian.PutUint64(sh[56:], s.entsize)
		out.Write(sh[:])
	}

	_, err := w.Write(out.Bytes())
	return err
}
