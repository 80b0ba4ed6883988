package objfile

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
)

// Reloc is a relocation in normalized form: the ELF type, the patch
// offset within its section, and the resolved target (section + value
// within it, plus the addend).
type Reloc struct {
	Type       uint32
	Off        uint64
	Addend     int64
	SymSection string
	SymValue   uint64
}

// Symbol is a defined symbol of the object.
type Symbol struct {
	Name    string
	Section string
	Value   uint64
	Global  bool
}

// Section is a loadable section with its relocations attached.
type Section struct {
	Name   string
	Bytes  []byte
	Align  uint64
	Exec   bool
	Relocs []Reloc
}

// Object is the parsed form of a relocatable file.
type Object struct {
	Machine  elf.Machine
	Sections []Section
	Syms     []Symbol
	// Dropped counts relocations against undefined symbols, which are
	// silently discarded: the runtime resolves nothing at load time.
	Dropped int
}

// FindSection returns the named section, or nil.
func (o *Object) FindSection(name string) *Section {
	for i := range o.Sections {
		if o.Sections[i].Name == name {
			return &o.Sections[i]
		}
	}
	return nil
}

// Read parses a relocatable ELF image.
func Read(data []byte) (*Object, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("objfile: %w", err)
	}
	defer f.Close()
	if f.Type != elf.ET_REL {
		return nil, fmt.Errorf("objfile: not a relocatable object (type %v)", f.Type)
	}

	obj := &Object{Machine: f.Machine}
	secIdx := make(map[int]int) // ELF section index -> obj.Sections index
	for i, s := range f.Sections {
		if s.Type != elf.SHT_PROGBITS || s.Flags&elf.SHF_ALLOC == 0 {
			continue
		}
		body, err := s.Data()
		if err != nil {
			return nil, fmt.Errorf("objfile: section %s: %w", s.Name, err)
		}
		secIdx[i] = len(obj.Sections)
		obj.Sections = append(obj.Sections, Section{
			Name:  s.Name,
			Bytes: body,
			Align: s.Addralign,
			Exec:  s.Flags&elf.SHF_EXECINSTR != 0,
		})
	}

	syms, err := f.Symbols()
	if err != nil {
		return nil, fmt.Errorf("objfile: %w", err)
	}
	sectionName := func(idx elf.SectionIndex) string {
		if int(idx) < len(f.Sections) {
			return f.Sections[idx].Name
		}
		return ""
	}
	for _, s := range syms {
		if s.Section == elf.SHN_UNDEF || elf.ST_TYPE(s.Info) == elf.STT_SECTION {
			continue
		}
		obj.Syms = append(obj.Syms, Symbol{
			Name:    s.Name,
			Section: sectionName(s.Section),
			Value:   s.Value,
			Global:  elf.ST_BIND(s.Info) == elf.STB_GLOBAL,
		})
	}

	for _, s := range f.Sections {
		if s.Type != elf.SHT_RELA {
			continue
		}
		ti, ok := secIdx[int(s.Info)]
		if !ok {
			continue
		}
		body, err := s.Data()
		if err != nil {
			return nil, fmt.Errorf("objfile: %s: %w", s.Name, err)
		}
		if len(body)%relaSize != 0 {
			return nil, fmt.Errorf("objfile: %s has truncated entries", s.Name)
		}
		for off := 0; off < len(body); off += relaSize {
			rOff := binary.LittleEndian.Uint64(body[off:])
			rInfo := binary.LittleEndian.Uint64(body[off+8:])
			rAddend := int64(binary.LittleEndian.Uint64(body[off+16:]))
			symNo := int(rInfo >> 32)
			typ := uint32(rInfo)
			if symNo == 0 || symNo > len(syms) {
				obj.Dropped++
				continue
			}
			sym := syms[symNo-1]
			if sym.Section == elf.SHN_UNDEF {
				// A reference the runtime never resolves; keep the raw
				// bytes and move on.
				obj.Dropped++
				continue
			}
			obj.Sections[ti].Relocs = append(obj.Sections[ti].Relocs, Reloc{
				Type:       typ,
				Off:        rOff,
				Addend:     rAddend,
				SymSection: sectionName(sym.Section),
				SymValue:   sym.Value,
			})
		}
	}
	return obj, nil
}
