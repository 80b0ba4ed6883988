// Package asm defines the target-neutral shape of an encoded module: text
// bytes, the symbols defined in them, relocations, and the auxiliary data
// sections (literal pools, jump tables) the encoders emit alongside the
// code. The per-architecture encoders live in the subpackages.
package asm

import "fmt"

// RelocKind is a target-neutral relocation class. The object-file writer
// maps each kind onto the ELF relocation type of the target.
type RelocKind uint8

const (
	// RelocPCRel32 is a 32-bit PC-relative reference (x86-64).
	RelocPCRel32 RelocKind = iota
	// RelocAbs32 is a 32-bit absolute address.
	RelocAbs32
	// RelocAbs64 is a 64-bit absolute address.
	RelocAbs64
	// RelocAdrPage21 is the AArch64 ADRP page-relative pair high part.
	RelocAdrPage21
	// RelocAddLo12 is the AArch64 low-12-bits add/load pair low part.
	RelocAddLo12
	// RelocBranch26 is the AArch64 26-bit branch.
	RelocBranch26
	// RelocCall26 is the AArch64 26-bit branch-and-link.
	RelocCall26
)

func (k RelocKind) String() string {
	switch k {
	case RelocPCRel32:
		return "pcrel32"
	case RelocAbs32:
		return "abs32"
	case RelocAbs64:
		return "abs64"
	case RelocAdrPage21:
		return "adr_page21"
	case RelocAddLo12:
		return "add_lo12"
	case RelocBranch26:
		return "branch26"
	case RelocCall26:
		return "call26"
	}
	return fmt.Sprintf("reloc(%d)", uint8(k))
}

// Reloc is one relocation against a section.
type Reloc struct {
	Kind   RelocKind
	Off    int    // byte offset of the patched field in the section
	Sym    string // referenced symbol
	Addend int64
}

// Symbol is a label defined in the text section, or in the named data
// section when Section is non-empty.
type Symbol struct {
	Name    string
	Section string // "" means text
	Off     int
	Global  bool
}

// DataSection is an auxiliary read-only section emitted next to the code:
// a literal pool or a jump table.
type DataSection struct {
	Name   string
	Align  int
	Bytes  []byte
	Relocs []Reloc
}

// Program is an encoded module, ready for the object-file writer.
type Program struct {
	Text   []byte
	Syms   []Symbol
	Relocs []Reloc
	Data   []DataSection
}

// FindSym returns the symbol with the given name, or nil.
func (p *Program) FindSym(name string) *Symbol {
	for i := range p.Syms {
		if p.Syms[i].Name == name {
			return &p.Syms[i]
		}
	}
	return nil
}

// Section returns the data section with the given name, creating it with
// the alignment if absent.
func (p *Program) Section(name string, align int) *DataSection {
	for i := range p.Data {
		if p.Data[i].Name == name {
			return &p.Data[i]
		}
	}
	p.Data = append(p.Data, DataSection{Name: name, Align: align})
	return &p.Data[len(p.Data)-1]
}
