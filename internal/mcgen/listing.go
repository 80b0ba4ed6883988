package mcgen

import (
	"fmt"
	"io"
	"sort"

	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"

	"cgen/internal/asm"
	"cgen/internal/target"
)

// writeListing disassembles the encoded text into a GNU-syntax listing:
// one line per instruction with its offset and raw bytes, labels at the
// symbol offsets, and the auxiliary data sections as byte directives.
func writeListing(w io.Writer, tgt *target.Info, prog *asm.Program) error {
	labels := make(map[int][]string)
	for _, s := range prog.Syms {
		if s.Section == "" {
			labels[s.Off] = append(labels[s.Off], s.Name)
		}
	}
	for off := range labels {
		sort.Strings(labels[off])
	}

	if _, err := fmt.Fprintf(w, "\t.text\t# %s\n", tgt.Triple); err != nil {
		return err
	}
	emit := func(off, n int, text string) error {
		for _, name := range labels[off] {
			if _, err := fmt.Fprintf(w, "%s:\n", name); err != nil {
				return err
			}
		}
		_, err := fmt.Fprintf(w, "  %6x:\t% x\t%s\n", off, prog.Text[off:off+n], text)
		return err
	}

	var derr error
	switch tgt.Arch {
	case target.AMD64:
		for off := 0; off < len(prog.Text); {
			inst, err := x86asm.Decode(prog.Text[off:], 64)
			if err != nil {
				derr = emit(off, 1, ".byte")
				off++
			} else {
				derr = emit(off, inst.Len, x86asm.GNUSyntax(inst, uint64(off), nil))
				off += inst.Len
			}
			if derr != nil {
				return derr
			}
		}
	case target.ARM64:
		for off := 0; off+4 <= len(prog.Text); off += 4 {
			inst, err := arm64asm.Decode(prog.Text[off:])
			text := ".inst"
			if err == nil {
				text = arm64asm.GNUSyntax(inst)
			}
			if derr = emit(off, 4, text); derr != nil {
				return derr
			}
		}
	default:
		return fmt.Errorf("mcgen: no disassembler for %v", tgt.Arch)
	}

	for _, d := range prog.Data {
		if _, err := fmt.Fprintf(w, "\n\t.section %s\n\t.align %d\n", d.Name, d.Align); err != nil {
			return err
		}
		for off := 0; off < len(d.Bytes); off += 8 {
			end := off + 8
			if end > len(d.Bytes) {
				end = len(d.Bytes)
			}
			if _, err := fmt.Fprintf(w, "  %6x:\t% x\n", off, d.Bytes[off:end]); err != nil {
				return err
			}
		}
	}
	return nil
}
