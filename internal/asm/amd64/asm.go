// Package amd64 encodes IR modules into x86-64 machine code using the
// tail-call convention of the runtime: the allocation and limit pointers
// ride in R12 and R13, explicit arguments in the System V argument
// registers, and the remaining special registers live in the runtime
// frame above the stack pointer.
package amd64

import "encoding/binary"

// General-purpose register numbers.
const (
	RAX = 0
	RCX = 1
	RDX = 2
	RBX = 3
	RSP = 4
	RBP = 5
	RSI = 6
	RDI = 7
	R8  = 8
	R9  = 9
	R10 = 10
	R11 = 11
	R12 = 12
	R13 = 13
	R14 = 14
	R15 = 15
)

// XMM register numbers.
const (
	XMM0 = 0
	XMM1 = 1
)

// Assembler appends encoded instructions to a byte buffer.
type Assembler struct {
	buf []byte
}

// Bytes returns the encoded text.
func (a *Assembler) Bytes() []byte { return a.buf }

// Len returns the current offset.
func (a *Assembler) Len() int { return len(a.buf) }

func (a *Assembler) emit(bs ...byte) { a.buf = append(a.buf, bs...) }

func (a *Assembler) emit32(v uint32) {
	a.buf = binary.LittleEndian.AppendUint32(a.buf, v)
}

func (a *Assembler) emit64(v uint64) {
	a.buf = binary.LittleEndian.AppendUint64(a.buf, v)
}

// Patch32 overwrites a previously emitted 32-bit field.
func (a *Assembler) Patch32(off int, v uint32) {
	binary.LittleEndian.PutUint32(a.buf[off:], v)
}

// rex builds a REX prefix. w selects 64-bit operands; r, x, b extend the
// ModRM reg, SIB index, and ModRM rm fields.
func rex(w bool, r, x, b int) byte {
	v := byte(0x40)
	if w {
		v |= 8
	}
	if r >= 8 {
		v |= 4
	}
	if x >= 8 {
		v |= 2
	}
	if b >= 8 {
		v |= 1
	}
	return v
}

func modrm(mod, reg, rm int) byte {
	return byte(mod<<6 | (reg&7)<<3 | rm&7)
}

// memRM emits the ModRM/SIB/disp bytes for [base+disp]. RSP and R12 need
// a SIB byte; RBP and R13 need an explicit displacement.
func (a *Assembler) memRM(reg, base int, disp int32) {
	needSIB := base&7 == RSP
	mod := 2
	if disp == 0 && base&7 != RBP {
		mod = 0
	} else if disp >= -128 && disp <= 127 {
		mod = 1
	}
	rm := base
	if needSIB {
		rm = RSP
	}
	a.emit(modrm(mod, reg, rm))
	if needSIB {
		a.emit(modrm(0, RSP, base)) // scale 1, no index
	}
	switch mod {
	case 1:
		a.emit(byte(disp))
	case 2:
		a.emit32(uint32(disp))
	}
}

// MovRegImm64 emits movabs reg, imm.
func (a *Assembler) MovRegImm64(reg int, imm uint64) {
	a.emit(rex(true, 0, 0, reg), 0xB8+byte(reg&7))
	a.emit64(imm)
}

// MovRegImm32 emits mov reg, imm32 (sign-extended to 64 bits).
func (a *Assembler) MovRegImm32(reg int, imm int32) {
	a.emit(rex(true, 0, 0, reg), 0xC7, modrm(3, 0, reg))
	a.emit32(uint32(imm))
}

// MovRegReg emits mov dst, src (64-bit).
func (a *Assembler) MovRegReg(dst, src int) {
	a.emit(rex(true, src, 0, dst), 0x89, modrm(3, src, dst))
}

// MovRegMem emits mov reg, [base+disp] (64-bit load).
func (a *Assembler) MovRegMem(reg, base int, disp int32) {
	a.emit(rex(true, reg, 0, base), 0x8B)
	a.memRM(reg, base, disp)
}

// MovMemReg emits mov [base+disp], reg (64-bit store).
func (a *Assembler) MovMemReg(base int, disp int32, reg int) {
	a.emit(rex(true, reg, 0, base), 0x89)
	a.memRM(reg, base, disp)
}

// MovRegMemSz emits a zero-extending load of szB bytes into reg.
func (a *Assembler) MovRegMemSz(reg, base int, disp int32, szB int) {
	switch szB {
	case 1: // movzx reg, byte [..]
		a.emit(rex(true, reg, 0, base), 0x0F, 0xB6)
	case 2: // movzx reg, word [..]
		a.emit(rex(true, reg, 0, base), 0x0F, 0xB7)
	case 4: // mov reg32, [..] zero-extends
		if reg >= 8 || base >= 8 {
			a.emit(rex(false, reg, 0, base))
		}
		a.emit(0x8B)
	default:
		a.MovRegMem(reg, base, disp)
		return
	}
	a.memRM(reg, base, disp)
}

// MovMemRegSz emits a store of the low szB bytes of reg.
func (a *Assembler) MovMemRegSz(base int, disp int32, reg, szB int) {
	switch szB {
	case 1:
		a.emit(rex(false, reg, 0, base) | 0) // REX needed for SIL/DIL too
		a.emit(0x88)
	case 2:
		a.emit(0x66)
		if reg >= 8 || base >= 8 {
			a.emit(rex(false, reg, 0, base))
		}
		a.emit(0x89)
	case 4:
		if reg >= 8 || base >= 8 {
			a.emit(rex(false, reg, 0, base))
		}
		a.emit(0x89)
	default:
		a.MovMemReg(base, disp, reg)
		return
	}
	a.memRM(reg, base, disp)
}

// alu emits a 64-bit register-register ALU op with the given opcode.
func (a *Assembler) alu(op byte, dst, src int) {
	a.emit(rex(true, src, 0, dst), op, modrm(3, src, dst))
}

// AddRegReg emits add dst, src.
func (a *Assembler) AddRegReg(dst, src int) { a.alu(0x01, dst, src) }

// SubRegReg emits sub dst, src.
func (a *Assembler) SubRegReg(dst, src int) { a.alu(0x29, dst, src) }

// AndRegReg emits and dst, src.
func (a *Assembler) AndRegReg(dst, src int) { a.alu(0x21, dst, src) }

// OrRegReg emits or dst, src.
func (a *Assembler) OrRegReg(dst, src int) { a.alu(0x09, dst, src) }

// XorRegReg emits xor dst, src.
func (a *Assembler) XorRegReg(dst, src int) { a.alu(0x31, dst, src) }

// CmpRegReg emits cmp dst, src.
func (a *Assembler) CmpRegReg(dst, src int) { a.alu(0x39, dst, src) }

// TestRegReg emits test dst, src.
func (a *Assembler) TestRegReg(dst, src int) { a.alu(0x85, dst, src) }

// AddRegImm32 emits add reg, imm32.
func (a *Assembler) AddRegImm32(reg int, imm int32) {
	a.emit(rex(true, 0, 0, reg), 0x81, modrm(3, 0, reg))
	a.emit32(uint32(imm))
}

// IMulRegReg emits imul dst, src.
func (a *Assembler) IMulRegReg(dst, src int) {
	a.emit(rex(true, dst, 0, src), 0x0F, 0xAF, modrm(3, dst, src))
}

// Cqo sign-extends RAX into RDX:RAX.
func (a *Assembler) Cqo() { a.emit(0x48, 0x99) }

// XorRdxRdx zeroes RDX ahead of an unsigned divide.
func (a *Assembler) XorRdxRdx() { a.emit(0x48, 0x31, 0xD2) }

// IDivReg emits idiv reg (RDX:RAX / reg).
func (a *Assembler) IDivReg(reg int) {
	a.emit(rex(true, 0, 0, reg), 0xF7, modrm(3, 7, reg))
}

// DivReg emits div reg.
func (a *Assembler) DivReg(reg int) {
	a.emit(rex(true, 0, 0, reg), 0xF7, modrm(3, 6, reg))
}

// ShiftCL emits a shift of reg by CL: sub selects shl (4), shr (5), sar (7).
func (a *Assembler) ShiftCL(sub, reg int) {
	a.emit(rex(true, 0, 0, reg), 0xD3, modrm(3, sub, reg))
}

// Setcc emits setcc on the low byte of reg. cc is the condition nibble.
func (a *Assembler) Setcc(cc byte, reg int) {
	a.emit(rex(false, 0, 0, reg), 0x0F, 0x90+cc, modrm(3, 0, reg))
}

// MovzxRegReg8 emits movzx reg, regB (byte source).
func (a *Assembler) MovzxRegReg8(dst, src int) {
	a.emit(rex(true, dst, 0, src), 0x0F, 0xB6, modrm(3, dst, src))
}

// MovsxRegReg emits a sign-extension of the low szB bytes of src into dst.
func (a *Assembler) MovsxRegReg(dst, src, szB int) {
	switch szB {
	case 1:
		a.emit(rex(true, dst, 0, src), 0x0F, 0xBE, modrm(3, dst, src))
	case 2:
		a.emit(rex(true, dst, 0, src), 0x0F, 0xBF, modrm(3, dst, src))
	default: // 4: movsxd
		a.emit(rex(true, dst, 0, src), 0x63, modrm(3, dst, src))
	}
}

// MovzxRegReg emits a zero-extension of the low szB bytes of src into dst.
func (a *Assembler) MovzxRegReg(dst, src, szB int) {
	switch szB {
	case 1:
		a.emit(rex(true, dst, 0, src), 0x0F, 0xB6, modrm(3, dst, src))
	case 2:
		a.emit(rex(true, dst, 0, src), 0x0F, 0xB7, modrm(3, dst, src))
	default: // 4: mov dst32, src32 zero-extends
		if dst >= 8 || src >= 8 {
			a.emit(rex(false, src, 0, dst))
		}
		a.emit(0x89, modrm(3, src, dst))
	}
}

// Jcc emits a conditional jump with a rel32 placeholder and returns the
// offset of the field for later patching.
func (a *Assembler) Jcc(cc byte) int {
	a.emit(0x0F, 0x80+cc)
	off := a.Len()
	a.emit32(0)
	return off
}

// Jmp emits an unconditional rel32 jump placeholder and returns the field
// offset.
func (a *Assembler) Jmp() int {
	a.emit(0xE9)
	off := a.Len()
	a.emit32(0)
	return off
}

// JmpReg emits jmp reg.
func (a *Assembler) JmpReg(reg int) {
	if reg >= 8 {
		a.emit(rex(false, 0, 0, reg))
	}
	a.emit(0xFF, modrm(3, 4, reg))
}

// JmpMem emits jmp qword [base+disp].
func (a *Assembler) JmpMem(base int, disp int32) {
	if base >= 8 {
		a.emit(rex(false, 0, 0, base))
	}
	a.emit(0xFF)
	a.memRM(4, base, disp)
}

// CallMem emits call qword [base+disp].
func (a *Assembler) CallMem(base int, disp int32) {
	if base >= 8 {
		a.emit(rex(false, 0, 0, base))
	}
	a.emit(0xFF)
	a.memRM(2, base, disp)
}

// Ret emits ret.
func (a *Assembler) Ret() { a.emit(0xC3) }

// LeaRIP emits lea reg, [rip+0] and returns the offset of the rel32 field
// for relocation.
func (a *Assembler) LeaRIP(reg int) int {
	a.emit(rex(true, reg, 0, 0), 0x8D, modrm(0, reg, RBP))
	off := a.Len()
	a.emit32(0)
	return off
}

// MovRegRSP emits mov reg, rsp.
func (a *Assembler) MovRegRSP(reg int) { a.MovRegReg(reg, RSP) }

// MovRegMemIndex8 emits mov dst, [base + index*8].
func (a *Assembler) MovRegMemIndex8(dst, base, index int) {
	a.emit(rex(true, dst, index, base), 0x8B, modrm(0, dst, RSP))
	a.emit(byte(3<<6 | (index&7)<<3 | base&7))
}

// Ud2 emits the invalid-opcode trap.
func (a *Assembler) Ud2() { a.emit(0x0F, 0x0B) }

// sse2 emits an SSE2 scalar op with an F2/F3/66 prefix.
func (a *Assembler) sse2(prefix, op byte, xreg, rm int) {
	a.emit(prefix)
	if xreg >= 8 || rm >= 8 {
		a.emit(rex(false, xreg, 0, rm))
	}
	a.emit(0x0F, op, modrm(3, xreg, rm))
}

// MovsdLoad emits movsd xreg, [base+disp] (movss when szB is 4).
func (a *Assembler) MovsdLoad(xreg, base int, disp int32, szB int) {
	prefix := byte(0xF2)
	if szB == 4 {
		prefix = 0xF3
	}
	a.emit(prefix)
	if xreg >= 8 || base >= 8 {
		a.emit(rex(false, xreg, 0, base))
	}
	a.emit(0x0F, 0x10)
	a.memRM(xreg, base, disp)
}

// MovsdStore emits movsd [base+disp], xreg (movss when szB is 4).
func (a *Assembler) MovsdStore(base int, disp int32, xreg, szB int) {
	prefix := byte(0xF2)
	if szB == 4 {
		prefix = 0xF3
	}
	a.emit(prefix)
	if xreg >= 8 || base >= 8 {
		a.emit(rex(false, xreg, 0, base))
	}
	a.emit(0x0F, 0x11)
	a.memRM(xreg, base, disp)
}

// FArith emits a scalar double op (addsd 0x58, mulsd 0x59, subsd 0x5C,
// divsd 0x5E, sqrtsd 0x51).
func (a *Assembler) FArith(op byte, dst, src int) {
	a.sse2(0xF2, op, dst, src)
}

// Ucomisd emits ucomisd a, b.
func (a *Assembler) Ucomisd(xa, xb int) {
	a.emit(0x66)
	if xa >= 8 || xb >= 8 {
		a.emit(rex(false, xa, 0, xb))
	}
	a.emit(0x0F, 0x2E, modrm(3, xa, xb))
}

// XorpdMemRIP emits xorpd xreg, [rip+0] and returns the rel32 offset.
func (a *Assembler) XorpdMemRIP(xreg int) int { return a.packedRIP(0x57, xreg) }

// AndpdMemRIP emits andpd xreg, [rip+0] and returns the rel32 offset.
func (a *Assembler) AndpdMemRIP(xreg int) int { return a.packedRIP(0x54, xreg) }

func (a *Assembler) packedRIP(op byte, xreg int) int {
	a.emit(0x66)
	if xreg >= 8 {
		a.emit(rex(false, xreg, 0, 0))
	}
	a.emit(0x0F, op, modrm(0, xreg, RBP))
	off := a.Len()
	a.emit32(0)
	return off
}

// Cvtsi2sd emits cvtsi2sd xdst, src (64-bit integer source).
func (a *Assembler) Cvtsi2sd(xdst, src int) {
	a.emit(0xF2, rex(true, xdst, 0, src), 0x0F, 0x2A, modrm(3, xdst, src))
}

// Cvttsd2si emits cvttsd2si dst, xsrc (truncating).
func (a *Assembler) Cvttsd2si(dst, xsrc int) {
	a.emit(0xF2, rex(true, dst, 0, xsrc), 0x0F, 0x2C, modrm(3, dst, xsrc))
}

// Cvtss2sd emits cvtss2sd xdst, xsrc.
func (a *Assembler) Cvtss2sd(xdst, xsrc int) {
	a.emit(0xF3)
	a.emit(0x0F, 0x5A, modrm(3, xdst, xsrc))
}
