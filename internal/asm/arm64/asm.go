// Package arm64 encodes IR modules into AArch64 machine code. All five
// special registers are machine resident (X21..X25); explicit arguments
// ride in X0..X7 and X9..X11 serve as scratch.
package arm64

import "encoding/binary"

// Register numbers. 31 encodes SP or XZR depending on position.
const (
	X0  = 0
	X1  = 1
	X2  = 2
	X3  = 3
	X4  = 4
	X5  = 5
	X6  = 6
	X7  = 7
	X9  = 9
	X10 = 10
	X11 = 11
	X16 = 16
	X21 = 21
	X22 = 22
	X23 = 23
	X24 = 24
	X25 = 25
	XZR = 31
	SP  = 31
)

// FP register numbers.
const (
	D0 = 0
	D1 = 1
)

// Condition codes.
const (
	condEQ = 0x0
	condNE = 0x1
	condCS = 0x2 // unsigned >=
	condCC = 0x3 // unsigned <
	condMI = 0x4
	condPL = 0x5
	condVS = 0x6 // overflow
	condHI = 0x8 // unsigned >
	condLS = 0x9 // unsigned <=
	condGE = 0xA
	condLT = 0xB
	condGT = 0xC
	condLE = 0xD
)

// Assembler appends 32-bit instruction words to a byte buffer.
type Assembler struct {
	buf []byte
}

// Bytes returns the encoded text.
func (a *Assembler) Bytes() []byte { return a.buf }

// Len returns the current offset.
func (a *Assembler) Len() int { return len(a.buf) }

func (a *Assembler) word(w uint32) {
	a.buf = binary.LittleEndian.AppendUint32(a.buf, w)
}

// PatchWord overwrites a previously emitted instruction word.
func (a *Assembler) PatchWord(off int, w uint32) {
	binary.LittleEndian.PutUint32(a.buf[off:], w)
}

// Word returns the instruction word at off.
func (a *Assembler) Word(off int) uint32 {
	return binary.LittleEndian.Uint32(a.buf[off:])
}

// LdrX emits ldr xt, [xn, #off] (off must be 8-byte aligned, 0..32760).
func (a *Assembler) LdrX(xt, xn int, off int32) {
	a.word(0xF9400000 | uint32(off/8)<<10 | uint32(xn)<<5 | uint32(xt))
}

// StrX emits str xt, [xn, #off].
func (a *Assembler) StrX(xt, xn int, off int32) {
	a.word(0xF9000000 | uint32(off/8)<<10 | uint32(xn)<<5 | uint32(xt))
}

// LdrSz emits an unsigned-offset load of szB bytes, zero-extending.
func (a *Assembler) LdrSz(xt, xn int, off int32, szB int) {
	switch szB {
	case 1:
		a.word(0x39400000 | uint32(off)<<10 | uint32(xn)<<5 | uint32(xt))
	case 2:
		a.word(0x79400000 | uint32(off/2)<<10 | uint32(xn)<<5 | uint32(xt))
	case 4:
		a.word(0xB9400000 | uint32(off/4)<<10 | uint32(xn)<<5 | uint32(xt))
	default:
		a.LdrX(xt, xn, off)
	}
}

// StrSz emits an unsigned-offset store of the low szB bytes.
func (a *Assembler) StrSz(xt, xn int, off int32, szB int) {
	switch szB {
	case 1:
		a.word(0x39000000 | uint32(off)<<10 | uint32(xn)<<5 | uint32(xt))
	case 2:
		a.word(0x79000000 | uint32(off/2)<<10 | uint32(xn)<<5 | uint32(xt))
	case 4:
		a.word(0xB9000000 | uint32(off/4)<<10 | uint32(xn)<<5 | uint32(xt))
	default:
		a.StrX(xt, xn, off)
	}
}

// LdrD emits ldr dt, [xn, #off].
func (a *Assembler) LdrD(dt, xn int, off int32) {
	a.word(0xFD400000 | uint32(off/8)<<10 | uint32(xn)<<5 | uint32(dt))
}

// StrD emits str dt, [xn, #off].
func (a *Assembler) StrD(dt, xn int, off int32) {
	a.word(0xFD000000 | uint32(off/8)<<10 | uint32(xn)<<5 | uint32(dt))
}

// LdrS emits ldr st, [xn, #off] (32-bit float).
func (a *Assembler) LdrS(st, xn int, off int32) {
	a.word(0xBD400000 | uint32(off/4)<<10 | uint32(xn)<<5 | uint32(st))
}

// StrS emits str st, [xn, #off].
func (a *Assembler) StrS(st, xn int, off int32) {
	a.word(0xBD000000 | uint32(off/4)<<10 | uint32(xn)<<5 | uint32(st))
}

// LdrIndex8 emits ldr xt, [xn, xm, lsl #3].
func (a *Assembler) LdrIndex8(xt, xn, xm int) {
	a.word(0xF8607800 | uint32(xm)<<16 | uint32(xn)<<5 | uint32(xt))
}

// MovImm64 materializes a 64-bit constant with movz/movk/movn.
func (a *Assembler) MovImm64(xd int, v uint64) {
	if ^v>>16 == 0xFFFFFFFFFFFF { // movn covers a single negative chunk
		a.word(0x92800000 | uint32(^v&0xFFFF)<<5 | uint32(xd))
		return
	}
	first := true
	for hw := 0; hw < 4; hw++ {
		chunk := uint32(v >> (16 * hw) & 0xFFFF)
		if chunk == 0 && !(first && hw == 3) {
			continue
		}
		if first {
			a.word(0xD2800000 | uint32(hw)<<21 | chunk<<5 | uint32(xd))
			first = false
		} else {
			a.word(0xF2800000 | uint32(hw)<<21 | chunk<<5 | uint32(xd))
		}
	}
	if first { // v == 0
		a.word(0xD2800000 | uint32(xd))
	}
}

func (a *Assembler) rrr(base uint32, xd, xn, xm int) {
	a.word(base | uint32(xm)<<16 | uint32(xn)<<5 | uint32(xd))
}

// AddReg emits add xd, xn, xm.
func (a *Assembler) AddReg(xd, xn, xm int) { a.rrr(0x8B000000, xd, xn, xm) }

// SubReg emits sub xd, xn, xm.
func (a *Assembler) SubReg(xd, xn, xm int) { a.rrr(0xCB000000, xd, xn, xm) }

// AndReg emits and xd, xn, xm.
func (a *Assembler) AndReg(xd, xn, xm int) { a.rrr(0x8A000000, xd, xn, xm) }

// OrrReg emits orr xd, xn, xm.
func (a *Assembler) OrrReg(xd, xn, xm int) { a.rrr(0xAA000000, xd, xn, xm) }

// EorReg emits eor xd, xn, xm.
func (a *Assembler) EorReg(xd, xn, xm int) { a.rrr(0xCA000000, xd, xn, xm) }

// AddsReg emits adds xd, xn, xm (sets flags).
func (a *Assembler) AddsReg(xd, xn, xm int) { a.rrr(0xAB000000, xd, xn, xm) }

// SubsReg emits subs xd, xn, xm.
func (a *Assembler) SubsReg(xd, xn, xm int) { a.rrr(0xEB000000, xd, xn, xm) }

// AddImm emits add xd, xn, #imm (imm 0..4095); xn may be SP.
func (a *Assembler) AddImm(xd, xn int, imm uint32) {
	a.word(0x91000000 | imm<<10 | uint32(xn)<<5 | uint32(xd))
}

// Mul emits mul xd, xn, xm.
func (a *Assembler) Mul(xd, xn, xm int) {
	a.word(0x9B007C00 | uint32(xm)<<16 | uint32(xn)<<5 | uint32(xd))
}

// Smulh emits smulh xd, xn, xm.
func (a *Assembler) Smulh(xd, xn, xm int) {
	a.word(0x9B407C00 | uint32(xm)<<16 | uint32(xn)<<5 | uint32(xd))
}

// SDiv emits sdiv xd, xn, xm.
func (a *Assembler) SDiv(xd, xn, xm int) { a.rrr(0x9AC00C00, xd, xn, xm) }

// UDiv emits udiv xd, xn, xm.
func (a *Assembler) UDiv(xd, xn, xm int) { a.rrr(0x9AC00800, xd, xn, xm) }

// MSub emits msub xd, xn, xm, xa (xa - xn*xm).
func (a *Assembler) MSub(xd, xn, xm, xa int) {
	a.word(0x9B008000 | uint32(xm)<<16 | uint32(xa)<<10 | uint32(xn)<<5 | uint32(xd))
}

// Lslv emits lslv xd, xn, xm.
func (a *Assembler) Lslv(xd, xn, xm int) { a.rrr(0x9AC02000, xd, xn, xm) }

// Lsrv emits lsrv xd, xn, xm.
func (a *Assembler) Lsrv(xd, xn, xm int) { a.rrr(0x9AC02400, xd, xn, xm) }

// Asrv emits asrv xd, xn, xm.
func (a *Assembler) Asrv(xd, xn, xm int) { a.rrr(0x9AC02800, xd, xn, xm) }

// Cmp emits cmp xn, xm.
func (a *Assembler) Cmp(xn, xm int) { a.rrr(0xEB000000, XZR, xn, xm) }

// CmpAsr63 emits cmp xn, xm, asr #63 (multiply-overflow check).
func (a *Assembler) CmpAsr63(xn, xm int) {
	a.word(0xEB800000 | uint32(xm)<<16 | 63<<10 | uint32(xn)<<5 | XZR)
}

// Cset emits cset xd, cond.
func (a *Assembler) Cset(xd, cond int) {
	a.word(0x9A9F07E0 | uint32(cond^1)<<12 | uint32(xd))
}

// Sxt emits a sign-extension of the low szB bytes (sxtb/sxth/sxtw).
func (a *Assembler) Sxt(xd, xn, szB int) {
	switch szB {
	case 1:
		a.word(0x93401C00 | uint32(xn)<<5 | uint32(xd))
	case 2:
		a.word(0x93403C00 | uint32(xn)<<5 | uint32(xd))
	default: // 4
		a.word(0x93407C00 | uint32(xn)<<5 | uint32(xd))
	}
}

// Uxt emits a zero-extension of the low szB bytes (uxtb/uxth/mov w).
func (a *Assembler) Uxt(xd, xn, szB int) {
	switch szB {
	case 1:
		a.word(0x53001C00 | uint32(xn)<<5 | uint32(xd))
	case 2:
		a.word(0x53003C00 | uint32(xn)<<5 | uint32(xd))
	default: // 4: mov wd, wn
		a.word(0x2A0003E0 | uint32(xn)<<16 | uint32(xd))
	}
}

// B emits an unconditional branch placeholder and returns the word
// offset for patching.
func (a *Assembler) B() int {
	off := a.Len()
	a.word(0x14000000)
	return off
}

// PatchB patches a B at off to jump to target (byte offsets).
func (a *Assembler) PatchB(off, targetOff int) {
	delta := uint32((targetOff-off)/4) & 0x03FFFFFF
	a.PatchWord(off, 0x14000000|delta)
}

// Bcond emits a conditional branch placeholder and returns the word
// offset for patching.
func (a *Assembler) Bcond(cond int) int {
	off := a.Len()
	a.word(0x54000000 | uint32(cond))
	return off
}

// PatchBcond patches a B.cond at off to jump to target.
func (a *Assembler) PatchBcond(off, targetOff int) {
	delta := uint32((targetOff-off)/4) & 0x7FFFF
	a.PatchWord(off, a.Word(off)|delta<<5)
}

// Br emits br xn.
func (a *Assembler) Br(xn int) { a.word(0xD61F0000 | uint32(xn)<<5) }

// Blr emits blr xn.
func (a *Assembler) Blr(xn int) { a.word(0xD63F0000 | uint32(xn)<<5) }

// Ret emits ret.
func (a *Assembler) Ret() { a.word(0xD65F03C0) }

// Brk emits brk #0 (the unreachable trap).
func (a *Assembler) Brk() { a.word(0xD4200000) }

// Adrp emits adrp xd, 0 and returns the word offset for relocation.
func (a *Assembler) Adrp(xd int) int {
	off := a.Len()
	a.word(0x90000000 | uint32(xd))
	return off
}

// AddLo12 emits add xd, xn, #0 and returns the word offset for the
// low-12-bits relocation.
func (a *Assembler) AddLo12(xd, xn int) int {
	off := a.Len()
	a.AddImm(xd, xn, 0)
	return off
}

// MovSP emits add xd, sp, #0.
func (a *Assembler) MovSP(xd int) { a.AddImm(xd, SP, 0) }

func (a *Assembler) fpRRR(base uint32, dd, dn, dm int) {
	a.word(base | uint32(dm)<<16 | uint32(dn)<<5 | uint32(dd))
}

// FAdd emits fadd dd, dn, dm.
func (a *Assembler) FAdd(dd, dn, dm int) { a.fpRRR(0x1E602800, dd, dn, dm) }

// FSub emits fsub dd, dn, dm.
func (a *Assembler) FSub(dd, dn, dm int) { a.fpRRR(0x1E603800, dd, dn, dm) }

// FMul emits fmul dd, dn, dm.
func (a *Assembler) FMul(dd, dn, dm int) { a.fpRRR(0x1E600800, dd, dn, dm) }

// FDiv emits fdiv dd, dn, dm.
func (a *Assembler) FDiv(dd, dn, dm int) { a.fpRRR(0x1E601800, dd, dn, dm) }

// FNeg emits fneg dd, dn.
func (a *Assembler) FNeg(dd, dn int) { a.word(0x1E614000 | uint32(dn)<<5 | uint32(dd)) }

// FAbs emits fabs dd, dn.
func (a *Assembler) FAbs(dd, dn int) { a.word(0x1E60C000 | uint32(dn)<<5 | uint32(dd)) }

// FSqrt emits fsqrt dd, dn.
func (a *Assembler) FSqrt(dd, dn int) { a.word(0x1E61C000 | uint32(dn)<<5 | uint32(dd)) }

// FCmp emits fcmp dn, dm.
func (a *Assembler) FCmp(dn, dm int) { a.word(0x1E602000 | uint32(dm)<<16 | uint32(dn)<<5) }

// FMovToX emits fmov xd, dn.
func (a *Assembler) FMovToX(xd, dn int) { a.word(0x9E660000 | uint32(dn)<<5 | uint32(xd)) }

// FMovFromX emits fmov dd, xn.
func (a *Assembler) FMovFromX(dd, xn int) { a.word(0x9E670000 | uint32(xn)<<5 | uint32(dd)) }

// Scvtf emits scvtf dd, xn.
func (a *Assembler) Scvtf(dd, xn int) { a.word(0x9E620000 | uint32(xn)<<5 | uint32(dd)) }

// Fcvtzs emits fcvtzs xd, dn.
func (a *Assembler) Fcvtzs(xd, dn int) { a.word(0x9E780000 | uint32(dn)<<5 | uint32(xd)) }

// FcvtSD emits fcvt dd, sn (single to double).
func (a *Assembler) FcvtSD(dd, sn int) { a.word(0x1E22C000 | uint32(sn)<<5 | uint32(dd)) }

// FcvtDS emits fcvt sd, dn (double to single).
func (a *Assembler) FcvtDS(sd, dn int) { a.word(0x1E624000 | uint32(dn)<<5 | uint32(sd)) }
