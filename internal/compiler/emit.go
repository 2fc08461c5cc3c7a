package compiler

import "encoding/binary"

// emit.go is a hand-rolled x86_64 encoder scoped to the ~20 instruction
// forms the translator in translate.go actually needs, in the same style
// as the REX-prefix/ModRM-byte construction internal/asm/amd64 uses for
// wazero's general-purpose JIT assembler: literal opcode bytes, ModRM built
// up from binary literals, REX computed from which operand registers are
// ≥ r8. Unlike that assembler this one never needs a relocation table for
// register-indirect addressing modes (its only memory operands are
// [rbx+disp32] for *vm.Vm fields and [rbp+index] for linear memory through
// memBaseReg) and never emits a short-form
// jump, since every forward reference is patched as a 32-bit displacement
// (spec.md §4.4.2's forward-jump patch list).

const (
	rexW    byte = 0x48 // 64-bit operand size
	rexBase byte = 0x40
)

// rex builds a REX prefix. w selects the 64-bit operand size; r/x/b extend
// the ModRM.reg, SIB.index, and ModRM.rm / SIB.base fields respectively for
// registers r8..r15.
func rex(w bool, r, x, b hostReg) byte {
	p := rexBase
	if w {
		p |= 0x08
	}
	if r >= r8 {
		p |= 0x04
	}
	if x >= r8 {
		p |= 0x02
	}
	if b >= r8 {
		p |= 0x01
	}
	return p
}

// modRMRegReg builds a ModRM byte for a register-direct operand pair
// (mod=11).
func modRMRegReg(reg, rm hostReg) byte {
	return 0xc0 | (byte(reg)&7)<<3 | byte(rm)&7
}

// modRMRegMemDisp32 builds a ModRM byte plus its trailing disp32 for
// [base+disp32], mod=10.
func modRMRegMemDisp32(reg, base hostReg, disp int32) []byte {
	var buf [5]byte
	buf[0] = 0x80 | (byte(reg)&7)<<3 | byte(base)&7
	binary.LittleEndian.PutUint32(buf[1:], uint32(disp))
	out := buf[:]
	if byte(base)&7 == 4 { // rsp/r12 as base needs a SIB byte; unused by this encoder.
		panic("compiler: rsp/r12 base requires SIB, not supported")
	}
	return out
}

type asm struct {
	code []byte
}

func (a *asm) bytes(b ...byte) { a.code = append(a.code, b...) }

func (a *asm) len() int { return len(a.code) }

// movRegReg: dst ← src, both GPRs, 64-bit.
func (a *asm) movRegReg(dst, src hostReg) {
	a.bytes(rex(true, src, 0, dst), 0x89, modRMRegReg(src, dst))
}

// movRegImm64: dst ← imm, 64-bit immediate (movabs).
func (a *asm) movRegImm64(dst hostReg, imm int64) {
	a.bytes(rex(true, 0, 0, dst), 0xb8|(byte(dst)&7))
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(imm))
	a.bytes(buf[:]...)
}

// loadMem64: dst ← *(base+disp).
func (a *asm) loadMem64(dst, base hostReg, disp int32) {
	a.bytes(rex(true, dst, 0, base), 0x8b)
	a.bytes(modRMRegMemDisp32(dst, base, disp)...)
}

// storeMem64: *(base+disp) ← src.
func (a *asm) storeMem64(base hostReg, disp int32, src hostReg) {
	a.bytes(rex(true, src, 0, base), 0x89)
	a.bytes(modRMRegMemDisp32(src, base, disp)...)
}

// loadMem8Zx: dst ← zero_extend(*(base+disp)), one byte.
func (a *asm) loadMem8Zx(dst, base hostReg, disp int32) {
	a.bytes(rex(true, dst, 0, base), 0x0f, 0xb6)
	a.bytes(modRMRegMemDisp32(dst, base, disp)...)
}

// storeMem8: *(base+disp) ← low byte of src.
func (a *asm) storeMem8(base hostReg, disp int32, src hostReg) {
	a.bytes(rex(true, src, 0, base), 0x88)
	a.bytes(modRMRegMemDisp32(src, base, disp)...)
}

// addRegReg: dst += src.
func (a *asm) addRegReg(dst, src hostReg) {
	a.bytes(rex(true, src, 0, dst), 0x01, modRMRegReg(src, dst))
}

// subRegReg: dst -= src.
func (a *asm) subRegReg(dst, src hostReg) {
	a.bytes(rex(true, src, 0, dst), 0x29, modRMRegReg(src, dst))
}

// imulRegReg: dst *= src.
func (a *asm) imulRegReg(dst, src hostReg) {
	a.bytes(rex(true, dst, 0, src), 0x0f, 0xaf, modRMRegReg(dst, src))
}

// cqo sign-extends rax into rdx:rax, the idiv/div dividend setup.
func (a *asm) cqo() { a.bytes(rexW, 0x99) }

// idivReg: rdx:rax / src -> quotient in rax, remainder in rdx.
func (a *asm) idivReg(src hostReg) {
	a.bytes(rex(true, 0, 0, src), 0xf7, 0xc0|0b00_111_000|byte(src)&7)
}

// andRegReg, orRegReg, xorRegReg: dst {&,|,^}= src.
func (a *asm) andRegReg(dst, src hostReg) {
	a.bytes(rex(true, src, 0, dst), 0x21, modRMRegReg(src, dst))
}
func (a *asm) orRegReg(dst, src hostReg) {
	a.bytes(rex(true, src, 0, dst), 0x09, modRMRegReg(src, dst))
}
func (a *asm) xorRegReg(dst, src hostReg) {
	a.bytes(rex(true, src, 0, dst), 0x31, modRMRegReg(src, dst))
}

// notReg: dst = ^dst.
func (a *asm) notReg(dst hostReg) {
	a.bytes(rex(true, 0, 0, dst), 0xf7, 0xc0|0b00_010_000|byte(dst)&7)
}

// cmpRegReg sets flags from dst - src without storing the result.
func (a *asm) cmpRegReg(dst, src hostReg) {
	a.bytes(rex(true, src, 0, dst), 0x39, modRMRegReg(src, dst))
}

// Condition codes used by setcc, matching the SF/ZF/OF combinations the
// translator needs for Soil's signed integer comparison family.
type cond byte

const (
	condE  cond = 0x94 // ZF=1
	condNE cond = 0x95 // ZF=0
	condL  cond = 0x9c // SF != OF
	condG  cond = 0x9f // ZF=0 and SF=OF
	condLE cond = 0x9e // ZF=1 or SF!=OF
	condGE cond = 0x9d // SF=OF
	condA  cond = 0x97 // unsigned above: CF=0 and ZF=0
	condB  cond = 0x92 // unsigned below: CF=1
	condP  cond = 0x9a // parity: PF=1 (ucomisd's "unordered", i.e. a NaN operand)
	condNP cond = 0x9b // not parity: PF=0 (ucomisd operands are ordered)
)

// setcc: dst ← zero_extend(flags match c), as a full 64-bit write (xor dst,dst
// first, since SETcc only ever writes the low byte).
func (a *asm) setcc(c cond, dst hostReg) {
	a.xorRegReg(dst, dst)
	a.bytes(rex(false, 0, 0, dst), 0x0f, byte(c), 0xc0|byte(dst)&7)
}

// jmpRel32 emits a near jump with a placeholder displacement and returns the
// offset of that 4-byte displacement field, for the translator to patch
// once the target's machine-code offset is known.
func (a *asm) jmpRel32() (patchAt int) {
	a.bytes(0xe9, 0, 0, 0, 0)
	return a.len() - 4
}

// jccRel32 is the conditional counterpart of jmpRel32. cond's byte values
// are the SETcc second opcode byte (0f 9x); the near Jcc form is 0f 8x, 0x10
// lower.
func (a *asm) jccRel32(c cond) (patchAt int) {
	a.bytes(0x0f, byte(c)-0x10, 0, 0, 0, 0)
	return a.len() - 4
}

// patchRel32 fills in a previously reserved displacement once the target
// offset (in machine-code bytes from the start of the buffer) is known.
func (a *asm) patchRel32(patchAt, targetOffset int) {
	rel := int32(targetOffset - (patchAt + 4))
	binary.LittleEndian.PutUint32(a.code[patchAt:patchAt+4], uint32(rel))
}

// Soil's load/store address operand is a runtime register value, not a
// compile-time displacement, so the actual addressing mode needed is
// [memBaseReg + indexReg*1]. rbp as a SIB base with a zero displacement
// requires the disp8 form (mod=01, disp8=0) rather than mod=00, which x86
// reserves on rbp/r13 to mean "no base, disp32 only" -- one of the oddities
// internal/asm/amd64's getMemoryLocation also has to special-case for rbp.
func sibByte(scale, index, base hostReg) byte {
	return byte(scale)<<6 | (byte(index)&7)<<3 | byte(base)&7
}

func modRMSIBDisp0(reg hostReg) byte { return 0x40 | (byte(reg)&7)<<3 | 0x04 }

// loadMem64Indexed: dst ← *(memBaseReg + index).
func (a *asm) loadMem64Indexed(dst, index hostReg) {
	a.bytes(rex(true, dst, index, memBaseReg), 0x8b, modRMSIBDisp0(dst), sibByte(0, index, memBaseReg), 0)
}

// storeMem64Indexed: *(memBaseReg + index) ← src.
func (a *asm) storeMem64Indexed(index, src hostReg) {
	a.bytes(rex(true, src, index, memBaseReg), 0x89, modRMSIBDisp0(src), sibByte(0, index, memBaseReg), 0)
}

// loadMem8ZxIndexed: dst ← zero_extend(*(memBaseReg + index)), one byte.
func (a *asm) loadMem8ZxIndexed(dst, index hostReg) {
	a.bytes(rex(true, dst, index, memBaseReg), 0x0f, 0xb6, modRMSIBDisp0(dst), sibByte(0, index, memBaseReg), 0)
}

// storeMem8Indexed: *(memBaseReg + index) ← low byte of src.
func (a *asm) storeMem8Indexed(index, src hostReg) {
	a.bytes(rex(true, src, index, memBaseReg), 0x88, modRMSIBDisp0(src), sibByte(0, index, memBaseReg), 0)
}

// addRegImm8/subRegImm8 adjust dst by a small sign-extended immediate,
// used to move sp by the fixed 8-byte push/pop stride.
func (a *asm) addRegImm8(dst hostReg, imm int8) {
	a.bytes(rex(true, 0, 0, dst), 0x83, 0xc0|byte(dst)&7, byte(imm))
}
func (a *asm) subRegImm8(dst hostReg, imm int8) {
	a.bytes(rex(true, 0, 0, dst), 0x83, 0xc0|0b00_101_000|byte(dst)&7, byte(imm))
}

// cmpRegImm32 compares dst against a sign-extended 32-bit immediate, used
// for the inline memory bounds check ahead of every load/store.
func (a *asm) cmpRegImm32(dst hostReg, imm int32) {
	a.bytes(rex(true, 0, 0, dst), 0x81, 0xc0|0b00_111_000|byte(dst)&7)
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(imm))
	a.bytes(buf[:]...)
}

// ret emits a bare return.
func (a *asm) ret() { a.bytes(0xc3) }

// pushReg/popReg manipulate the real host stack, used only around thunk
// calls to preserve scratch state across the Go call boundary.
func (a *asm) pushReg(r hostReg) { a.bytes(rex(false, 0, 0, r), 0x50|byte(r)&7) }
func (a *asm) popReg(r hostReg)  { a.bytes(rex(false, 0, 0, r), 0x58|byte(r)&7) }

// Soil's float ops work on the bit pattern sitting in a GPR (spec.md §4.2):
// to actually compute, the translator moves that pattern into an xmm
// scratch register, does the SSE2 op, and moves the bit pattern back.
// xmm0/xmm1 are used purely as scratch and never hold a live value across
// an instruction boundary, so no REX.R extension is ever needed for them.
const (
	xmm0 = 0
	xmm1 = 1
)

// movqToXmm: xmm ← bits of src (GPR).
func (a *asm) movqToXmm(xmm int, src hostReg) {
	a.bytes(0x66, rex(true, 0, 0, src), 0x0f, 0x6e, 0xc0|byte(xmm&7)<<3|byte(src)&7)
}

// movqFromXmm: dst (GPR) ← bits of xmm.
func (a *asm) movqFromXmm(dst hostReg, xmm int) {
	a.bytes(0x66, rex(true, 0, 0, dst), 0x0f, 0x7e, 0xc0|byte(xmm&7)<<3|byte(dst)&7)
}

// addsd/subsd/mulsd/divsd: dstXmm (op)= srcXmm, scalar double precision.
func (a *asm) addsd(dst, src int) { a.bytes(0xf2, 0x0f, 0x58, 0xc0|byte(dst&7)<<3|byte(src&7)) }
func (a *asm) subsd(dst, src int) { a.bytes(0xf2, 0x0f, 0x5c, 0xc0|byte(dst&7)<<3|byte(src&7)) }
func (a *asm) mulsd(dst, src int) { a.bytes(0xf2, 0x0f, 0x59, 0xc0|byte(dst&7)<<3|byte(src&7)) }
func (a *asm) divsd(dst, src int) { a.bytes(0xf2, 0x0f, 0x5e, 0xc0|byte(dst&7)<<3|byte(src&7)) }

// ucomisd compares a1 with a2 as doubles and sets ZF/PF/CF (PF=1 when
// either is NaN), used by the float comparison family and floattoint.
func (a *asm) ucomisd(a1, a2 int) { a.bytes(0x66, 0x0f, 0x2e, 0xc0|byte(a1&7)<<3|byte(a2&7)) }

// cvtsi2sd: xmm ← float64(int64 src), used by inttofloat.
func (a *asm) cvtsi2sd(xmm int, src hostReg) {
	a.bytes(0xf2, rex(true, 0, 0, src), 0x0f, 0x2a, 0xc0|byte(xmm&7)<<3|byte(src)&7)
}

// cvttsd2si: dst ← int64(truncate(float64 xmm)). Out-of-range/NaN inputs
// produce the "integer indefinite" value (0x8000000000000000); translate.go's
// emitFloatToIntSaturate corrects that into Soil's saturating policy
// (spec.md §9) with a follow-up compare-and-branch, mirroring
// internal/interp's software implementation.
func (a *asm) cvttsd2si(dst hostReg, xmm int) {
	a.bytes(0xf2, rex(true, dst, 0, 0), 0x0f, 0x2c, 0xc0|byte(dst)&7<<3|byte(xmm&7))
}

// callAbs calls a fixed Go function address: load it into scratch1 then
// call through the register, since the target is almost always further
// than a rel32 can reach from a heap-allocated code buffer.
func (a *asm) callAbs(target uintptr) {
	a.movRegImm64(scratch1, int64(target))
	a.bytes(rex(false, 0, 0, scratch1), 0xff, 0xd0|byte(scratch1)&7)
}
