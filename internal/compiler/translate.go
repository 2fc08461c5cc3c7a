// Package compiler is the x86_64 JIT backend (spec.md §4.4.2): a one-pass
// translator from Soil bytecode to native machine code, held in an
// executable mmap'd buffer, plus the glue needed to call back into Go for
// the handful of operations that can't be done inline (the call/try
// stacks and syscalls).
//
// Soil's eight registers map one-to-one onto host GPRs for the whole
// translated run (regmap.go), so straight-line arithmetic, comparisons,
// bitwise ops, and memory access translate directly with no register
// allocator needed -- the same simplifying property that makes a
// one-pass translator viable at all. Control flow that's statically known
// (jump/cjump targets are bytecode-offset immediates, never computed) is
// resolved with the same forward-jump patch-list technique
// internal/asm/amd64 uses for its general-purpose assembler, just
// restricted to the one relative form spec.md §9 calls for: always a
// 32-bit displacement, never a short jump.
package compiler

import (
	"fmt"
	"math"
	"unsafe"

	"github.com/MarcelGarus/soil-sub000/internal/binary"
	"github.com/MarcelGarus/soil-sub000/internal/isa"
	"github.com/MarcelGarus/soil-sub000/internal/syscalls"
	"github.com/MarcelGarus/soil-sub000/internal/vm"
)

// Compiled is one translated run. Code/BcToMc/EntryMC only become valid
// addresses once runner.go has mmap'd RawCode and finalized them; before
// that, BcToMc entries and patch targets are buffer-relative offsets.
type Compiled struct {
	RawCode  []byte
	Code     []byte // the mmap'd, RX-protected copy of RawCode
	BcToMc   []uintptr
	McToBc   map[uintptr]int
	Syscalls *syscalls.Table

	registryIdx int64
	EntryMC     uintptr
}

// ErrBadJumpTarget is returned when a jump/cjump/call/trystart operand
// doesn't land on a decoded instruction boundary. The interpreter discovers
// this lazily, mid-run (spec.md §3); ahead-of-time translation can't defer
// it, so the JIT backend surfaces it as a translate-time error instead.
type ErrBadJumpTarget struct {
	At     int
	Target int64
}

func (e *ErrBadJumpTarget) Error() string {
	return fmt.Sprintf("compiler: instruction at %d targets non-instruction offset %d", e.At, e.Target)
}

type patch struct {
	at     int   // offset of the rel32 field within a.code
	target int64 // bytecode offset the jump targets
}

// Translate performs the one-pass translation. table is baked into the
// resulting Compiled so syscall dispatch (via compilerGlueEntry) reaches
// the same handler set the interpreter backend uses. memSize is the
// program's configured linear memory size, baked into every bounds check
// as an immediate (spec.md §9).
func Translate(prog *binary.Program, table *syscalls.Table, memSize int) (*Compiled, error) {
	c := &Compiled{Syscalls: table, McToBc: map[uintptr]int{}}
	a := &asm{}

	// Entry prologue: memBaseReg isn't part of the caller's Go-visible
	// state, but it shadows rbp, which is -- save the incoming value and
	// point rbp at Mem[0] for the run's duration. Every exit (the ret()s
	// inside emitEpilogueRet, reached from emitContinueOrStop/
	// emitJumpToTargetMC's stop paths) undoes this before returning to
	// nativecall's caller. Jump/call targets always resolve to bytecode
	// offsets, never back to this prologue, so it runs exactly once per
	// nativecall.
	a.pushReg(rbp)
	a.loadMem64(rbp, vmReg, vmMemBaseOffset)
	// Soil's eight registers live in r8-r15 for the run's duration
	// (regmap.go), but the *vm.Vm this nativecall was handed carries
	// whatever a prior backend (or a prior `execute` re-entry) left in
	// Vm.Regs -- load them in before the first bytecode instruction runs.
	emitReloadRegs(a)

	bcToMcOffset := make([]int, len(prog.Bytecode)+1)
	validTarget := make([]bool, len(prog.Bytecode)+1)
	var patches []patch
	// call/trystart targets are resolved through BcToMc at run time rather
	// than patched, so they're collected here and checked the same way.
	var dispatchTargets []ErrBadJumpTarget

	ip := 0
	for ip < len(prog.Bytecode) {
		inst, err := isa.Decode(prog.Bytecode, ip)
		if err != nil {
			return nil, fmt.Errorf("compiler: %w", err)
		}
		bcToMcOffset[ip] = a.len()
		validTarget[ip] = true
		c.McToBc[uintptr(a.len())] = ip
		next := ip + inst.Size
		if inst.Op == isa.OpCall || inst.Op == isa.OpTryStart {
			dispatchTargets = append(dispatchTargets, ErrBadJumpTarget{At: ip, Target: inst.Word})
		}

		if err := translateOne(a, inst, ip, next, &patches, memSize); err != nil {
			return nil, err
		}
		ip = next
	}
	bcToMcOffset[len(prog.Bytecode)] = a.len()
	validTarget[len(prog.Bytecode)] = true

	for _, p := range patches {
		if p.target < 0 || p.target > int64(len(prog.Bytecode)) || !validTarget[p.target] {
			return nil, &ErrBadJumpTarget{Target: p.target}
		}
		a.patchRel32(p.at, bcToMcOffset[p.target])
	}
	for _, t := range dispatchTargets {
		if t.Target < 0 || t.Target > int64(len(prog.Bytecode)) || !validTarget[t.Target] {
			return nil, &ErrBadJumpTarget{At: t.At, Target: t.Target}
		}
	}

	c.RawCode = a.code
	c.BcToMc = make([]uintptr, len(bcToMcOffset))
	for i, off := range bcToMcOffset {
		c.BcToMc[i] = uintptr(off) // becomes absolute once runner.go finalizes.
	}
	return c, nil
}

// translateOne emits the native code for one instruction. next is the
// bytecode offset immediately following it, needed for `call`'s return
// address and as the fallthrough target for anything that doesn't jump.
func translateOne(a *asm, inst isa.Instruction, ip, next int, patches *[]patch, memSize int) error {
	r1 := soilToHost[inst.Reg1]
	r2 := soilToHost[inst.Reg2]

	switch inst.Op {
	case isa.OpNop:

	case isa.OpMove:
		a.movRegReg(r1, r2)
	case isa.OpMoveI:
		a.movRegImm64(r1, inst.Word)
	case isa.OpMoveIB:
		a.movRegImm64(r1, int64(inst.Byte))

	case isa.OpLoad:
		emitBoundsCheck(a, r2, 8, memSize)
		a.loadMem64Indexed(r1, r2)
	case isa.OpLoadB:
		emitBoundsCheck(a, r2, 1, memSize)
		a.loadMem8ZxIndexed(r1, r2)
	case isa.OpStore:
		emitBoundsCheck(a, r1, 8, memSize)
		a.storeMem64Indexed(r1, r2)
	case isa.OpStoreB:
		emitBoundsCheck(a, r1, 1, memSize)
		a.storeMem8Indexed(r1, r2)

	case isa.OpPush:
		sp := soilToHost[0]
		a.subRegImm8(sp, 8)
		emitBoundsCheck(a, sp, 8, memSize)
		a.storeMem64Indexed(sp, r1)
	case isa.OpPop:
		sp := soilToHost[0]
		emitBoundsCheck(a, sp, 8, memSize)
		a.loadMem64Indexed(r1, sp)
		a.addRegImm8(sp, 8)

	case isa.OpJump:
		patchAt := a.jmpRel32()
		*patches = append(*patches, patch{at: patchAt, target: inst.Word})
	case isa.OpCJump:
		a.cmpRegImm32(soilToHost[1], 0) // st
		patchAt := a.jccRel32(condNE)
		*patches = append(*patches, patch{at: patchAt, target: inst.Word})
	case isa.OpCall:
		emitDispatch(a, opCall, inst.Word, int64(next))
		emitJumpToTargetMC(a)
	case isa.OpRet:
		emitDispatch(a, opRet, 0, 0)
		emitJumpToTargetMC(a)
	case isa.OpSyscall:
		emitDispatch(a, opSyscall, int64(inst.Byte), 0)
		emitContinueOrStop(a)

	case isa.OpCmp:
		a.movRegReg(scratch2, r1)
		a.subRegReg(scratch2, r2)
		a.movRegReg(soilToHost[1], scratch2) // st
	case isa.OpIsEqual:
		a.cmpRegImm32(soilToHost[1], 0)
		a.setcc(condE, soilToHost[1])
	case isa.OpIsLess:
		a.cmpRegImm32(soilToHost[1], 0)
		a.setcc(condL, soilToHost[1])
	case isa.OpIsGreater:
		a.cmpRegImm32(soilToHost[1], 0)
		a.setcc(condG, soilToHost[1])
	case isa.OpIsLessEqual:
		a.cmpRegImm32(soilToHost[1], 0)
		a.setcc(condLE, soilToHost[1])
	case isa.OpIsGreaterEqual:
		a.cmpRegImm32(soilToHost[1], 0)
		a.setcc(condGE, soilToHost[1])
	case isa.OpIsNotEqual:
		a.cmpRegImm32(soilToHost[1], 0)
		a.setcc(condNE, soilToHost[1])

	case isa.OpFCmp:
		a.movqToXmm(xmm0, r1)
		a.movqToXmm(xmm1, r2)
		a.subsd(xmm0, xmm1)
		a.movqFromXmm(soilToHost[1], xmm0)
	case isa.OpFIsEqual, isa.OpFIsLess, isa.OpFIsGreater, isa.OpFIsLessEqual, isa.OpFIsGreaterEqual, isa.OpFIsNotEqual:
		st := soilToHost[1]
		a.movqToXmm(xmm0, st)
		a.xorRegReg(scratch2, scratch2)
		a.movqToXmm(xmm1, scratch2) // xmm1 = 0.0
		a.ucomisd(xmm0, xmm1)
		a.setcc(floatCondFor(inst.Op), st)

	case isa.OpIntToFloat:
		a.cvtsi2sd(xmm0, r1)
		a.movqFromXmm(r1, xmm0)
	case isa.OpFloatToInt:
		a.movqToXmm(xmm0, r1)
		a.cvttsd2si(r1, xmm0)
		emitFloatToIntSaturate(a, r1)

	case isa.OpAdd:
		a.addRegReg(r1, r2)
	case isa.OpSub:
		a.subRegReg(r1, r2)
	case isa.OpMul:
		a.imulRegReg(r1, r2)
	case isa.OpDiv, isa.OpRem:
		a.cmpRegImm32(r2, 0)
		faultPatch := a.jccRel32(condE)
		a.movRegReg(scratch1, r1)
		a.cqo()
		// scratch1 is rax; idivReg divides rdx:rax by r2 directly, so the
		// dividend must already be in rax, sign-extended into rdx by cqo.
		a.movRegReg(rax, scratch1)
		a.idivReg(r2)
		if inst.Op == isa.OpDiv {
			a.movRegReg(r1, rax)
		} else {
			a.movRegReg(r1, rdx)
		}
		skip := a.jmpRel32()
		faultTarget := a.len()
		a.patchRel32(faultPatch, faultTarget)
		emitDispatch(a, opDivideByZero, 0, 0)
		emitContinueOrStop(a) // unreachable in practice: divide-by-zero always unwinds or stops.
		a.patchRel32(skip, a.len())

	case isa.OpFAdd, isa.OpFSub, isa.OpFMul, isa.OpFDiv:
		a.movqToXmm(xmm0, r1)
		a.movqToXmm(xmm1, r2)
		switch inst.Op {
		case isa.OpFAdd:
			a.addsd(xmm0, xmm1)
		case isa.OpFSub:
			a.subsd(xmm0, xmm1)
		case isa.OpFMul:
			a.mulsd(xmm0, xmm1)
		case isa.OpFDiv:
			a.divsd(xmm0, xmm1)
		}
		a.movqFromXmm(r1, xmm0)

	case isa.OpAnd:
		a.andRegReg(r1, r2)
	case isa.OpOr:
		a.orRegReg(r1, r2)
	case isa.OpXor:
		a.xorRegReg(r1, r2)
	case isa.OpNot:
		a.notReg(r1)

	case isa.OpPanic:
		emitDispatch(a, opPanicInstruction, 0, 0)
		emitJumpToTargetMC(a)
	case isa.OpTryStart:
		emitDispatch(a, opTryStart, inst.Word, 0)
		emitContinueOrStop(a)
	case isa.OpTryEnd:
		emitDispatch(a, opTryEnd, 0, 0)
		emitContinueOrStop(a)

	default:
		return fmt.Errorf("compiler: unhandled opcode %s at bytecode offset %d", inst.Op, ip)
	}
	return nil
}

// floatCondFor maps a float comparison opcode to the setcc condition tested
// against ucomisd's flags for "value op 0.0", with IEEE-754 unordered
// (NaN) results already folding to false the same way internal/interp's
// Go float comparisons do.
func floatCondFor(op isa.Op) cond {
	switch op {
	case isa.OpFIsEqual:
		return condE
	case isa.OpFIsLess:
		return condL
	case isa.OpFIsGreater:
		return condG
	case isa.OpFIsLessEqual:
		return condLE
	case isa.OpFIsGreaterEqual:
		return condGE
	default:
		return condNE
	}
}

// floatToIntMaxThresholdBits is the bit pattern of 9223372036854775807.0,
// which float64 can't represent exactly and rounds up to 2^63 -- the same
// rounding internal/interp.floatToIntSaturating relies on for its own
// ">=" comparison.
var floatToIntMaxThresholdBits = int64(math.Float64bits(9223372036854775807.0))

// emitFloatToIntSaturate corrects cvttsd2si's result in dst to match
// floattoint's saturating policy (spec.md §9), mirroring
// internal/interp.floatToIntSaturating. xmm0 still holds the original
// double's bits. cvttsd2si already produces the right answer for every
// in-range input, but can't distinguish a genuine -2^63 input from its own
// "integer indefinite" marker (also 0x8000000000000000) -- the same
// pattern it returns for NaN, +-Inf, and any out-of-range value. So: if
// dst isn't that pattern, the hardware result is already correct and
// nothing changes. Otherwise NaN resolves to 0, values at or past the
// positive threshold resolve to MaxInt64, and every remaining case
// (including the genuine -2^63 input) is already MinInt64, which is what
// dst holds, so no correction is needed there either.
func emitFloatToIntSaturate(a *asm, dst hostReg) {
	a.movRegImm64(scratch1, math.MinInt64)
	a.cmpRegReg(dst, scratch1)
	notIndefinite := a.jccRel32(condNE)

	a.ucomisd(xmm0, xmm0)
	notNaN := a.jccRel32(condNP)
	a.movRegImm64(dst, 0)
	toEnd1 := a.jmpRel32()
	a.patchRel32(notNaN, a.len())

	a.movRegImm64(scratch1, floatToIntMaxThresholdBits)
	a.movqToXmm(xmm1, scratch1)
	a.ucomisd(xmm0, xmm1)
	belowMax := a.jccRel32(condB)
	a.movRegImm64(dst, math.MaxInt64)
	toEnd2 := a.jmpRel32()
	a.patchRel32(belowMax, a.len())

	end := a.len()
	a.patchRel32(toEnd1, end)
	a.patchRel32(toEnd2, end)
	a.patchRel32(notIndefinite, end)
}

// emitBoundsCheck guards a memory access with the inline fast-path check
// spec.md §9 allows: memSize is fixed for the lifetime of one translated
// run, so it's baked in as an immediate rather than read from the Vm on
// every access. The fault path is the rare one, so it's fine for it to
// call back into Go.
func emitBoundsCheck(a *asm, addrReg hostReg, width int, memSize int) {
	if memSize <= 0 {
		return
	}
	a.cmpRegImm32(addrReg, int32(memSize-width))
	faultPatch := a.jccRel32(condA) // unsigned "above": catches negative addresses too.
	skip := a.jmpRel32()
	faultAt := a.len()
	a.patchRel32(faultPatch, faultAt)
	emitDispatchWithReg(a, opMemoryFault, addrReg, int64(width))
	emitContinueOrStop(a)
	a.patchRel32(skip, a.len())
}

// vmRegistryIdxOffset is the byte displacement of Vm.CompilerRegistryIdx
// within *vm.Vm, computed once so generated code can load it straight out
// of the struct rather than needing a value patched into the code after
// Translate assigns a registry slot.
var vmRegistryIdxOffset = int32(unsafe.Offsetof(vm.Vm{}.CompilerRegistryIdx))

// vmMemBaseOffset is the byte displacement of Mem's data pointer within
// *vm.Vm: a slice header's first word is its backing array pointer, so
// loading 8 bytes at Vm.Mem's own offset reads that pointer directly
// without needing a dedicated accessor.
var vmMemBaseOffset = int32(unsafe.Offsetof(vm.Vm{}.Mem))

// vmRegsOffset is the byte displacement of Vm.Regs within *vm.Vm. Soil's
// eight registers live in dedicated host GPRs for the whole translated run
// (regmap.go), but dispatchImpl and everything it calls into -- syscall
// handlers, try/catch bookkeeping, the fatal-trace register dump -- read
// and write Vm.Regs through v.Reg()/v.SetReg(), not the host registers
// themselves. Every dispatch call has to spill the live host registers
// into Vm.Regs first so Go-side code sees current values, and reload them
// afterward in case Go-side code changed one (e.g. unwindOrStop restoring
// sp across a try/catch unwind).
var vmRegsOffset = int32(unsafe.Offsetof(vm.Vm{}.Regs))

// emitSpillRegs stores every live Soil register into Vm.Regs.
func emitSpillRegs(a *asm) {
	for i, hr := range soilToHost {
		a.storeMem64(vmReg, vmRegsOffset+int32(i)*8, hr)
	}
}

// emitReloadRegs is emitSpillRegs's inverse.
func emitReloadRegs(a *asm) {
	for i, hr := range soilToHost {
		a.loadMem64(hr, vmReg, vmRegsOffset+int32(i)*8)
	}
}

// emitDispatch sets up the glue-entry register convention and calls it.
// vmReg is rbx, the exact register compilerGlueEntry expects it in, so it's
// already in place and only needs to stay untouched. The registry index
// goes in rdi rather than rax: callAbs needs rax (scratch1) as its own
// call-target scratch register immediately afterward, so anything loaded
// into rax here wouldn't survive to the call.
func emitDispatch(a *asm, op dispatchOp, word, word2 int64) {
	emitSpillRegs(a)
	a.loadMem64(rdi, vmReg, vmRegistryIdxOffset)
	a.movRegImm64(rcx, int64(op))
	a.movRegImm64(rdx, word)
	a.movRegImm64(rsi, word2)
	a.callAbs(compilerGlueEntryAddr)
	emitReloadRegs(a)
}

// emitDispatchWithReg is emitDispatch's variant for the fault path, where
// the first operand word is a register's current value rather than an
// immediate baked in at translate time.
func emitDispatchWithReg(a *asm, op dispatchOp, wordReg hostReg, word2 int64) {
	// wordReg is always one of soilToHost's r8..r15 targets (regmap.go), so
	// emitSpillRegs below still captures its current value before it's
	// read into rdx; the move into rdx goes last purely to keep the
	// argument order readable.
	emitSpillRegs(a)
	a.loadMem64(rdi, vmReg, vmRegistryIdxOffset)
	a.movRegImm64(rcx, int64(op))
	a.movRegImm64(rsi, word2)
	a.movRegReg(rdx, wordReg)
	a.callAbs(compilerGlueEntryAddr)
	emitReloadRegs(a)
}

// emitJumpToTargetMC jumps to the address dispatch returned in DX when it
// reports statusJump; any other status means stop (handled the same as
// emitContinueOrStop's stop branch).
func emitJumpToTargetMC(a *asm) {
	a.cmpRegImm32(rax, statusJump32)
	notJump := a.jccRel32(condNE)
	a.bytes(rex(false, 0, 0, rdx), 0xff, 0xe0|byte(rdx)&7) // jmp rdx
	patchHere := a.len()
	a.patchRel32(notJump, patchHere)
	emitEpilogueRet(a)
}

// emitContinueOrStop falls through to the next native instruction on
// statusFallthrough, jumps to targetMC on statusJump (a panic caught by a
// try scope), and returns out of the translated run on anything else.
func emitContinueOrStop(a *asm) {
	a.cmpRegImm32(rax, 0)
	isFallthrough := a.jccRel32(condE)
	emitJumpToTargetMC(a)
	patchHere := a.len()
	a.patchRel32(isFallthrough, patchHere)
}

// emitEpilogueRet undoes Translate's entry prologue (restoring the caller's
// rbp) before returning control to nativecall's caller.
func emitEpilogueRet(a *asm) {
	a.popReg(rbp)
	a.ret()
}

const statusJump32 = int32(statusJump)
