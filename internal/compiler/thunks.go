package compiler

import (
	"github.com/MarcelGarus/soil-sub000/internal/syscalls"
	"github.com/MarcelGarus/soil-sub000/internal/vm"
)

// dispatchOp identifies which instruction asked the Go side for help. Every
// instruction that touches the call stack, the try stack, a syscall, or an
// unrecoverable fault routes through here (translate.go); straight-line
// arithmetic, comparisons, and register moves never do.
type dispatchOp int64

const (
	opCall dispatchOp = iota
	opRet
	opSyscall
	opTryStart
	opTryEnd
	opPanicInstruction
	opMemoryFault
	opDivideByZero
)

// Status codes dispatch returns to glue_amd64.s, telling the generated code
// what to do next.
const (
	statusFallthrough int64 = 0 // resume at the next native instruction
	statusJump        int64 = 1 // resume at targetMC
	statusStop        int64 = 2 // return out of the translated run entirely
)

// dispatchImpl is the Go-side logic behind every non-trivial instruction.
// It's called from generated machine code only indirectly, through the
// fixed asm glue entry point in glue_amd64.s (compilerGlueEntry), which is
// the actual CALL target JIT'd code uses; compilerGlueEntry itself just
// forwards to this function via a normal static Go call, which the Go
// toolchain wires through the ABI0 wrapper every Go function gets for free.
// word/word2 carry whatever immediate operand the instruction needs (a
// jump target, a syscall number, a fault address); the returned targetMC is
// only meaningful when status == statusJump, and is already resolved to a
// machine-code address via the owning Compiled's offset map, so the
// generated code can jump to it directly with no further bookkeeping.
func dispatchImpl(v *vm.Vm, registryIdx int64, op dispatchOp, word, word2 int64) (int64, uintptr) {
	c := lookupCompiled(registryIdx)
	switch op {
	case opCall:
		if err := v.CallPush(uint64(word2)); err != nil {
			return unwindOrStop(v, c, err)
		}
		return statusJump, c.BcToMc[word]

	case opRet:
		target, err := v.CallPop()
		if err != nil {
			return unwindOrStop(v, c, err)
		}
		return statusJump, c.BcToMc[target]

	case opSyscall:
		result := syscalls.Dispatch(c.Syscalls, v, byte(word))
		if result.Err != nil {
			v.PendingReenterErr = result.Err
			return statusStop, 0
		}
		if result.Reenter != nil {
			v.Reset(result.Reenter)
			v.PendingReenter = result.Reenter
			return statusStop, 0
		}
		if v.PendingPanic != nil {
			cause := v.PendingPanic
			v.PendingPanic = nil
			return unwindOrStop(v, c, cause)
		}
		if v.Exited {
			return statusStop, 0
		}
		return statusFallthrough, 0

	case opTryStart:
		scope := vm.TryScope{CallDepth: v.CallDepth(), SP: v.Reg(vm.RegSP), Catch: uint64(word)}
		if err := v.TryPush(scope); err != nil {
			return unwindOrStop(v, c, err)
		}
		return statusFallthrough, 0

	case opTryEnd:
		if _, err := v.TryPop(); err != nil {
			return unwindOrStop(v, c, err)
		}
		return statusFallthrough, 0

	case opPanicInstruction:
		return unwindOrStop(v, c, &vm.PanicInstruction{})

	case opMemoryFault:
		return unwindOrStop(v, c, &vm.OutOfMemoryAccess{Address: word, Width: int(word2), MemSize: v.Config.MemSize})

	case opDivideByZero:
		return unwindOrStop(v, c, &vm.DivideByZero{})
	}
	panic("compiler: unknown dispatch op")
}

// unwindOrStop implements the shared panic policy (spec.md §7): if a try
// scope is active, pop it, discard call frames created since it was
// entered, restore sp, and resume at its catch target; otherwise stash the
// cause on the Vm for Run to turn into a *FatalError and stop the run.
func unwindOrStop(v *vm.Vm, c *Compiled, cause error) (int64, uintptr) {
	scope, ok := v.TryPeek()
	if !ok {
		v.PendingPanic = cause
		return statusStop, 0
	}
	v.TryPop()
	v.TruncateCallStack(scope.CallDepth)
	v.SetReg(vm.RegSP, scope.SP)
	return statusJump, c.BcToMc[scope.Catch]
}
