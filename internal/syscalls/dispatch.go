package syscalls

import (
	"bytes"

	"github.com/MarcelGarus/soil-sub000/internal/binary"
	"github.com/MarcelGarus/soil-sub000/internal/vm"
)

// Result is what Dispatch hands back to an execution engine after a
// syscall. At most one of Reenter/Err is ever set.
type Result struct {
	// Reenter is non-nil only for the `execute` syscall (spec.md §4.4.3):
	// the caller must call v.Reset(Reenter) and restart its fetch loop at
	// bytecode offset 0, re-allocating any JIT buffer it holds.
	Reenter *binary.Program
	// Err is set when `execute` was asked to load a malformed binary. This
	// is a host-level failure, not a VM-level panic: unlike syscall failures
	// reported through register a, a bad `execute` argument has no bytecode
	// left to resume into.
	Err error
}

// Dispatch invokes the syscall numbered n on v, writing any results back
// into register a (and b, for two-result syscalls), per the trampoline ABI
// (spec.md §4.5). Syscall 12 (execute) is special-cased: see Result.Reenter.
func Dispatch(t *Table, v *vm.Vm, n byte) Result {
	if n == ExecuteSyscallNumber {
		return dispatchExecute(v)
	}

	entry := t.Get(n)
	if entry.Fn == nil {
		return panicNotImplemented(v, n)
	}
	r0, r1 := entry.Fn(v)
	if entry.Results >= 1 {
		v.SetReg(vm.RegA, r0)
	}
	if entry.Results == 2 {
		v.SetReg(vm.RegB, r1)
	}
	return Result{}
}

// dispatchExecute implements syscall 12: (ptr, len) names a freshly loaded
// Soil binary already sitting in the Vm's own memory; on success it loads
// and returns it for the caller to swap in via v.Reset.
func dispatchExecute(v *vm.Vm) Result {
	ptr, length := v.Reg(vm.RegA), v.Reg(vm.RegB)
	if ptr < 0 || length < 0 || ptr+length > int64(len(v.Mem)) {
		return Result{Err: &vm.OutOfMemoryAccess{Address: ptr, Width: int(length), MemSize: v.Config.MemSize}}
	}
	prog, err := binary.Load(bytes.NewReader(v.Mem[ptr:ptr+length]), v.Config.MemSize)
	if err != nil {
		return Result{Err: err}
	}
	return Result{Reenter: prog}
}

// panicNotImplemented routes an unimplemented syscall through the same
// VM-panic channel as a `panic` instruction, by stashing the cause on the
// Vm. The execution engine (internal/interp, internal/compiler) checks
// v.PendingPanic after a Dispatch call that didn't otherwise fail.
func panicNotImplemented(v *vm.Vm, n byte) Result {
	v.PendingPanic = &NotImplemented{N: n}
	return Result{}
}
