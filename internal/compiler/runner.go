package compiler

import (
	"unsafe"

	"github.com/MarcelGarus/soil-sub000/internal/binary"
	"github.com/MarcelGarus/soil-sub000/internal/platform"
	"github.com/MarcelGarus/soil-sub000/internal/syscalls"
	"github.com/MarcelGarus/soil-sub000/internal/trace"
	"github.com/MarcelGarus/soil-sub000/internal/vm"
)

// FatalError mirrors internal/interp.FatalError: Run returns it when
// execution panics with no enclosing try scope left to unwind to.
type FatalError struct {
	Cause     error
	Frames    []trace.Frame
	Registers trace.Registers
}

func (e *FatalError) Error() string { return e.Cause.Error() }
func (e *FatalError) Unwrap() error { return e.Cause }

// Run translates prog and executes it natively, looping across `execute`
// syscall re-entries (spec.md §4.4.3/§9) the same way internal/interp.Run
// does, just with a fresh translation each time since a re-entry swaps in
// entirely new bytecode.
func Run(v *vm.Vm, table *syscalls.Table) error {
	for {
		c, err := translateAndLoad(v, table)
		if err != nil {
			return err
		}
		stopped := runOnce(v, c)
		unmapAndForget(c)
		if stopped != nil {
			return stopped
		}
		if v.PendingReenter != nil {
			v.PendingReenter = nil
			continue // v.Reset already happened inside dispatchImpl.
		}
		if v.Exited {
			return nil
		}
		// statusStop with nothing pending shouldn't happen; treat it as a
		// clean stop rather than looping forever.
		return nil
	}
}

// translateAndLoad compiles the Vm's current bytecode, mmaps it executable,
// finalizes BcToMc/McToBc/EntryMC into absolute addresses, and registers it
// so dispatchImpl can find it by index.
func translateAndLoad(v *vm.Vm, table *syscalls.Table) (*Compiled, error) {
	c, err := Translate(&binary.Program{
		Bytecode:      v.Bytecode,
		Labels:        v.Labels,
		InitialMemory: nil,
		Name:          v.Name,
		Description:   v.Description,
	}, table, v.Config.MemSize)
	if err != nil {
		return nil, err
	}

	mapped, err := platform.MmapCodeSegment(c.RawCode, len(c.RawCode))
	if err != nil {
		return nil, err
	}
	c.Code = mapped

	base := uintptr(unsafe.Pointer(&mapped[0]))
	for i, off := range c.BcToMc {
		c.BcToMc[i] = base + off
	}
	finalizedMcToBc := make(map[uintptr]int, len(c.McToBc))
	for off, bc := range c.McToBc {
		finalizedMcToBc[base+off] = bc
	}
	c.McToBc = finalizedMcToBc
	c.EntryMC = base

	c.registryIdx = registerCompiled(c)
	v.CompilerRegistryIdx = c.registryIdx
	return c, nil
}

// runOnce enters the translated code and returns a *FatalError if the run
// stopped because of an unrecoverable panic or a failed `execute` re-entry
// (internal/interp.Run treats both the same way: a failed `execute` is a
// host-level failure, not a catchable VM panic, so it skips the unwind
// policy and always fatals). Returns nil for any other stop reason (normal
// exit, or a successful `execute` re-entry already applied by dispatchImpl).
func runOnce(v *vm.Vm, c *Compiled) error {
	nativecall(c.EntryMC, uintptr(unsafe.Pointer(v)))

	var cause error
	switch {
	case v.PendingPanic != nil:
		cause = v.PendingPanic
		v.PendingPanic = nil
	case v.PendingReenterErr != nil:
		cause = v.PendingReenterErr
		v.PendingReenterErr = nil
	default:
		return nil
	}

	frames := []trace.Frame{{BytecodeOffset: uint64(currentBytecodeOffset(v, c))}}
	for i := len(v.CallStack) - 1; i >= 0; i-- {
		frames = append(frames, trace.Frame{BytecodeOffset: v.CallStack[i]})
	}
	return &FatalError{
		Cause:  cause,
		Frames: frames,
		Registers: trace.Registers{
			SP: v.Reg(vm.RegSP), ST: v.Reg(vm.RegST),
			A: v.Reg(vm.RegA), B: v.Reg(vm.RegB), C: v.Reg(vm.RegC),
			D: v.Reg(vm.RegD), E: v.Reg(vm.RegE), F: v.Reg(vm.RegF),
		},
	}
}

// currentBytecodeOffset reports where execution stopped for the top frame
// of a fatal trace. dispatchImpl doesn't thread the faulting instruction's
// own bytecode offset back out, so this reports the return target on top of
// the call stack (the same offset the next frame shows), or 0 at the
// outermost frame, rather than the faulting instruction itself.
func currentBytecodeOffset(v *vm.Vm, c *Compiled) int {
	if len(v.CallStack) > 0 {
		return int(v.CallStack[len(v.CallStack)-1])
	}
	return 0
}

// unmapAndForget releases a translated run's executable mapping and drops
// its registry slot once it's done, whether that's because it stopped for
// good or because it's about to be replaced by a fresh translation after
// an `execute` re-entry.
func unmapAndForget(c *Compiled) {
	unregisterCompiled(c.registryIdx)
	if len(c.Code) > 0 {
		_ = platform.MunmapCodeSegment(c.Code)
	}
}
