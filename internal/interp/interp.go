// Package interp is the fetch-decode-execute fallback backend (spec.md
// §4.4.1): a plain Go loop over isa.Decode, used whenever the JIT backend
// isn't available (internal/platform.CompilerSupported reports false) or
// when the caller explicitly asks for it, e.g. for debugging.
package interp

import (
	"math"

	"github.com/MarcelGarus/soil-sub000/internal/isa"
	"github.com/MarcelGarus/soil-sub000/internal/syscalls"
	"github.com/MarcelGarus/soil-sub000/internal/trace"
	"github.com/MarcelGarus/soil-sub000/internal/vm"
)

// FatalError is returned by Run when execution panics with no enclosing
// try scope to unwind to (spec.md §7): the VM has stopped for good, and
// Frames/Registers describe where it was when that happened, for the
// caller to turn into a stack trace via internal/trace.
type FatalError struct {
	Cause     error
	Frames    []trace.Frame
	Registers trace.Registers
}

func (e *FatalError) Error() string { return e.Cause.Error() }
func (e *FatalError) Unwrap() error { return e.Cause }

// Interpreter runs a *vm.Vm by decoding and executing one instruction at a
// time. It owns the instruction pointer; unlike sp/st/a..f it isn't part of
// vm.Vm's register file because it's never directly addressable by
// bytecode.
type Interpreter struct {
	Vm       *vm.Vm
	Syscalls *syscalls.Table
	ip       int
}

// New creates an Interpreter positioned at bytecode offset 0.
func New(v *vm.Vm, table *syscalls.Table) *Interpreter {
	return &Interpreter{Vm: v, Syscalls: table}
}

// IP is the current bytecode offset, exposed for stack-trace construction
// and single-step debugging.
func (in *Interpreter) IP() int { return in.ip }

// Run executes instructions until the program calls exit (returns nil) or
// panics past its outermost try scope (returns a *FatalError).
func (in *Interpreter) Run() error {
	for !in.Vm.Exited {
		if err := in.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Step decodes and executes exactly one instruction. It returns a
// *FatalError if that instruction caused an unrecoverable panic; any
// recoverable panic is unwound internally and Step returns nil, leaving ip
// at the matching catch target.
func (in *Interpreter) Step() error {
	inst, err := isa.Decode(in.Vm.Bytecode, in.ip)
	if err != nil {
		return in.signalPanic(err)
	}

	next := in.ip + inst.Size
	v := in.Vm

	switch inst.Op {
	case isa.OpNop:

	case isa.OpMove:
		v.SetReg(int(inst.Reg1), v.Reg(int(inst.Reg2)))
	case isa.OpMoveI:
		v.SetReg(int(inst.Reg1), inst.Word)
	case isa.OpMoveIB:
		v.SetReg(int(inst.Reg1), int64(inst.Byte))
	case isa.OpLoad:
		val, err := v.LoadU64(v.Reg(int(inst.Reg2)))
		if err != nil {
			return in.signalPanic(err)
		}
		v.SetReg(int(inst.Reg1), int64(val))
	case isa.OpLoadB:
		val, err := v.LoadU8(v.Reg(int(inst.Reg2)))
		if err != nil {
			return in.signalPanic(err)
		}
		v.SetReg(int(inst.Reg1), int64(val))
	case isa.OpStore:
		if err := v.StoreU64(v.Reg(int(inst.Reg1)), uint64(v.Reg(int(inst.Reg2)))); err != nil {
			return in.signalPanic(err)
		}
	case isa.OpStoreB:
		if err := v.StoreU8(v.Reg(int(inst.Reg1)), byte(v.Reg(int(inst.Reg2)))); err != nil {
			return in.signalPanic(err)
		}
	case isa.OpPush:
		sp := v.Reg(vm.RegSP) - 8
		if err := v.StoreU64(sp, uint64(v.Reg(int(inst.Reg1)))); err != nil {
			return in.signalPanic(err)
		}
		v.SetReg(vm.RegSP, sp)
	case isa.OpPop:
		sp := v.Reg(vm.RegSP)
		val, err := v.LoadU64(sp)
		if err != nil {
			return in.signalPanic(err)
		}
		v.SetReg(int(inst.Reg1), int64(val))
		v.SetReg(vm.RegSP, sp+8)

	case isa.OpJump:
		next = int(uint64(inst.Word))
	case isa.OpCJump:
		if v.Reg(vm.RegST) != 0 {
			next = int(uint64(inst.Word))
		}
	case isa.OpCall:
		if err := v.CallPush(uint64(next)); err != nil {
			return in.signalPanic(err)
		}
		next = int(uint64(inst.Word))
	case isa.OpRet:
		target, err := v.CallPop()
		if err != nil {
			return in.signalPanic(err)
		}
		next = int(target)
	case isa.OpSyscall:
		result := syscalls.Dispatch(in.Syscalls, v, inst.Byte)
		if result.Err != nil {
			return in.fatal(result.Err)
		}
		if result.Reenter != nil {
			v.Reset(result.Reenter)
			next = 0
		}
		if v.PendingPanic != nil {
			cause := v.PendingPanic
			v.PendingPanic = nil
			return in.signalPanic(cause)
		}

	case isa.OpCmp:
		v.SetReg(vm.RegST, v.Reg(int(inst.Reg1))-v.Reg(int(inst.Reg2)))
	case isa.OpIsEqual:
		v.SetReg(vm.RegST, boolToInt(v.Reg(vm.RegST) == 0))
	case isa.OpIsLess:
		v.SetReg(vm.RegST, boolToInt(v.Reg(vm.RegST) < 0))
	case isa.OpIsGreater:
		v.SetReg(vm.RegST, boolToInt(v.Reg(vm.RegST) > 0))
	case isa.OpIsLessEqual:
		v.SetReg(vm.RegST, boolToInt(v.Reg(vm.RegST) <= 0))
	case isa.OpIsGreaterEqual:
		v.SetReg(vm.RegST, boolToInt(v.Reg(vm.RegST) >= 0))
	case isa.OpIsNotEqual:
		v.SetReg(vm.RegST, boolToInt(v.Reg(vm.RegST) != 0))

	case isa.OpFCmp:
		a := math.Float64frombits(uint64(v.Reg(int(inst.Reg1))))
		b := math.Float64frombits(uint64(v.Reg(int(inst.Reg2))))
		v.SetReg(vm.RegST, int64(math.Float64bits(a-b)))
	case isa.OpFIsEqual:
		v.SetReg(vm.RegST, boolToInt(stFloat(v) == 0))
	case isa.OpFIsLess:
		v.SetReg(vm.RegST, boolToInt(stFloat(v) < 0))
	case isa.OpFIsGreater:
		v.SetReg(vm.RegST, boolToInt(stFloat(v) > 0))
	case isa.OpFIsLessEqual:
		v.SetReg(vm.RegST, boolToInt(stFloat(v) <= 0))
	case isa.OpFIsGreaterEqual:
		v.SetReg(vm.RegST, boolToInt(stFloat(v) >= 0))
	case isa.OpFIsNotEqual:
		v.SetReg(vm.RegST, boolToInt(stFloat(v) != 0))

	case isa.OpIntToFloat:
		r := int(inst.Reg1)
		v.SetReg(r, int64(math.Float64bits(float64(v.Reg(r)))))
	case isa.OpFloatToInt:
		r := int(inst.Reg1)
		v.SetReg(r, floatToIntSaturating(math.Float64frombits(uint64(v.Reg(r)))))

	case isa.OpAdd:
		r1 := int(inst.Reg1)
		v.SetReg(r1, v.Reg(r1)+v.Reg(int(inst.Reg2)))
	case isa.OpSub:
		r1 := int(inst.Reg1)
		v.SetReg(r1, v.Reg(r1)-v.Reg(int(inst.Reg2)))
	case isa.OpMul:
		r1 := int(inst.Reg1)
		v.SetReg(r1, v.Reg(r1)*v.Reg(int(inst.Reg2)))
	case isa.OpDiv:
		r1 := int(inst.Reg1)
		divisor := v.Reg(int(inst.Reg2))
		if divisor == 0 {
			return in.signalPanic(&vm.DivideByZero{})
		}
		v.SetReg(r1, v.Reg(r1)/divisor)
	case isa.OpRem:
		r1 := int(inst.Reg1)
		divisor := v.Reg(int(inst.Reg2))
		if divisor == 0 {
			return in.signalPanic(&vm.DivideByZero{})
		}
		v.SetReg(r1, v.Reg(r1)%divisor)

	case isa.OpFAdd:
		setFloatResult(v, int(inst.Reg1), floatOf(v, inst.Reg1)+floatOf(v, inst.Reg2))
	case isa.OpFSub:
		setFloatResult(v, int(inst.Reg1), floatOf(v, inst.Reg1)-floatOf(v, inst.Reg2))
	case isa.OpFMul:
		setFloatResult(v, int(inst.Reg1), floatOf(v, inst.Reg1)*floatOf(v, inst.Reg2))
	case isa.OpFDiv:
		setFloatResult(v, int(inst.Reg1), floatOf(v, inst.Reg1)/floatOf(v, inst.Reg2))

	case isa.OpAnd:
		r1 := int(inst.Reg1)
		v.SetReg(r1, v.Reg(r1)&v.Reg(int(inst.Reg2)))
	case isa.OpOr:
		r1 := int(inst.Reg1)
		v.SetReg(r1, v.Reg(r1)|v.Reg(int(inst.Reg2)))
	case isa.OpXor:
		r1 := int(inst.Reg1)
		v.SetReg(r1, v.Reg(r1)^v.Reg(int(inst.Reg2)))
	case isa.OpNot:
		r1 := int(inst.Reg1)
		v.SetReg(r1, ^v.Reg(r1))

	case isa.OpPanic:
		return in.signalPanic(&vm.PanicInstruction{})
	case isa.OpTryStart:
		scope := vm.TryScope{CallDepth: v.CallDepth(), SP: v.Reg(vm.RegSP), Catch: uint64(inst.Word)}
		if err := v.TryPush(scope); err != nil {
			return in.signalPanic(err)
		}
	case isa.OpTryEnd:
		if _, err := v.TryPop(); err != nil {
			return in.signalPanic(err)
		}

	default:
		return in.signalPanic(&isa.ErrUnknownOpcode{Offset: in.ip, Opcode: byte(inst.Op)})
	}

	in.ip = next
	return nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func stFloat(v *vm.Vm) float64 {
	return math.Float64frombits(uint64(v.Reg(vm.RegST)))
}

func floatOf(v *vm.Vm, r isa.Reg) float64 {
	return math.Float64frombits(uint64(v.Reg(int(r))))
}

func setFloatResult(v *vm.Vm, r int, f float64) {
	v.SetReg(r, int64(math.Float64bits(f)))
}

// floatToIntSaturating implements the resolved open question on
// floattoint's out-of-range behavior (spec.md §9): NaN becomes 0, and
// values outside int64's range saturate to MinInt64/MaxInt64 instead of
// wrapping or panicking.
func floatToIntSaturating(f float64) int64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= 9223372036854775807.0: // math.MaxInt64 as a float64 rounds up to 2^63
		return math.MaxInt64
	case f < -9223372036854775808.0:
		return math.MinInt64
	default:
		return int64(f)
	}
}

// signalPanic implements the unwind-or-fatal policy shared by every panic
// source (spec.md §7): the explicit panic opcode, out-of-memory accesses,
// divide by zero, stack underflow, unknown/truncated opcodes, and
// unimplemented syscalls all funnel through here. If a try scope is active,
// it pops that scope, truncates the call stack and restores sp exactly as
// they were at the matching trystart, and resumes at its catch target.
// Otherwise execution stops for good.
func (in *Interpreter) signalPanic(cause error) error {
	v := in.Vm
	scope, ok := v.TryPeek()
	if !ok {
		return in.fatal(cause)
	}
	v.TryPop()
	v.TruncateCallStack(scope.CallDepth)
	v.SetReg(vm.RegSP, scope.SP)
	in.ip = int(scope.Catch)
	return nil
}

func (in *Interpreter) fatal(cause error) error {
	v := in.Vm
	frames := []trace.Frame{{BytecodeOffset: uint64(in.ip)}}
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
