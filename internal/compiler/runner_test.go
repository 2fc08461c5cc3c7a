package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MarcelGarus/soil-sub000/internal/binary"
	"github.com/MarcelGarus/soil-sub000/internal/isa"
	"github.com/MarcelGarus/soil-sub000/internal/platform"
	"github.com/MarcelGarus/soil-sub000/internal/syscalls"
	"github.com/MarcelGarus/soil-sub000/internal/vm"
)

func newVm(t *testing.T, bytecode []byte) *vm.Vm {
	t.Helper()
	cfg := vm.Config{MemSize: 4096, CallStackLimit: 64, TryStackLimit: 16}
	return vm.New(&binary.Program{Bytecode: bytecode}, cfg, nil)
}

// TestRun_ArithmeticThenExit exercises the register spill/reload path
// directly: `a` lives in r10 for the whole translated run (regmap.go), and
// sysExit reads it back through v.Reg(vm.RegA) (internal/syscalls/
// handlers.go), which only sees what emitDispatch spilled into Vm.Regs
// immediately before the syscall dispatch call. Without that spill this
// would report exit code 0 regardless of what the program computed.
func TestRun_ArithmeticThenExit(t *testing.T) {
	if !platform.CompilerSupported() {
		t.Skip("native code execution not supported on this platform")
	}
	code := enc(
		isa.Instruction{Op: isa.OpMoveI, Reg1: isa.RegA, Word: 5},
		isa.Instruction{Op: isa.OpMoveI, Reg1: isa.RegB, Word: 3},
		isa.Instruction{Op: isa.OpAdd, Reg1: isa.RegA, Reg2: isa.RegB},
		isa.Instruction{Op: isa.OpSyscall, Byte: 0},
	)
	v := newVm(t, code)

	err := Run(v, syscalls.NewTable())
	require.NoError(t, err)
	require.True(t, v.Exited)
	require.Equal(t, 8, v.ExitCode)
}

// TestRun_DivideByZeroCaughtByTryCatch exercises unwindOrStop's sp restore
// (thunks.go): it calls v.SetReg(vm.RegSP, scope.SP) on the Go side, which
// only reaches the live sp register (r8) through emitReloadRegs after the
// dispatch call returns.
func TestRun_DivideByZeroCaughtByTryCatch(t *testing.T) {
	if !platform.CompilerSupported() {
		t.Skip("native code execution not supported on this platform")
	}
	// trystart CATCH; movei a,1; movei b,0; div a,b; tryend; jump END;
	// CATCH: movei a,99; END: syscall exit.
	const (
		trystartSize = 9
		moveiSize    = 10
		divSize      = 2
		tryendSize   = 1
		jumpSize     = 9
		syscallSize  = 2
	)
	catch := trystartSize + moveiSize + moveiSize + divSize + tryendSize + jumpSize
	end := catch + moveiSize

	code := enc(
		isa.Instruction{Op: isa.OpTryStart, Word: int64(catch)},
		isa.Instruction{Op: isa.OpMoveI, Reg1: isa.RegA, Word: 1},
		isa.Instruction{Op: isa.OpMoveI, Reg1: isa.RegB, Word: 0},
		isa.Instruction{Op: isa.OpDiv, Reg1: isa.RegA, Reg2: isa.RegB},
		isa.Instruction{Op: isa.OpTryEnd},
		isa.Instruction{Op: isa.OpJump, Word: int64(end)},
		isa.Instruction{Op: isa.OpMoveI, Reg1: isa.RegA, Word: 99},
		isa.Instruction{Op: isa.OpSyscall, Byte: 0},
	)
	v := newVm(t, code)

	err := Run(v, syscalls.NewTable())
	require.NoError(t, err)
	require.True(t, v.Exited)
	require.Equal(t, 99, v.ExitCode)
	require.Equal(t, 0, v.TryDepth())
}
