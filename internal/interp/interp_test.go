package interp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MarcelGarus/soil-sub000/internal/binary"
	"github.com/MarcelGarus/soil-sub000/internal/isa"
	"github.com/MarcelGarus/soil-sub000/internal/syscalls"
	"github.com/MarcelGarus/soil-sub000/internal/vm"
)

func newVm(t *testing.T, bytecode []byte) *vm.Vm {
	t.Helper()
	cfg := vm.Config{MemSize: 4096, CallStackLimit: 64, TryStackLimit: 16}
	return vm.New(&binary.Program{Bytecode: bytecode}, cfg, nil)
}

func enc(insts ...isa.Instruction) []byte {
	var buf []byte
	for _, inst := range insts {
		buf = isa.Encode(buf, inst)
	}
	return buf
}

func TestRun_ArithmeticThenExit(t *testing.T) {
	code := enc(
		isa.Instruction{Op: isa.OpMoveI, Reg1: isa.RegA, Word: 5},
		isa.Instruction{Op: isa.OpMoveI, Reg1: isa.RegB, Word: 3},
		isa.Instruction{Op: isa.OpAdd, Reg1: isa.RegA, Reg2: isa.RegB},
		isa.Instruction{Op: isa.OpSyscall, Byte: 0},
	)
	v := newVm(t, code)
	in := New(v, syscalls.NewTable())
	require.NoError(t, in.Run())
	require.True(t, v.Exited)
	require.Equal(t, 8, v.ExitCode)
}

func TestRun_DivideByZeroCaughtByTryCatch(t *testing.T) {
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
	in := New(v, syscalls.NewTable())
	require.NoError(t, in.Run())
	require.True(t, v.Exited)
	require.Equal(t, 99, v.ExitCode)
	require.Equal(t, 0, v.TryDepth())
}

func TestRun_CallAndRet(t *testing.T) {
	const (
		moveiSize = 10
		callSize  = 9
		addSize   = 2
		retSize   = 1
		syscall   = 2
	)
	funcOffset := moveiSize + callSize + syscall

	code := enc(
		isa.Instruction{Op: isa.OpMoveI, Reg1: isa.RegA, Word: 10},
		isa.Instruction{Op: isa.OpCall, Word: int64(funcOffset)},
		isa.Instruction{Op: isa.OpSyscall, Byte: 0},
		isa.Instruction{Op: isa.OpAdd, Reg1: isa.RegA, Reg2: isa.RegA},
		isa.Instruction{Op: isa.OpRet},
	)
	v := newVm(t, code)
	in := New(v, syscalls.NewTable())
	require.NoError(t, in.Run())
	require.Equal(t, 20, v.ExitCode)
}

func TestStep_PushPopRoundTripsThroughMemory(t *testing.T) {
	code := enc(
		isa.Instruction{Op: isa.OpMoveI, Reg1: isa.RegA, Word: 0x1234},
		isa.Instruction{Op: isa.OpPush, Reg1: isa.RegA},
		isa.Instruction{Op: isa.OpPop, Reg1: isa.RegB},
	)
	v := newVm(t, code)
	startSP := v.Reg(vm.RegSP)
	in := New(v, syscalls.NewTable())
	require.NoError(t, in.Step())
	require.NoError(t, in.Step())
	require.NoError(t, in.Step())
	require.Equal(t, int64(0x1234), v.Reg(vm.RegB))
	require.Equal(t, startSP, v.Reg(vm.RegSP))
}

func TestRun_UnknownOpcodeIsFatalWithoutTryScope(t *testing.T) {
	code := []byte{0xff}
	v := newVm(t, code)
	in := New(v, syscalls.NewTable())
	err := in.Run()
	require.Error(t, err)
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	var unknown *isa.ErrUnknownOpcode
	require.ErrorAs(t, fatal.Cause, &unknown)
}

func TestRun_UnimplementedSyscallIsFatalWithoutTryScope(t *testing.T) {
	code := enc(isa.Instruction{Op: isa.OpSyscall, Byte: 200})
	v := newVm(t, code)
	in := New(v, syscalls.NewTable())
	err := in.Run()
	require.Error(t, err)
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	var notImpl *syscalls.NotImplemented
	require.ErrorAs(t, fatal.Cause, &notImpl)
}
