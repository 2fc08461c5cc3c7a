package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MarcelGarus/soil-sub000/internal/binary"
	"github.com/MarcelGarus/soil-sub000/internal/isa"
	"github.com/MarcelGarus/soil-sub000/internal/syscalls"
)

func enc(insts ...isa.Instruction) []byte {
	var buf []byte
	for _, inst := range insts {
		buf = isa.Encode(buf, inst)
	}
	return buf
}

func TestTranslate_StraightLineArithmeticProducesCode(t *testing.T) {
	code := enc(
		isa.Instruction{Op: isa.OpMoveI, Reg1: isa.RegA, Word: 5},
		isa.Instruction{Op: isa.OpMoveI, Reg1: isa.RegB, Word: 3},
		isa.Instruction{Op: isa.OpAdd, Reg1: isa.RegA, Reg2: isa.RegB},
		isa.Instruction{Op: isa.OpSyscall, Byte: 0},
	)
	c, err := Translate(&binary.Program{Bytecode: code}, syscalls.NewTable(), 4096)
	require.NoError(t, err)
	require.NotEmpty(t, c.RawCode)
	require.Len(t, c.BcToMc, len(code)+1)
	// Offsets at instruction starts must be strictly increasing: every
	// instruction emits at least one native byte, and the sentinel entry at
	// len(code) covers the tail. movei is 10 bytes, add and syscall are 2,
	// so the instructions start at 0, 10, 20 and 22.
	starts := []int{0, 10, 20, 22, len(code)}
	for i := 1; i < len(starts); i++ {
		require.Greater(t, c.BcToMc[starts[i]], c.BcToMc[starts[i-1]])
	}
}

func TestTranslate_BadJumpTargetRejected(t *testing.T) {
	code := enc(
		// Jumps into the middle of the jump's own 9-byte encoding, never a
		// decoded instruction boundary.
		isa.Instruction{Op: isa.OpJump, Word: 3},
		isa.Instruction{Op: isa.OpMoveI, Reg1: isa.RegA, Word: 0},
	)
	_, err := Translate(&binary.Program{Bytecode: code}, syscalls.NewTable(), 4096)
	require.Error(t, err)
	var badTarget *ErrBadJumpTarget
	require.ErrorAs(t, err, &badTarget)
}

func TestTranslate_JumpToEndOfBytecodeIsValid(t *testing.T) {
	// A jump straight to the (implicit) instruction just past the last
	// decoded one is a valid target -- it's where Translate records the
	// one-past-the-end sentinel offset. jump is 9 bytes (opcode + word),
	// movei is 10 (opcode + reg + word), so the tail sentinel sits at 19.
	code := enc(
		isa.Instruction{Op: isa.OpJump, Word: 19},
		isa.Instruction{Op: isa.OpMoveI, Reg1: isa.RegA, Word: 0},
	)
	c, err := Translate(&binary.Program{Bytecode: code}, syscalls.NewTable(), 4096)
	require.NoError(t, err)
	require.NotNil(t, c)
}

func TestTranslate_CallAndRetRoundTrip(t *testing.T) {
	// call to a function that immediately returns; the translator must not
	// error on forward-referencing a call target that comes after it.
	// movei is 10 bytes, call is 9 (opcode + word) and syscall is 2, so the
	// function starts at offset 21.
	const funcOffset = 21

	code := enc(
		isa.Instruction{Op: isa.OpMoveI, Reg1: isa.RegA, Word: 1},
		isa.Instruction{Op: isa.OpCall, Word: funcOffset},
		isa.Instruction{Op: isa.OpSyscall, Byte: 0},
		isa.Instruction{Op: isa.OpRet},
	)
	c, err := Translate(&binary.Program{Bytecode: code}, syscalls.NewTable(), 4096)
	require.NoError(t, err)
	require.NotNil(t, c)
}

func TestTranslate_UnknownOpcodeErrors(t *testing.T) {
	code := []byte{0xff} // not a valid encoding byte for any defined Op
	_, err := Translate(&binary.Program{Bytecode: code}, syscalls.NewTable(), 4096)
	require.Error(t, err)
}
