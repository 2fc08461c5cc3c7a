package isa

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func allOps() []Op {
	ops := make([]Op, 0, len(encodingOf))
	for op := range encodingOf {
		ops = append(ops, op)
	}
	return ops
}

func TestDecode_RoundTripsEveryOpcode(t *testing.T) {
	for _, op := range allOps() {
		op := op
		t.Run(op.String(), func(t *testing.T) {
			original := Instruction{
				Op:   op,
				Reg1: RegC,
				Reg2: RegE,
				Word: -123456789,
				Byte: 7,
			}
			buf := Encode(nil, original)
			require.Equal(t, encodingOf[op].Size(), len(buf))

			decoded, err := Decode(buf, 0)
			require.NoError(t, err)
			require.Equal(t, len(buf), decoded.Size)

			// Only the fields the encoding actually carries must round-trip.
			switch encodingOf[op] {
			case EncR:
				require.Equal(t, original.Reg1, decoded.Reg1)
			case EncRR:
				require.Equal(t, original.Reg1, decoded.Reg1)
				require.Equal(t, original.Reg2, decoded.Reg2)
			case EncRWord:
				require.Equal(t, original.Reg1, decoded.Reg1)
				require.Equal(t, original.Word, decoded.Word)
			case EncRByte:
				require.Equal(t, original.Reg1, decoded.Reg1)
				require.Equal(t, original.Byte, decoded.Byte)
			case EncByte:
				require.Equal(t, original.Byte, decoded.Byte)
			case EncWord:
				require.Equal(t, original.Word, decoded.Word)
			}
		})
	}
}

func TestDecode_UnknownOpcodePanics(t *testing.T) {
	_, err := Decode([]byte{0xff}, 0)
	require.Error(t, err)
	var unknownErr *ErrUnknownOpcode
	require.ErrorAs(t, err, &unknownErr)
}

func TestDecode_TruncatedInstruction(t *testing.T) {
	// movei wants a register byte + 8-byte word; give it only the register byte.
	_, err := Decode([]byte{byte(OpMoveI), byte(RegA)}, 0)
	require.Error(t, err)
	var truncErr *ErrTruncatedInstruction
	require.ErrorAs(t, err, &truncErr)
}

func TestEncodingSizes(t *testing.T) {
	require.Equal(t, 1, encodingOf[OpNop].Size())
	require.Equal(t, 2, encodingOf[OpMove].Size())
	require.Equal(t, 10, encodingOf[OpMoveI].Size())
	require.Equal(t, 3, encodingOf[OpMoveIB].Size())
	require.Equal(t, 2, encodingOf[OpPush].Size())
	require.Equal(t, 9, encodingOf[OpJump].Size())
	require.Equal(t, 2, encodingOf[OpSyscall].Size())
	require.Equal(t, 1, encodingOf[OpRet].Size())
}
