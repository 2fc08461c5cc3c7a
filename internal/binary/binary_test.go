package binary

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func section(tag byte, payload []byte) []byte {
	var out bytes.Buffer
	out.WriteByte(tag)
	var length [8]byte
	binary.LittleEndian.PutUint64(length[:], uint64(len(payload)))
	out.Write(length[:])
	out.Write(payload)
	return out.Bytes()
}

func buildBinary(sections ...[]byte) []byte {
	var out bytes.Buffer
	out.WriteString("soil")
	for _, s := range sections {
		out.Write(s)
	}
	return out.Bytes()
}

func TestLoad_MagicMismatch(t *testing.T) {
	_, err := Load(bytes.NewReader([]byte("nope")), 1024)
	require.ErrorIs(t, err, ErrMagicMismatch)
}

func TestLoad_Truncated(t *testing.T) {
	_, err := Load(bytes.NewReader([]byte("so")), 1024)
	require.ErrorIs(t, err, ErrTruncated)
}

func TestLoad_BytecodeAndName(t *testing.T) {
	bin := buildBinary(
		section(sectionBytecode, []byte{0x00, 0x00}),
		section(sectionName, []byte("hello")),
	)
	prog, err := Load(bytes.NewReader(bin), 1024)
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0x00}, prog.Bytecode)
	require.Equal(t, "hello", prog.Name)
}

func TestLoad_InitialMemoryTooLarge(t *testing.T) {
	bin := buildBinary(section(sectionInitialMemory, make([]byte, 2048)))
	_, err := Load(bytes.NewReader(bin), 1024)
	require.ErrorIs(t, err, ErrInitialMemoryTooLarge)
}

func TestLoad_UnknownSectionIsSkipped(t *testing.T) {
	bin := buildBinary(
		section(42, []byte{1, 2, 3, 4}),
		section(sectionBytecode, []byte{0xe0}),
	)
	prog, err := Load(bytes.NewReader(bin), 1024)
	require.NoError(t, err)
	require.Equal(t, []byte{0xe0}, prog.Bytecode)
}

func TestLoad_Labels(t *testing.T) {
	var labelPayload bytes.Buffer
	var count [8]byte
	binary.LittleEndian.PutUint64(count[:], 1)
	labelPayload.Write(count[:])
	var rec [16]byte
	binary.LittleEndian.PutUint64(rec[0:8], 0)
	binary.LittleEndian.PutUint64(rec[8:16], uint64(len("main")))
	labelPayload.Write(rec[:])
	labelPayload.WriteString("main")

	bin := buildBinary(
		section(sectionBytecode, []byte{0x00, 0x00, 0x00}),
		section(sectionLabels, labelPayload.Bytes()),
	)
	prog, err := Load(bytes.NewReader(bin), 1024)
	require.NoError(t, err)
	require.Equal(t, []Label{{Offset: 0, Name: "main"}}, prog.Labels)
}

func TestLoad_LabelOutOfRange(t *testing.T) {
	var labelPayload bytes.Buffer
	var count [8]byte
	binary.LittleEndian.PutUint64(count[:], 1)
	labelPayload.Write(count[:])
	var rec [16]byte
	binary.LittleEndian.PutUint64(rec[0:8], 100)
	binary.LittleEndian.PutUint64(rec[8:16], 0)
	labelPayload.Write(rec[:])

	bin := buildBinary(
		section(sectionBytecode, []byte{0x00}),
		section(sectionLabels, labelPayload.Bytes()),
	)
	_, err := Load(bytes.NewReader(bin), 1024)
	require.ErrorIs(t, err, ErrLabelOutOfRange)
}

func TestLoad_LabelAtBytecodeLengthIsOutOfRange(t *testing.T) {
	// A label's offset must lie inside the bytecode, so one sitting exactly
	// at the end of the bytecode (one past the last byte) is out of range,
	// not a boundary-valid case.
	var labelPayload bytes.Buffer
	var count [8]byte
	binary.LittleEndian.PutUint64(count[:], 1)
	labelPayload.Write(count[:])
	var rec [16]byte
	binary.LittleEndian.PutUint64(rec[0:8], 1) // == len(bytecode) below
	binary.LittleEndian.PutUint64(rec[8:16], 0)
	labelPayload.Write(rec[:])

	bin := buildBinary(
		section(sectionBytecode, []byte{0x00}),
		section(sectionLabels, labelPayload.Bytes()),
	)
	_, err := Load(bytes.NewReader(bin), 1024)
	require.ErrorIs(t, err, ErrLabelOutOfRange)
}

func TestLoad_InitialMemoryCopiedNotAliased(t *testing.T) {
	data := []byte{1, 2, 3, 4}
	bin := buildBinary(section(sectionInitialMemory, data))
	prog, err := Load(bytes.NewReader(bin), 1024)
	require.NoError(t, err)
	data[0] = 0xff
	require.Equal(t, byte(1), prog.InitialMemory[0], "Load must not alias the source reader's buffer")
}
