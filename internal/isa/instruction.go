package isa

import (
	"encoding/binary"
	"fmt"
)

// Reg is one of the eight register indices on the wire: 0..7, named
// sp, st, a, b, c, d, e, f in that order.
type Reg byte

const (
	RegSP Reg = iota
	RegST
	RegA
	RegB
	RegC
	RegD
	RegE
	RegF
)

func (r Reg) String() string {
	names := [8]string{"sp", "st", "a", "b", "c", "d", "e", "f"}
	if int(r) < len(names) {
		return names[r]
	}
	return fmt.Sprintf("r%d", r)
}

// Instruction is a decoded Soil instruction: the opcode plus whichever
// operand fields its Encoding populates. Unused fields are zero.
type Instruction struct {
	Op   Op
	Reg1 Reg
	Reg2 Reg
	Word int64
	Byte byte
	Size int // on-wire size in bytes, including the opcode byte
}

// ErrUnknownOpcode is returned (and, per spec, should lead the caller to
// panic the VM) when the first byte of an instruction isn't a documented
// opcode.
type ErrUnknownOpcode struct {
	Offset int
	Opcode byte
}

func (e *ErrUnknownOpcode) Error() string {
	return fmt.Sprintf("isa: unknown opcode 0x%02x at bytecode offset %d", e.Opcode, e.Offset)
}

// ErrTruncatedInstruction is returned when an instruction's operand bytes
// run past the end of the bytecode array.
type ErrTruncatedInstruction struct {
	Offset int
	Op     Op
}

func (e *ErrTruncatedInstruction) Error() string {
	return fmt.Sprintf("isa: truncated %s instruction at bytecode offset %d", e.Op, e.Offset)
}

// Decode reads one instruction starting at bytecode[ip]. The returned
// Instruction.Size is the exact number of bytes consumed, fully determined
// by the opcode (no instruction has variable-length operands).
func Decode(bytecode []byte, ip int) (Instruction, error) {
	if ip < 0 || ip >= len(bytecode) {
		return Instruction{}, &ErrTruncatedInstruction{Offset: ip}
	}
	op := Op(bytecode[ip])
	enc, ok := encodingOf[op]
	if !ok {
		return Instruction{}, &ErrUnknownOpcode{Offset: ip, Opcode: bytecode[ip]}
	}
	size := enc.Size()
	if ip+size > len(bytecode) {
		return Instruction{}, &ErrTruncatedInstruction{Offset: ip, Op: op}
	}

	inst := Instruction{Op: op, Size: size}
	body := bytecode[ip+1 : ip+size]
	switch enc {
	case EncNone:
	case EncR:
		inst.Reg1 = Reg(body[0] & 0x0f)
	case EncRR:
		inst.Reg1 = Reg(body[0] & 0x0f)
		inst.Reg2 = Reg(body[0] >> 4)
	case EncRWord:
		inst.Reg1 = Reg(body[0] & 0x0f)
		inst.Word = int64(binary.LittleEndian.Uint64(body[1:9]))
	case EncRByte:
		inst.Reg1 = Reg(body[0] & 0x0f)
		inst.Byte = body[1]
	case EncByte:
		inst.Byte = body[0]
	case EncWord:
		inst.Word = int64(binary.LittleEndian.Uint64(body[0:8]))
	}
	return inst, nil
}

// Encode is the inverse of Decode: it appends the on-wire bytes for inst to
// buf and returns the result. It's used by the assembler-less test suite to
// build bytecode fixtures, and to verify the decoder round-trips.
func Encode(buf []byte, inst Instruction) []byte {
	enc, ok := encodingOf[inst.Op]
	if !ok {
		panic(fmt.Sprintf("isa: Encode of unknown opcode 0x%02x", byte(inst.Op)))
	}
	buf = append(buf, byte(inst.Op))
	switch enc {
	case EncNone:
	case EncR:
		buf = append(buf, byte(inst.Reg1))
	case EncRR:
		buf = append(buf, byte(inst.Reg1)|byte(inst.Reg2)<<4)
	case EncRWord:
		buf = append(buf, byte(inst.Reg1))
		buf = appendWord(buf, inst.Word)
	case EncRByte:
		buf = append(buf, byte(inst.Reg1), inst.Byte)
	case EncByte:
		buf = append(buf, inst.Byte)
	case EncWord:
		buf = appendWord(buf, inst.Word)
	}
	return buf
}

func appendWord(buf []byte, w int64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(w))
	return append(buf, tmp[:]...)
}
