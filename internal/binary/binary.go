// Package binary implements the Soil executable container format: a small
// magic header followed by a sequence of typed-length sections.
package binary

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Section type tags, as they appear on the wire.
const (
	sectionBytecode      = 0
	sectionInitialMemory = 1
	sectionName          = 2
	sectionLabels        = 3
	sectionDescription   = 4
)

var magic = [4]byte{'s', 'o', 'i', 'l'}

// Sentinel errors for the failure modes named in the format's spec. Callers
// that need to distinguish them can use errors.Is.
var (
	ErrMagicMismatch         = errors.New("soil/binary: magic mismatch")
	ErrTruncated             = errors.New("soil/binary: truncated input")
	ErrInitialMemoryTooLarge = errors.New("soil/binary: initial memory section larger than VM memory")
	ErrLabelOutOfRange       = errors.New("soil/binary: label offset out of bytecode range")
)

// Label is a debug record mapping a bytecode offset to a human-readable
// name, used only for stack traces.
type Label struct {
	Offset uint64
	Name   string
}

// Program is everything the loader extracts from a Soil executable: the
// immutable bytecode, the bytes to seed linear memory with, and optional
// debug metadata.
type Program struct {
	Bytecode      []byte
	InitialMemory []byte
	Labels        []Label
	Name          string
	Description   string
}

// Load parses a Soil executable from r. memSize is the VM's configured
// linear memory capacity; an initial-memory section larger than memSize is
// rejected rather than silently truncated.
func Load(r io.Reader, memSize int) (*Program, error) {
	br := &byteReader{r: r}

	var gotMagic [4]byte
	if err := br.readFull(gotMagic[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	if gotMagic != magic {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrMagicMismatch, gotMagic, magic)
	}

	prog := &Program{}
	for {
		tag, length, err := readSectionHeader(br)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: reading section header: %v", ErrTruncated, err)
		}

		switch tag {
		case sectionBytecode:
			payload, err := br.readN(length)
			if err != nil {
				return nil, fmt.Errorf("%w: bytecode section: %v", ErrTruncated, err)
			}
			prog.Bytecode = payload
		case sectionInitialMemory:
			if length > uint64(memSize) {
				return nil, fmt.Errorf("%w: %d bytes > %d byte memory", ErrInitialMemoryTooLarge, length, memSize)
			}
			payload, err := br.readN(length)
			if err != nil {
				return nil, fmt.Errorf("%w: initial memory section: %v", ErrTruncated, err)
			}
			prog.InitialMemory = payload
		case sectionName:
			payload, err := br.readN(length)
			if err != nil {
				return nil, fmt.Errorf("%w: name section: %v", ErrTruncated, err)
			}
			prog.Name = string(payload)
		case sectionDescription:
			payload, err := br.readN(length)
			if err != nil {
				return nil, fmt.Errorf("%w: description section: %v", ErrTruncated, err)
			}
			prog.Description = string(payload)
		case sectionLabels:
			labels, err := readLabelsSection(br, length)
			if err != nil {
				return nil, err
			}
			prog.Labels = labels
		default:
			// Unknown section types are skipped, not errors.
			if err := br.skip(length); err != nil {
				return nil, fmt.Errorf("%w: skipping unknown section type %d: %v", ErrTruncated, tag, err)
			}
		}
	}

	for _, l := range prog.Labels {
		if l.Offset >= uint64(len(prog.Bytecode)) {
			return nil, fmt.Errorf("%w: label %q at %d, bytecode is %d bytes",
				ErrLabelOutOfRange, l.Name, l.Offset, len(prog.Bytecode))
		}
	}

	return prog, nil
}

func readSectionHeader(br *byteReader) (tag byte, length uint64, err error) {
	var head [9]byte
	if err := br.readFull(head[:1]); err != nil {
		return 0, 0, err // EOF here is the normal end of the section list.
	}
	if err := br.readFull(head[1:]); err != nil {
		return 0, 0, err
	}
	tag = head[0]
	length = binary.LittleEndian.Uint64(head[1:])
	return tag, length, nil
}

func readLabelsSection(br *byteReader, sectionLength uint64) ([]Label, error) {
	body, err := br.readN(sectionLength)
	if err != nil {
		return nil, fmt.Errorf("%w: labels section: %v", ErrTruncated, err)
	}
	lr := &byteReader{r: bytesReaderOf(body)}

	var countBuf [8]byte
	if err := lr.readFull(countBuf[:]); err != nil {
		return nil, fmt.Errorf("%w: label count: %v", ErrTruncated, err)
	}
	count := binary.LittleEndian.Uint64(countBuf[:])

	labels := make([]Label, 0, count)
	for i := uint64(0); i < count; i++ {
		var rec [16]byte
		if err := lr.readFull(rec[:]); err != nil {
			return nil, fmt.Errorf("%w: label record %d: %v", ErrTruncated, i, err)
		}
		offset := binary.LittleEndian.Uint64(rec[0:8])
		nameLen := binary.LittleEndian.Uint64(rec[8:16])
		name, err := lr.readN(nameLen)
		if err != nil {
			return nil, fmt.Errorf("%w: label record %d name: %v", ErrTruncated, i, err)
		}
		labels = append(labels, Label{Offset: offset, Name: string(name)})
	}
	return labels, nil
}
