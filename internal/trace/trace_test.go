package trace

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MarcelGarus/soil-sub000/internal/binary"
)

func TestLookup_GreatestOffsetAtOrBelowTarget(t *testing.T) {
	labels := sortLabels([]binary.Label{
		{Offset: 100, Name: "main"},
		{Offset: 10, Name: "start"},
		{Offset: 50, Name: "helper"},
	})

	require.Equal(t, "<no label>", Lookup(labels, 5))
	require.Equal(t, "start", Lookup(labels, 10))
	require.Equal(t, "start", Lookup(labels, 40))
	require.Equal(t, "helper", Lookup(labels, 50))
	require.Equal(t, "helper", Lookup(labels, 99))
	require.Equal(t, "main", Lookup(labels, 100))
	require.Equal(t, "main", Lookup(labels, 1000))
}

func TestLookup_NoLabels(t *testing.T) {
	require.Equal(t, "<no label>", Lookup(nil, 0))
}

func TestFormat_IncludesFramesAndRegisters(t *testing.T) {
	labels := []binary.Label{{Offset: 0, Name: "main"}, {Offset: 20, Name: "helper"}}
	frames := []Frame{{BytecodeOffset: 25}, {BytecodeOffset: 5}}
	regs := Registers{SP: 1000, ST: -1, A: 42}

	out := Format(labels, frames, regs)
	require.Contains(t, out, "00000019 helper")
	require.Contains(t, out, "00000005 main")
	require.Contains(t, out, "sp = 1000")
	require.Contains(t, out, "a = 42")
}
