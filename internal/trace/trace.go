// Package trace formats the stack trace dumped to stderr on an uncaught
// panic (spec.md §6): one line per active call frame, a bytecode offset in
// hex, the covering label's name if any, followed by a register dump.
package trace

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/MarcelGarus/soil-sub000/internal/binary"
)

// sortLabels returns labels sorted by Offset, the order Lookup requires.
func sortLabels(labels []binary.Label) []binary.Label {
	sorted := append([]binary.Label(nil), labels...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })
	return sorted
}

// Lookup returns the name of the label with the greatest offset that is
// still ≤ target, or "<no label>" if none covers it. labels must already be
// sorted by Offset (see sortLabels, which Format applies).
func Lookup(sortedLabels []binary.Label, target uint64) string {
	i, found := slices.BinarySearchFunc(sortedLabels, target, func(l binary.Label, target uint64) int {
		switch {
		case l.Offset < target:
			return -1
		case l.Offset > target:
			return 1
		default:
			return 0
		}
	})
	if found {
		return sortedLabels[i].Name
	}
	// i is the insertion point: the covering label (if any) is the one
	// just before it.
	if i == 0 {
		return "<no label>"
	}
	return sortedLabels[i-1].Name
}

// Frame is one entry of the active call-frame list, ordered innermost
// first, as produced by the unwinder in the interpreter/compiler packages.
type Frame struct {
	BytecodeOffset uint64
}

// Registers is the fixed register dump appended to every stack trace
// (spec.md §6): sp, st, a..f, each in decimal and hex.
type Registers struct {
	SP, ST, A, B, C, D, E, F int64
}

// Format renders the full stack trace text written to stderr.
func Format(labels []binary.Label, frames []Frame, regs Registers) string {
	sorted := sortLabels(labels)
	var b strings.Builder
	for _, f := range frames {
		name := Lookup(sorted, f.BytecodeOffset)
		fmt.Fprintf(&b, "%08x %s\n", f.BytecodeOffset, name)
	}
	names := []string{"sp", "st", "a", "b", "c", "d", "e", "f"}
	values := []int64{regs.SP, regs.ST, regs.A, regs.B, regs.C, regs.D, regs.E, regs.F}
	for i, name := range names {
		fmt.Fprintf(&b, "%s = %d (0x%x)\n", name, values[i], uint64(values[i]))
	}
	return b.String()
}
