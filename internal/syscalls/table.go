// Package syscalls implements the host side of the syscall trampoline ABI
// (spec.md §4.5): 256 slots, each either a real handler or a uniform
// "not implemented" stub, invoked uniformly from both the interpreter and
// the JIT backend.
package syscalls

import (
	"fmt"

	"github.com/MarcelGarus/soil-sub000/internal/vm"
)

// Func is a syscall handler. It receives the Vm (arg1 of the trampoline
// ABI) and reads whichever of a..e (args 2..6) it declares; Results says
// how many of r0/r1 it populates, which the caller writes back into a and
// (if Results == 2) b, matching spec.md §4.5's return marshalling.
type Func func(v *vm.Vm) (r0, r1 int64)

// Entry describes one of the 256 syscall slots.
type Entry struct {
	Name    string
	Results int // 0, 1, or 2
	Fn      Func
}

// NotImplemented is the sentinel error a stub slot raises. Per spec.md §9,
// every slot 0..255 dispatches to either a real handler or this uniform
// stub; it is routed through the same panic/unwind machinery as the `panic`
// opcode (see internal/interp and internal/compiler), so a program that
// wraps an unsupported syscall in trystart/tryend can still recover from it.
type NotImplemented struct{ N byte }

func (e *NotImplemented) Error() string {
	return fmt.Sprintf("syscall %d not implemented", e.N)
}

// Table is the full 256-entry syscall dispatch table. Index 256 is out of
// range by construction (N is a byte), so no entry can ever be missing.
type Table [256]Entry

// NewTable builds the reference table: the 15 concrete handlers named in
// spec.md §4.5.1, plus a uniform not-implemented stub for every other slot.
func NewTable() *Table {
	var t Table
	for i := range t {
		t[i] = Entry{Name: "not_implemented", Fn: nil}
	}
	t[0] = Entry{Name: "exit", Fn: sysExit}
	t[1] = Entry{Name: "print", Fn: sysPrint}
	t[2] = Entry{Name: "log", Fn: sysLog}
	t[3] = Entry{Name: "create", Results: 1, Fn: sysCreate}
	t[4] = Entry{Name: "open_reading", Results: 1, Fn: sysOpenReading}
	t[5] = Entry{Name: "open_writing", Results: 1, Fn: sysOpenWriting}
	t[6] = Entry{Name: "read", Results: 1, Fn: sysRead}
	t[7] = Entry{Name: "write", Results: 1, Fn: sysWrite}
	t[8] = Entry{Name: "close", Results: 1, Fn: sysClose}
	t[9] = Entry{Name: "argc", Results: 1, Fn: sysArgc}
	t[10] = Entry{Name: "arg", Results: 1, Fn: sysArg}
	t[11] = Entry{Name: "read_input", Results: 1, Fn: sysReadInput}
	t[12] = Entry{Name: "execute", Fn: nil} // handled specially by the caller, see Dispatch.
	t[13] = Entry{Name: "ui_dimensions", Results: 2, Fn: sysUIDimensions}
	t[14] = Entry{Name: "ui_render", Fn: sysUIRender}
	return &t
}

// ExecuteSyscallNumber is the one slot the execution engines special-case:
// re-parsing and reloading a whole new program can't be expressed as a
// plain Func, since it needs access to the binary loader and to replace
// the Vm's bytecode/memory wholesale (spec.md §4.4.3/§9).
const ExecuteSyscallNumber = 12

// Get returns the entry for n. The caller is responsible for special-casing
// ExecuteSyscallNumber before calling Get.
func (t *Table) Get(n byte) Entry { return t[n] }
