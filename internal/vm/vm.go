// Package vm owns the register file, linear memory, and the two internal
// stacks that make up a running Soil program's state (spec.md §4.3). Both
// the interpreter and the JIT runner operate on a *Vm.
package vm

import (
	"github.com/dchest/siphash"
	"github.com/google/uuid"

	"github.com/MarcelGarus/soil-sub000/internal/binary"
)

// Vm is the complete mutable state of one running Soil program.
type Vm struct {
	Regs [8]int64

	// Mem is the linear memory buffer, sized Config.MemSize+1: the extra
	// trailing byte is the guard byte spec.md §3 requires so that
	// null-terminated views of in-memory strings can be built in place.
	Mem []byte

	Bytecode []byte
	Labels   []binary.Label // in load order; trace.Format sorts its own copy

	CallStack []uint64
	TryStack  []TryScope

	Config Config

	// ID correlates log lines across a chain of `execute` syscall re-entries.
	ID uuid.UUID
	// Fingerprint is a siphash content hash of Bytecode, recomputed by
	// Reset. Stack traces and the crash dump file name do not include it.
	Fingerprint uint64

	Name        string
	Description string

	// Args are the program's own command-line arguments (argc/arg syscalls).
	Args []string

	Exited   bool
	ExitCode int

	// PendingPanic is set by a syscall handler (internal/syscalls) that
	// wants to raise a VM-level panic rather than just reporting failure
	// through a register, e.g. an unimplemented syscall. The execution
	// engine checks it right after dispatching a syscall and, if set,
	// clears it and routes it through the normal unwind-or-fatal path.
	PendingPanic error

	// PendingReenter is set by the JIT backend (internal/compiler) after an
	// `execute` syscall loaded a new program and Reset has already applied
	// it; the JIT runner checks it once the translated run stops, and
	// re-translates and restarts at bytecode offset 0 (spec.md §4.4.3/§9).
	// The interpreter handles `execute` directly from syscalls.Result.
	PendingReenter *binary.Program
	// PendingReenterErr is set by the JIT backend after a failed `execute`:
	// the new program couldn't be loaded, which is a host-level failure
	// rather than a VM-level panic (there's no bytecode left to resume into).
	PendingReenterErr error

	// CompilerRegistryIdx identifies this Vm's currently translated run in
	// the compiler package's registry (see internal/compiler/registry.go).
	// Generated machine code loads it straight out of this field at a
	// compile-time-known struct offset rather than having a value patched
	// into the generated code, since the index isn't known until after
	// translation has already emitted the loads that need it.
	CompilerRegistryIdx int64
}

// siphashKey is fixed: the fingerprint only needs to be stable within one
// process's diagnostics, not cryptographically keyed.
var siphashKey0, siphashKey1 uint64 = 0x736f696c5f766d00, 0x6669706e6572696e

// New creates a Vm from a loaded program. Registers start zeroed except sp,
// which starts at the top of memory; the initial memory section (if any)
// is copied starting at offset 0, and the rest of memory is zero.
func New(prog *binary.Program, cfg Config, args []string) *Vm {
	mem := make([]byte, cfg.MemSize+1) // +1 guard byte
	copy(mem, prog.InitialMemory)

	v := &Vm{
		Mem:         mem,
		Bytecode:    prog.Bytecode,
		Labels:      append([]binary.Label(nil), prog.Labels...),
		Config:      cfg,
		ID:          uuid.New(),
		Fingerprint: siphash.Hash(siphashKey0, siphashKey1, prog.Bytecode),
		Name:        prog.Name,
		Description: prog.Description,
		Args:        args,
	}
	v.Regs[RegSP] = int64(cfg.MemSize)
	return v
}

// Reset restores a Vm to its just-loaded state in place, used by the
// `execute` syscall (spec.md §9): sp ← MEM, every other register ← 0,
// both internal stacks emptied. It also swaps in prog's bytecode, labels,
// name and description, and rebuilds memory from prog's initial memory.
func (v *Vm) Reset(prog *binary.Program) {
	for i := range v.Regs {
		v.Regs[i] = 0
	}
	v.Mem = make([]byte, v.Config.MemSize+1)
	copy(v.Mem, prog.InitialMemory)
	v.Bytecode = prog.Bytecode
	v.Labels = append([]binary.Label(nil), prog.Labels...)
	v.Name = prog.Name
	v.Description = prog.Description
	v.CallStack = v.CallStack[:0]
	v.TryStack = v.TryStack[:0]
	v.Regs[RegSP] = int64(v.Config.MemSize)
	v.Fingerprint = siphash.Hash(siphashKey0, siphashKey1, prog.Bytecode)
}

// Register indices, matching isa.Reg but kept here too so callers that only
// import vm (not isa) can address sp/st by name.
const (
	RegSP = 0
	RegST = 1
	RegA  = 2
	RegB  = 3
	RegC  = 4
	RegD  = 5
	RegE  = 6
	RegF  = 7
)
