package compiler

// hostReg is an x86_64 general-purpose register number as it appears in
// ModRM/SIB/REX encoding: rax=0, rcx=1, rdx=2, rbx=3, rsp=4, rbp=5, rsi=6,
// rdi=7, r8..r15=8..15.
type hostReg byte

const (
	rax hostReg = 0
	rcx hostReg = 1
	rdx hostReg = 2
	rbx hostReg = 3
	rsp hostReg = 4
	rbp hostReg = 5
	rsi hostReg = 6
	rdi hostReg = 7
	r8  hostReg = 8
	r9  hostReg = 9
	r10 hostReg = 10
	r11 hostReg = 11
	r12 hostReg = 12
	r13 hostReg = 13
	r14 hostReg = 14
	r15 hostReg = 15
)

// soilToHost is the fixed register mapping spec.md §4.4.2 assigns: Soil's
// sp/st/a..f each live in one dedicated host register for the
// lifetime of a translated run, so no instruction ever needs to spill one to
// keep another alive. rbp doubles as the linear memory base pointer and rbx
// as the *vm.Vm pointer; neither is a Soil register target.
var soilToHost = [8]hostReg{
	0: r8,  // sp
	1: r9,  // st
	2: r10, // a
	3: r11, // b
	4: r12, // c
	5: r13, // d
	6: r14, // e
	7: r15, // f
}

// memBaseReg holds the address of Vm.Mem[0] for the duration of a run.
const memBaseReg = rbp

// vmReg holds the *vm.Vm pointer for the duration of a run, used by the
// call/ret/syscall/trystart/tryend/panic thunks to reach Go-side state.
const vmReg = rbx

// scratch1/scratch2 are free for instruction sequences to use as temporaries;
// they never hold a live Soil register across an instruction boundary.
const (
	scratch1 = rax
	scratch2 = rcx
)
