package compiler

// nativecall transfers control to codeSegment (the start of a translated
// run's machine code) with vmPtr already placed in vmReg (rbx), per
// regmap.go's register convention. It returns only once the generated code
// reaches its epilogue and executes RET, at which point the caller should
// inspect the Vm's Exited/PendingPanic/PendingReenter fields to see why.
//
// This mirrors how wazero's own compiler engine enters JIT'd code: a tiny
// fixed-address asm function (nativecall_amd64.s) that the Go runtime calls
// normally, which then jumps straight into dynamically generated bytes
// still running on the same goroutine stack -- so the generated code can
// safely call back into Go (via compilerGlueEntry) without needing its own
// stack-growth prologue, the same way wazero's generated functions call
// back into host Go functions.
func nativecall(codeSegment, vmPtr uintptr)
