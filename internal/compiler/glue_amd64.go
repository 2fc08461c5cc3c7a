package compiler

import (
	"reflect"
)

// compilerGlueEntry is implemented in glue_amd64.s. It's the one fixed
// address generated code ever calls directly: the JIT'd function for
// call/ret/syscall/trystart/tryend/panic/fault sites loads vmReg (BX),
// the registry index (DI), the dispatchOp (CX), and up to two operand
// words (DX, SI) into a small set of scratch registers and calls this
// entry, which forwards them to dispatchImpl using a normal Go call and
// hands the (status, targetMC) result back in AX/DX.
//
// Declaring it as a Go function with no body lets the Go toolchain treat
// glue_amd64.s's definition as its implementation; compilerGlueEntryAddr
// recovers its entry address the same way syscall and runtime packages do
// for asm-only functions, since there's no portable way to spell
// "address of an asm symbol" directly in Go source.
func compilerGlueEntry()

var compilerGlueEntryAddr = reflect.ValueOf(compilerGlueEntry).Pointer()
