// Package platform isolates the one genuinely OS- and architecture-specific
// thing the JIT backend needs: an executable memory mapping to hold
// translated machine code (spec.md §4.4.2). The rest of internal/compiler
// is Go plus its amd64 assembly glue (the *_amd64.s files).
package platform

import "runtime"

// CompilerSupported reports whether the current GOOS/GOARCH combination can
// run the JIT backend. Callers (cmd/soil) fall back to internal/interp when
// this is false.
func CompilerSupported() bool {
	return runtime.GOOS == "linux" && runtime.GOARCH == "amd64"
}
