package compiler

import "sync"

// registry lets the dispatch thunk (thunks.go), which is only reachable by
// address from dynamically generated machine code, find the *Compiled a
// running translation belongs to. The generated code loads a registry
// index from Vm.CompilerRegistryIdx rather than holding a raw Go pointer,
// so the garbage collector never has to reason about pointers living inside
// a byte slice it doesn't scan.
var (
	registryMu sync.Mutex
	registry   []*Compiled
)

func registerCompiled(c *Compiled) int64 {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = append(registry, c)
	return int64(len(registry) - 1)
}

func lookupCompiled(idx int64) *Compiled {
	registryMu.Lock()
	defer registryMu.Unlock()
	return registry[idx]
}

// unregisterCompiled drops a finished run's entry so the registry doesn't
// grow without bound across many `execute` re-entries or many short-lived
// programs in one process.
func unregisterCompiled(idx int64) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[idx] = nil
}
