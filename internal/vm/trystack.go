package vm

// TryScope is a saved unwind target, pushed by trystart and consulted by
// panic. CallDepth and SP are snapshotted at trystart time so that panic
// can restore them exactly (spec.md §3, §7): any call frames created after
// the trystart are discarded, and sp is rolled back to its value at the
// time the try scope was entered. Catch is the bytecode offset execution
// resumes at.
//
// This stands in for a "host call-stack position": neither backend
// recurses into host call frames to execute a Soil `call` (the JIT backend
// routes call/ret through CallPush/CallPop as well, see
// internal/compiler), so a VM call-stack depth is all that's needed to
// undo the frames. Both backends use these same records.
type TryScope struct {
	CallDepth int
	SP        int64
	Catch     uint64
}

// TryPush enters a new try scope.
func (v *Vm) TryPush(scope TryScope) error {
	if len(v.TryStack) >= v.Config.TryStackLimit {
		return &TryStackOverflow{Limit: v.Config.TryStackLimit}
	}
	v.TryStack = append(v.TryStack, scope)
	return nil
}

// TryPop discards the innermost try scope (tryend).
func (v *Vm) TryPop() (TryScope, error) {
	if len(v.TryStack) == 0 {
		return TryScope{}, &TryStackUnderflow{}
	}
	top := v.TryStack[len(v.TryStack)-1]
	v.TryStack = v.TryStack[:len(v.TryStack)-1]
	return top, nil
}

// TryPeek returns the innermost try scope without removing it.
func (v *Vm) TryPeek() (TryScope, bool) {
	if len(v.TryStack) == 0 {
		return TryScope{}, false
	}
	return v.TryStack[len(v.TryStack)-1], true
}

// TryDepth is the number of active try scopes.
func (v *Vm) TryDepth() int { return len(v.TryStack) }
