package vm

import "encoding/binary"

// checkBounds verifies that [addr, addr+width) lies within memory. Memory
// is MemSize+1 bytes long (the trailing guard byte), but the guard byte may
// only ever be touched by a 1-byte access done explicitly by a syscall
// handler building a null-terminated view, never by bytecode-issued
// load/store — so ordinary accesses are checked against MemSize, not
// len(Mem).
func (v *Vm) checkBounds(addr int64, width int) error {
	if addr < 0 || addr+int64(width) > int64(v.Config.MemSize) {
		return &OutOfMemoryAccess{Address: addr, Width: width, MemSize: v.Config.MemSize}
	}
	return nil
}

// LoadU8 reads one byte at addr.
func (v *Vm) LoadU8(addr int64) (byte, error) {
	if err := v.checkBounds(addr, 1); err != nil {
		return 0, err
	}
	return v.Mem[addr], nil
}

// StoreU8 writes one byte at addr.
func (v *Vm) StoreU8(addr int64, b byte) error {
	if err := v.checkBounds(addr, 1); err != nil {
		return err
	}
	v.Mem[addr] = b
	return nil
}

// LoadU64 reads eight little-endian bytes at addr.
func (v *Vm) LoadU64(addr int64) (uint64, error) {
	if err := v.checkBounds(addr, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(v.Mem[addr : addr+8]), nil
}

// StoreU64 writes eight little-endian bytes at addr.
func (v *Vm) StoreU64(addr int64, val uint64) error {
	if err := v.checkBounds(addr, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(v.Mem[addr:addr+8], val)
	return nil
}

// GuardWriteCString temporarily writes a NUL byte at addr+length (which may
// be the guard byte past MemSize) and returns a function that restores the
// byte that was there before. Syscall handlers use this to build a
// null-terminated view of an in-memory string without copying it
// (spec.md §4.5's note on the guard byte).
func (v *Vm) GuardWriteCString(addr, length int64) (restore func(), err error) {
	end := addr + length
	if end < 0 || end > int64(len(v.Mem))-1 {
		return nil, &OutOfMemoryAccess{Address: end, Width: 1, MemSize: v.Config.MemSize}
	}
	prev := v.Mem[end]
	v.Mem[end] = 0
	return func() { v.Mem[end] = prev }, nil
}

// Reg reads register i (0..7).
func (v *Vm) Reg(i int) int64 { return v.Regs[i] }

// SetReg writes register i (0..7).
func (v *Vm) SetReg(i int, val int64) { v.Regs[i] = val }
