package platform

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// MmapCodeSegment copies size bytes of machine code into a fresh anonymous
// mapping and switches it from RW to RX, mirroring the write-then-protect
// sequence spec.md §4.4.2 describes for the JIT's host-code buffer. The
// returned slice aliases the mapping directly; callers must eventually pass
// it to MunmapCodeSegment.
func MmapCodeSegment(code []byte, size int) ([]byte, error) {
	if size == 0 {
		panic("BUG: MmapCodeSegment with zero length")
	}
	mapped, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("platform: mmap: %w", err)
	}
	copy(mapped, code)
	if err := unix.Mprotect(mapped, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		_ = unix.Munmap(mapped)
		return nil, fmt.Errorf("platform: mprotect RX: %w", err)
	}
	return mapped, nil
}

// MunmapCodeSegment releases a mapping returned by MmapCodeSegment.
func MunmapCodeSegment(code []byte) error {
	if len(code) == 0 {
		panic("BUG: MunmapCodeSegment with zero length")
	}
	if err := unix.Munmap(code); err != nil {
		return fmt.Errorf("platform: munmap: %w", err)
	}
	return nil
}
