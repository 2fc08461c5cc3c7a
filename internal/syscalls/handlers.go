package syscalls

import (
	"fmt"
	"io"
	"os"

	"github.com/MarcelGarus/soil-sub000/internal/vm"
)

// fileTable is a tiny per-process file descriptor table. Soil's open_*/read/
// write/close syscalls work in terms of small integer handles; fd 0/1/2 are
// reserved for stdin/stdout/stderr the way a Unix process would see them.
type fileTable struct {
	files map[int64]*os.File
	next  int64
}

var files = &fileTable{
	files: map[int64]*os.File{0: os.Stdin, 1: os.Stdout, 2: os.Stderr},
	next:  3,
}

func (t *fileTable) add(f *os.File) int64 {
	h := t.next
	t.next++
	t.files[h] = f
	return h
}

// cString reads a NUL-terminated string starting at addr out of v's memory.
func cString(v *vm.Vm, addr int64) (string, error) {
	start := addr
	for {
		b, err := v.LoadU8(addr)
		if err != nil {
			return "", err
		}
		if b == 0 {
			return string(v.Mem[start:addr]), nil
		}
		addr++
	}
}

// sysExit implements syscall 0: exit(code). The engines check v.Exited
// after every dispatch and stop running.
func sysExit(v *vm.Vm) (int64, int64) {
	v.Exited = true
	v.ExitCode = int(v.Reg(vm.RegA))
	return 0, 0
}

// sysPrint implements syscall 1: print(ptr, len) to stdout, unbuffered.
func sysPrint(v *vm.Vm) (int64, int64) {
	ptr, n := v.Reg(vm.RegA), v.Reg(vm.RegB)
	os.Stdout.Write(v.Mem[ptr : ptr+n])
	return 0, 0
}

// sysLog implements syscall 2: log(ptr, len), a stderr-tagged diagnostic
// line prefixed with the Vm's ID so a chain of `execute` re-entries can be
// told apart in merged logs.
func sysLog(v *vm.Vm) (int64, int64) {
	ptr, n := v.Reg(vm.RegA), v.Reg(vm.RegB)
	fmt.Fprintf(os.Stderr, "[%s] %s\n", v.ID, v.Mem[ptr:ptr+n])
	return 0, 0
}

// sysCreate implements syscall 3: create(path_ptr) -> fd, creating or
// truncating the named file.
func sysCreate(v *vm.Vm) (int64, int64) {
	path, err := cString(v, v.Reg(vm.RegA))
	if err != nil {
		return -1, 0
	}
	f, err := os.Create(path)
	if err != nil {
		return -1, 0
	}
	return files.add(f), 0
}

// sysOpenReading implements syscall 4: open_reading(path_ptr) -> fd.
func sysOpenReading(v *vm.Vm) (int64, int64) {
	path, err := cString(v, v.Reg(vm.RegA))
	if err != nil {
		return -1, 0
	}
	f, err := os.Open(path)
	if err != nil {
		return -1, 0
	}
	return files.add(f), 0
}

// sysOpenWriting implements syscall 5: open_writing(path_ptr) -> fd,
// appending to an existing file (or creating one).
func sysOpenWriting(v *vm.Vm) (int64, int64) {
	path, err := cString(v, v.Reg(vm.RegA))
	if err != nil {
		return -1, 0
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return -1, 0
	}
	return files.add(f), 0
}

// sysRead implements syscall 6: read(fd, ptr, len) -> bytes read (or -1).
func sysRead(v *vm.Vm) (int64, int64) {
	fd, ptr, n := v.Reg(vm.RegA), v.Reg(vm.RegB), v.Reg(vm.RegC)
	f, ok := files.files[fd]
	if !ok {
		return -1, 0
	}
	got, err := f.Read(v.Mem[ptr : ptr+n])
	if err != nil && err != io.EOF {
		return -1, 0
	}
	return int64(got), 0
}

// sysWrite implements syscall 7: write(fd, ptr, len) -> bytes written (or -1).
func sysWrite(v *vm.Vm) (int64, int64) {
	fd, ptr, n := v.Reg(vm.RegA), v.Reg(vm.RegB), v.Reg(vm.RegC)
	f, ok := files.files[fd]
	if !ok {
		return -1, 0
	}
	got, err := f.Write(v.Mem[ptr : ptr+n])
	if err != nil {
		return -1, 0
	}
	return int64(got), 0
}

// sysClose implements syscall 8: close(fd) -> 0, or -1 on an unknown fd.
func sysClose(v *vm.Vm) (int64, int64) {
	fd := v.Reg(vm.RegA)
	f, ok := files.files[fd]
	if !ok {
		return -1, 0
	}
	delete(files.files, fd)
	if fd > 2 {
		f.Close()
	}
	return 0, 0
}

// sysArgc implements syscall 9: argc() -> number of program arguments.
func sysArgc(v *vm.Vm) (int64, int64) {
	return int64(len(v.Args)), 0
}

// sysArg implements syscall 10: arg(index, ptr, max_len) -> actual length,
// writing the index'th program argument into the caller's buffer.
func sysArg(v *vm.Vm) (int64, int64) {
	idx, ptr, max := v.Reg(vm.RegA), v.Reg(vm.RegB), v.Reg(vm.RegC)
	if idx < 0 || idx >= int64(len(v.Args)) {
		return -1, 0
	}
	s := v.Args[idx]
	n := int64(len(s))
	if n > max {
		n = max
	}
	copy(v.Mem[ptr:ptr+n], s[:n])
	return int64(len(s)), 0
}

// sysReadInput implements syscall 11: read_input(ptr, len) -> bytes read
// from stdin (or -1).
func sysReadInput(v *vm.Vm) (int64, int64) {
	ptr, n := v.Reg(vm.RegA), v.Reg(vm.RegB)
	got, err := os.Stdin.Read(v.Mem[ptr : ptr+n])
	if err != nil && err != io.EOF {
		return -1, 0
	}
	return int64(got), 0
}

// sysUIDimensions implements syscall 13: ui_dimensions() -> (width, height).
// There's no real UI backend here; it reports a fixed terminal-sized canvas
// so programs built against it stay deterministic.
func sysUIDimensions(v *vm.Vm) (int64, int64) {
	return 80, 24
}

// sysUIRender implements syscall 14: ui_render(ptr, len), a stub that
// discards the frame buffer without reading it. Real rendering is out of
// scope; see SPEC_FULL.md §4.5.1.
func sysUIRender(v *vm.Vm) (int64, int64) {
	return 0, 0
}
