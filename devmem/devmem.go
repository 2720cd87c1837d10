// Package devmem maps physical memory windows through /dev/mem. It is the
// one piece of the stack that needs a real fd-backed mmap at a caller-given
// offset rather than the anonymous-only mappings gokvm ever needed; the
// mmap idiom itself (open, unix.Mmap, defer Munmap) follows
// tinyrange-cc/internal/hv/kvm/kvm.go's AllocateMemory.
package devmem

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Window is a single mmap of /dev/mem covering [Phys, Phys+len(Bytes)).
type Window struct {
	Phys  uint64
	Bytes []byte
}

// Open maps length bytes of physical memory starting at phys, read-write,
// shared so writes are visible to any other mapping of the same host
// memory (the slice's target CPU, once it starts executing).
func Open(phys, length uint64) (*Window, error) {
	f, err := os.OpenFile("/dev/mem", os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("devmem: open /dev/mem: %w", err)
	}
	defer f.Close()

	mem, err := unix.Mmap(int(f.Fd()), int64(phys), int(length),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("devmem: mmap phys=%#x len=%#x: %w", phys, length, err)
	}

	return &Window{Phys: phys, Bytes: mem}, nil
}

// Close unmaps the window.
func (w *Window) Close() error {
	if w.Bytes == nil {
		return nil
	}

	err := unix.Munmap(w.Bytes)
	w.Bytes = nil

	return err
}
