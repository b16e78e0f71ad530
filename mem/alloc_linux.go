//go:build linux

package mem

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// New maps size bytes of anonymous memory at physical address base. The size
// must be a multiple of the host page size. Close unmaps it.
func New(base uint64, size int) (*Window, error) {
	if pgsz := os.Getpagesize(); size <= 0 || size%pgsz != 0 {
		return nil, fmt.Errorf("%w: size %d isn't a positive multiple of the host page size (%d)", ErrAlloc, size, pgsz)
	}

	b, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_NORESERVE)

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAlloc, err)
	}

	return &Window{Base: base, Bytes: b, unmap: unix.Munmap}, nil
}
