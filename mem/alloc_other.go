//go:build !linux

package mem

import "fmt"

// New allocates size bytes at physical address base from the Go heap.
func New(base uint64, size int) (*Window, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size %d", ErrAlloc, size)
	}

	return &Window{Base: base, Bytes: make([]byte, size)}, nil
}
