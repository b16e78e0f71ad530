// Package mem models the physical memory a boot image is loaded into.
package mem

import (
	"errors"
	"fmt"
)

// Window is a contiguous range of physical memory. Bytes[0] lives at
// physical address Base.
type Window struct {
	Base  uint64
	Bytes []byte

	unmap func([]byte) error
}

var (
	ErrAlloc      = errors.New("mem: allocation failed")
	ErrOutOfRange = errors.New("mem: address out of range")
)

// FromBytes returns a window over caller-owned memory.
func FromBytes(base uint64, b []byte) *Window {
	return &Window{Base: base, Bytes: b}
}

// Size returns the size of the window in bytes.
func (w *Window) Size() uint64 {
	return uint64(len(w.Bytes))
}

// End returns the first physical address past the window.
func (w *Window) End() uint64 {
	return w.Base + w.Size()
}

// Contains reports whether [addr, addr+n) lies inside the window.
func (w *Window) Contains(addr, n uint64) bool {
	if w == nil || addr < w.Base {
		return false
	}

	off := addr - w.Base
	return off <= w.Size() && n <= w.Size()-off
}

// Slice returns the n bytes at physical address addr. The slice aliases
// the window; nothing is copied.
func (w *Window) Slice(addr, n uint64) ([]byte, error) {
	if !w.Contains(addr, n) {
		return nil, fmt.Errorf("%w: %#x+%#x", ErrOutOfRange, addr, n)
	}

	off := addr - w.Base
	return w.Bytes[off : off+n : off+n], nil
}

// Close releases memory allocated by New. It's a no-op for FromBytes windows.
func (w *Window) Close() error {
	if w.unmap == nil {
		return nil
	}

	err := w.unmap(w.Bytes)
	w.Bytes = nil
	w.unmap = nil

	return err
}
