package abootimg

import (
	"encoding/binary"

	"github.com/c35s/aboot/fdt"
	"github.com/c35s/aboot/mem"
)

// SelectFDT picks the device tree to boot with. A valid blob already resident
// at scratch wins over the one embedded in the image at embedded. A scratch
// address of 0 means there's no candidate.
func SelectFDT(w *mem.Window, embedded, scratch uint64) uint64 {
	if scratch != 0 && ResidentFDT(w, scratch) {
		return scratch
	}

	return embedded
}

// ResidentFDT reports whether a valid FDT, header and body, lies in w at addr.
func ResidentFDT(w *mem.Window, addr uint64) bool {
	hdr, err := w.Slice(addr, fdt.HeaderSize)
	if err != nil {
		return false
	}

	if fdt.CheckHeader(hdr) != nil {
		return false
	}

	return w.Contains(addr, uint64(binary.BigEndian.Uint32(hdr[4:8])))
}

// FDTAddress returns the device tree address to boot with, or false if the
// image has no second stage. A second stage that's a resource image is
// searched for the file named resource and the address points at it.
// A valid resident blob at scratch overrides the embedded one.
func (img *Image) FDTAddress(w *mem.Window, scratch uint64, resource string) (uint64, bool) {
	second, ok := img.SecondRegion()
	if !ok {
		return 0, false
	}

	embedded := second.Addr
	if blob, err := w.Slice(second.Addr, second.Size); err == nil {
		if off, ok := ResourceFileOffset(blob, resource); ok {
			embedded += off
		}
	}

	return SelectFDT(w, embedded, scratch), true
}
