// Package abootimg loads Android boot images from a partition into memory and
// locates the kernel, ramdisk and device tree inside them.
//
// An image is a header page followed by the kernel, the ramdisk and the
// second-stage blob, each starting on a page boundary:
//
//	+-----------------+
//	| header          | 1 page
//	+-----------------+
//	| kernel          | n pages
//	+-----------------+
//	| ramdisk         | m pages
//	+-----------------+
//	| second stage    | o pages
//	+-----------------+
package abootimg

import "fmt"

// LegacyKernelAddr is the kernel load address every Android image tool
// writes by default. An image carrying it is run in place.
const LegacyKernelAddr = 0x10008000

// Region is a range of physical memory.
type Region struct {
	Addr uint64
	Size uint64
}

// End returns the first address past the region.
func (r Region) End() uint64 {
	return r.Addr + r.Size
}

func (r Region) String() string {
	return fmt.Sprintf("%#x+%#x", r.Addr, r.Size)
}

// Image is a boot image whose header lives at physical address Base.
type Image struct {
	Header
	Base uint64
}

// AlignUp rounds n up to a multiple of page, which must be a power of two.
// Every layout computation uses it.
func AlignUp(n, page uint64) uint64 {
	if page == 0 {
		return n
	}

	return (n + page - 1) &^ (page - 1)
}

func (img *Image) align(n uint32) uint64 {
	return AlignUp(uint64(n), uint64(img.PageSize))
}

// EndAddress returns the first address past the image: the header page plus
// the page-aligned kernel, ramdisk and second stage.
func (img *Image) EndAddress() uint64 {
	return img.Base + uint64(img.PageSize) +
		img.align(img.KernelSize) +
		img.align(img.RamdiskSize) +
		img.align(img.SecondSize)
}

// KernelRegion returns the kernel, which follows the header page. It's
// returned even if the kernel is empty.
func (img *Image) KernelRegion() Region {
	return Region{
		Addr: img.Base + uint64(img.PageSize),
		Size: uint64(img.KernelSize),
	}
}

// RamdiskRegion returns the ramdisk, or false if the image has none.
func (img *Image) RamdiskRegion() (Region, bool) {
	if img.RamdiskSize == 0 {
		return Region{}, false
	}

	return Region{
		Addr: img.Base + uint64(img.PageSize) + img.align(img.KernelSize),
		Size: uint64(img.RamdiskSize),
	}, true
}

// SecondRegion returns the second-stage blob, or false if the image has none.
func (img *Image) SecondRegion() (Region, bool) {
	if img.SecondSize == 0 {
		return Region{}, false
	}

	return Region{
		Addr: img.Base + uint64(img.PageSize) + img.align(img.KernelSize) + img.align(img.RamdiskSize),
		Size: uint64(img.SecondSize),
	}, true
}

// KernelLoadAddress returns where the kernel should run. The legacy default
// address means "in place", i.e. where KernelRegion put it.
func (img *Image) KernelLoadAddress() uint64 {
	if img.KernelAddr == LegacyKernelAddr {
		return img.KernelRegion().Addr
	}

	return uint64(img.KernelAddr)
}

// AssembleCmdline returns bootargs followed by the image's embedded command
// line, separated by a single space. Either may be empty; bootargs is never
// dropped or rewritten.
func AssembleCmdline(h *Header, bootargs string) string {
	cmdline := h.CmdlineString()

	switch {
	case cmdline == "":
		return bootargs
	case bootargs == "":
		return cmdline
	default:
		return bootargs + " " + cmdline
	}
}
