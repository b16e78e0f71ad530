package abootimg

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
)

// Format prints the header fields in the style of the bootloader's image listing.
func (h *Header) Format(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 8, 1, ' ', 0)

	a, b, c := h.Version()
	year, month := h.PatchLevel()

	fmt.Fprintf(tw, "   kernel size:\t%#x (%s)\n", h.KernelSize, humanize.IBytes(uint64(h.KernelSize)))
	fmt.Fprintf(tw, "   kernel address:\t%#x\n", h.KernelAddr)
	fmt.Fprintf(tw, "   ramdisk size:\t%#x (%s)\n", h.RamdiskSize, humanize.IBytes(uint64(h.RamdiskSize)))
	fmt.Fprintf(tw, "   ramdisk address:\t%#x\n", h.RamdiskAddr)
	fmt.Fprintf(tw, "   second size:\t%#x (%s)\n", h.SecondSize, humanize.IBytes(uint64(h.SecondSize)))
	fmt.Fprintf(tw, "   second address:\t%#x\n", h.SecondAddr)
	fmt.Fprintf(tw, "   tags address:\t%#x\n", h.TagsAddr)
	fmt.Fprintf(tw, "   page size:\t%#x\n", h.PageSize)
	fmt.Fprintf(tw, "   os_version:\t%#x (ver: %d.%d.%d, level: %d.%02d)\n", h.OSVersion, a, b, c, year, month)
	fmt.Fprintf(tw, "   name:\t%s\n", h.NameString())
	fmt.Fprintf(tw, "   cmdline:\t%s\n", h.CmdlineString())

	if extra := h.ExtraCmdlineString(); extra != "" {
		fmt.Fprintf(tw, "   extra cmdline:\t%s\n", extra)
	}

	return tw.Flush()
}
