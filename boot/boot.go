// Package boot runs the Android boot sequence: decide the mode from the
// control message, load the matching image and work out where the kernel,
// ramdisk and device tree are and what the kernel is told.
package boot

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/c35s/aboot/abootimg"
	"github.com/c35s/aboot/blk"
	"github.com/c35s/aboot/bootctl"
	"github.com/c35s/aboot/cmdline"
	"github.com/c35s/aboot/config"
	"github.com/c35s/aboot/mem"
	"github.com/dustin/go-humanize"
)

var (
	ErrBootMode  = errors.New("boot: can't determine the boot mode")
	ErrLoadImage = errors.New("boot: can't load the boot image")
)

// Sequence is a boot from Device into Window.
type Sequence struct {

	// Device is the boot device.
	Device *blk.Device

	// Table locates the partitions named in Config.
	Table blk.Table

	// Window is the memory the image is loaded into.
	Window *mem.Window

	// Config gives the partition names, load address, size limit and
	// environment defaults.
	Config config.Config

	// Logger receives diagnostics. If Logger is nil, slog.Default() is used.
	Logger *slog.Logger
}

// Plan is what the sequence hands to the kernel jump.
type Plan struct {
	Mode      bootctl.Mode
	Partition blk.Partition
	Blocks    int    // sectors read
	Size      uint64 // bytes read

	Image *abootimg.Image

	Kernel     abootimg.Region
	KernelAddr uint64 // where the kernel runs

	// Ramdisk is zero if the image has none.
	Ramdisk abootimg.Region

	// FDT is the device tree address, or 0 if there's none.
	FDT uint64

	// Bootargs is the final kernel command line.
	Bootargs string
}

// Run decides the boot mode and loads the image for it.
//
// The mode's arguments are set in the environment bootargs first and the
// image's own command line is appended after them.
func (s *Sequence) Run() (*Plan, error) {
	cfg := s.Config
	log := s.logger()

	args := cmdline.Parse(cfg.Env.Bootargs())

	reader := &bootctl.Reader{
		Device:    s.Device,
		Table:     s.Table,
		Partition: cfg.Misc,
		Logger:    log,
	}

	mode, err := reader.DetermineMode(args)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBootMode, err)
	}

	name := cfg.Boot
	if mode == bootctl.Recovery {
		name = cfg.Recovery
	}

	part, err := find(s.Table, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadImage, err)
	}

	addr := uint64(cfg.LoadAddr)
	loader := &abootimg.Loader{Logger: log}

	n, err := loader.Load(s.Device, part, s.Window, addr, uint64(cfg.MaxSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadImage, err)
	}

	img, err := abootimg.Open(s.Window, addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadImage, err)
	}

	p := &Plan{
		Mode:       mode,
		Partition:  part,
		Blocks:     n,
		Size:       uint64(n) * uint64(s.Device.Sector()),
		Image:      img,
		Kernel:     img.KernelRegion(),
		KernelAddr: img.KernelLoadAddress(),
		Bootargs:   abootimg.AssembleCmdline(&img.Header, args.String()),
	}

	if rd, ok := img.RamdiskRegion(); ok {
		p.Ramdisk = rd
	}

	if fdt, ok := img.FDTAddress(s.Window, cfg.Env.Uint(config.FDTAddrKey), cfg.ResourceDTB); ok {
		p.FDT = fdt
	}

	log.Info("android image loaded",
		"name", img.NameString(),
		"partition", part.Name,
		"blocks", n,
		"kernel", p.Kernel,
		"ramdisk", p.Ramdisk,
		"fdt", fmt.Sprintf("%#x", p.FDT))

	log.Debug("kernel command line", "bootargs", p.Bootargs)

	return p, nil
}

func (s *Sequence) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}

	return slog.Default()
}

func find(t blk.Table, name string) (blk.Partition, error) {
	if t == nil {
		return blk.Partition{}, fmt.Errorf("%w: %s", blk.ErrPartitionNotFound, name)
	}

	return t.Find(name)
}

// Format prints the plan.
func (p *Plan) Format(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 8, 1, ' ', 0)

	fmt.Fprintf(tw, "mode:\t%s\n", p.Mode)
	fmt.Fprintf(tw, "partition:\t%s (%s read)\n", p.Partition, humanize.IBytes(p.Size))
	fmt.Fprintf(tw, "name:\t%s\n", p.Image.NameString())
	fmt.Fprintf(tw, "kernel:\t%v run at %#x\n", p.Kernel, p.KernelAddr)

	if p.Ramdisk.Size != 0 {
		fmt.Fprintf(tw, "ramdisk:\t%v\n", p.Ramdisk)
	}

	if p.FDT != 0 {
		fmt.Fprintf(tw, "fdt:\t%#x\n", p.FDT)
	}

	fmt.Fprintf(tw, "bootargs:\t%s\n", p.Bootargs)

	return tw.Flush()
}
