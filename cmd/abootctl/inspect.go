package main

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/c35s/aboot/abootimg"
	"github.com/c35s/aboot/blk"
	"github.com/c35s/aboot/mem"
	"github.com/c35s/aboot/ramdisk"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var inspectCmdFlags struct {
	ramdisk bool
}

var inspectCmd = &cobra.Command{
	Use:   "inspect [partition...]",
	Short: "Print the Android image headers of partitions",
	Long: `Print the Android image header of each partition, the boot and recovery
partitions by default. With --ramdisk, the images are loaded and their ramdisk
contents listed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(false)
		if err != nil {
			return err
		}

		defer s.close()

		if len(args) == 0 {
			args = []string{s.cfg.Boot, s.cfg.Recovery}
		}

		out := make([]bytes.Buffer, len(args))

		var g errgroup.Group
		for i, name := range args {
			i, name := i, name
			g.Go(func() error {
				return inspect(&out[i], s, name)
			})
		}

		err = g.Wait()

		for i := range out {
			cmd.OutOrStdout().Write(out[i].Bytes())
		}

		return err
	},
}

func inspect(out *bytes.Buffer, s *session, name string) error {
	part, err := s.table.Find(name)
	if err != nil {
		return err
	}

	ss := uint64(s.dev.Sector())
	n := abootimg.AlignUp(abootimg.HeaderSize, ss)

	raw := make([]byte, n)
	if _, err := s.dev.ReadSectors(part.Start, int(n/ss), raw); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	if !abootimg.HasMagic(raw) {
		fmt.Fprintf(out, "%s: no android image\n\n", part)
		return nil
	}

	h := new(abootimg.Header)
	if err := h.UnmarshalBinary(raw); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	if err := h.Validate(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	size := (&abootimg.Image{Header: *h}).EndAddress()
	fmt.Fprintf(out, "%s: android image, %s\n", part, humanize.IBytes(size))

	if err := h.Format(out); err != nil {
		return err
	}

	if inspectCmdFlags.ramdisk && h.RamdiskSize != 0 {
		if err := listRamdisk(out, s.dev, part, abootimg.AlignUp(size, ss)); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	fmt.Fprintln(out)
	return nil
}

// listRamdisk loads the size-byte image in part and lists its ramdisk.
func listRamdisk(out *bytes.Buffer, dev *blk.Device, part blk.Partition, size uint64) error {
	w := mem.FromBytes(0, make([]byte, size))

	if _, err := abootimg.Load(dev, part, w, 0, size); err != nil {
		return err
	}

	img, err := abootimg.Open(w, 0)
	if err != nil {
		return err
	}

	r, _ := img.RamdiskRegion()
	rd, err := w.Slice(r.Addr, r.Size)
	if err != nil {
		return err
	}

	entries, err := ramdisk.List(rd)
	if err != nil {
		return err
	}

	slog.Debug("listed ramdisk", "partition", part.Name, "compression", ramdisk.Detect(rd), "entries", len(entries))

	fmt.Fprintf(out, "   ramdisk (%s):\n", ramdisk.Detect(rd))
	for _, e := range entries {
		fmt.Fprintf(out, "     %s\n", e)
	}

	return nil
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectCmdFlags.ramdisk, "ramdisk", false, "list the ramdisk contents")
	rootCmd.AddCommand(inspectCmd)
}
