package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/c35s/aboot/abootimg"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var packCmdFlags struct {
	kernel     string
	ramdisk    string
	second     string
	dtbs       []string
	name       string
	cmdline    string
	pageSize   uint32
	base       uint32
	osVersion  string
	patchLevel string
	out        string
}

var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Build an Android boot image",
	Long: `Build a version 0 Android boot image from a kernel, an optional ramdisk
and an optional second stage. Inputs may be files or http(s) URLs. Device
trees given with --dtb are wrapped in a resource image used as the second
stage; the first one is stored as rk-kernel.dtb.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := &packCmdFlags

		if f.second != "" && len(f.dtbs) != 0 {
			return fmt.Errorf("--second and --dtb are mutually exclusive")
		}

		spec := abootimg.PackSpec{
			Name:     f.name,
			Cmdline:  f.cmdline,
			PageSize: f.pageSize,
			Base:     f.base,
		}

		var err error
		if spec.Kernel, err = readURL(f.kernel); err != nil {
			return err
		}

		if f.ramdisk != "" {
			if spec.Ramdisk, err = readURL(f.ramdisk); err != nil {
				return err
			}
		}

		if f.second != "" {
			if spec.Second, err = readURL(f.second); err != nil {
				return err
			}
		}

		if len(f.dtbs) != 0 {
			if spec.Second, err = packDTBs(f.dtbs); err != nil {
				return err
			}
		}

		if spec.OSVersion, err = osVersion(f.osVersion, f.patchLevel); err != nil {
			return err
		}

		out, err := os.Create(f.out)
		if err != nil {
			return err
		}

		if err := abootimg.Pack(out, spec); err != nil {
			out.Close()
			return err
		}

		if err := out.Close(); err != nil {
			return err
		}

		info, err := os.Stat(f.out)
		if err != nil {
			return err
		}

		slog.Info("packed android image", "file", f.out, "size", humanize.IBytes(uint64(info.Size())))
		return nil
	},
}

// packDTBs builds a resource image of the device trees at paths.
func packDTBs(paths []string) ([]byte, error) {
	files := make([]abootimg.ResourceFile, len(paths))

	for i, p := range paths {
		data, err := readURL(p)
		if err != nil {
			return nil, err
		}

		files[i] = abootimg.ResourceFile{Name: filepath.Base(p), Data: data}
	}

	files[0].Name = abootimg.DefaultResourceDTB
	return abootimg.PackResource(files)
}

// osVersion parses a version like "9.0.0" and a patch level like "2019-05".
func osVersion(version, level string) (uint32, error) {
	if version == "" && level == "" {
		return 0, nil
	}

	var a, b, c int
	if version != "" {
		if _, err := fmt.Sscanf(version, "%d.%d.%d", &a, &b, &c); err != nil {
			return 0, fmt.Errorf("os version %q: %w", version, err)
		}
	}

	var year, month int
	if level != "" {
		t, err := time.Parse("2006-01", level)
		if err != nil {
			return 0, fmt.Errorf("patch level %q: %w", level, err)
		}

		year, month = t.Year(), int(t.Month())
	}

	return abootimg.EncodeOSVersion(a, b, c, year, month), nil
}

func init() {
	f := packCmd.Flags()
	f.StringVar(&packCmdFlags.kernel, "kernel", "", "read the kernel from `file` or URL")
	f.StringVar(&packCmdFlags.ramdisk, "ramdisk", "", "read the ramdisk from `file` or URL")
	f.StringVar(&packCmdFlags.second, "second", "", "read the second stage from `file` or URL")
	f.StringArrayVar(&packCmdFlags.dtbs, "dtb", nil, "add a device tree to a resource image second stage")
	f.StringVar(&packCmdFlags.name, "name", "", "set the product name")
	f.StringVar(&packCmdFlags.cmdline, "cmdline", "", "set the kernel command line")
	f.Uint32Var(&packCmdFlags.pageSize, "pagesize", abootimg.DefaultPageSize, "set the page size")
	f.Uint32Var(&packCmdFlags.base, "base", abootimg.DefaultBase, "set the base address the load addresses are offsets from")
	f.StringVar(&packCmdFlags.osVersion, "os-version", "", "set the OS version, e.g. 9.0.0")
	f.StringVar(&packCmdFlags.patchLevel, "os-patch-level", "", "set the security patch level, e.g. 2019-05")
	f.StringVarP(&packCmdFlags.out, "output", "o", "boot.img", "write the image to `file`")

	packCmd.MarkFlagRequired("kernel")
	rootCmd.AddCommand(packCmd)
}
