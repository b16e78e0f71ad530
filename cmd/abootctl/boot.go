package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/c35s/aboot/abootimg"
	"github.com/c35s/aboot/boot"
	"github.com/c35s/aboot/mem"
	"github.com/spf13/cobra"
)

var bootCmdFlags struct {
	out string
}

var bootCmd = &cobra.Command{
	Use:   "boot",
	Short: "Run the boot sequence into memory and print what would be jumped to",
	Long: `Decide the boot mode, load the matching image into an anonymous memory
window laid out like the board's RAM, and print the kernel, ramdisk and device
tree addresses and the final kernel command line. With --out, the loaded
pieces are also written to a directory.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(true)
		if err != nil {
			return err
		}

		defer s.close()

		w, err := mem.New(uint64(s.cfg.Memory.Base), int(s.cfg.Memory.Size))
		if err != nil {
			return err
		}

		defer w.Close()

		seq := &boot.Sequence{
			Device: s.dev,
			Table:  s.table,
			Window: w,
			Config: s.cfg,
		}

		plan, err := seq.Run()
		if err != nil {
			return err
		}

		if err := plan.Format(cmd.OutOrStdout()); err != nil {
			return err
		}

		if bootCmdFlags.out != "" {
			return dumpPlan(w, plan, bootCmdFlags.out)
		}

		return nil
	},
}

// dumpPlan writes the kernel, ramdisk and bootargs of plan to dir.
func dumpPlan(w *mem.Window, plan *boot.Plan, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	files := map[string]abootimg.Region{
		"kernel":  plan.Kernel,
		"ramdisk": plan.Ramdisk,
	}

	if second, ok := plan.Image.SecondRegion(); ok {
		files["second"] = second
	}

	for name, r := range files {
		if r.Size == 0 {
			continue
		}

		b, err := w.Slice(r.Addr, r.Size)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}

		if err := os.WriteFile(filepath.Join(dir, name), b, 0644); err != nil {
			return err
		}
	}

	return os.WriteFile(filepath.Join(dir, "bootargs"), []byte(plan.Bootargs+"\n"), 0644)
}

func init() {
	bootCmd.Flags().StringVarP(&bootCmdFlags.out, "out", "o", "", "write the loaded kernel, ramdisk and second stage to `dir`")
	rootCmd.AddCommand(bootCmd)
}
