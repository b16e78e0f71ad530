package main

import (
	"fmt"

	"github.com/c35s/aboot/bootctl"
	"github.com/c35s/aboot/cmdline"
	"github.com/spf13/cobra"
)

var modeCmdFlags struct {
	peek bool
}

var modeCmd = &cobra.Command{
	Use:   "mode",
	Short: "Print the boot mode selected by the misc partition",
	Long: `Print the boot mode and the kernel arguments it sets, the way the
bootloader decides them. A factory message is cleared, as on a real boot,
unless --peek is set.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(!modeCmdFlags.peek)
		if err != nil {
			return err
		}

		defer s.close()

		r := &bootctl.Reader{Device: s.dev, Table: s.table, Partition: s.cfg.Misc}

		if modeCmdFlags.peek {
			msg, err := r.ReadMessage()
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "mode:\t%s\ncommand:\t%q\nrecovery:\t%q\n", msg.Mode(), msg.CommandString(), msg.RecoveryString())
			return nil
		}

		bootargs := cmdline.Parse(s.cfg.Env.Bootargs())

		mode, err := r.DetermineMode(bootargs)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "mode:\t%s\nbootargs:\t%s\n", mode, bootargs)
		return nil
	},
}

var setModeCmdFlags struct {
	recovery string
}

var setModeCmd = &cobra.Command{
	Use:       "set-mode normal|recovery|factory",
	Short:     "Arm a boot mode in the misc partition",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{bootctl.Normal.String(), bootctl.Recovery.String(), bootctl.Factory.String()},
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := bootctl.ParseMode(args[0])
		if err != nil {
			return err
		}

		s, err := openSession(true)
		if err != nil {
			return err
		}

		defer s.close()

		msg := new(bootctl.Message)
		if err := msg.SetCommand(mode.Command()); err != nil {
			return err
		}

		if err := msg.SetRecovery(setModeCmdFlags.recovery); err != nil {
			return err
		}

		w := &bootctl.Writer{Device: s.dev, Table: s.table, Partition: s.cfg.Misc}
		return w.WriteMessage(msg)
	},
}

func init() {
	modeCmd.Flags().BoolVar(&modeCmdFlags.peek, "peek", false, "read the message without acting on it")
	setModeCmd.Flags().StringVar(&setModeCmdFlags.recovery, "recovery-args", "", "set the recovery field, e.g. \"recovery\\n--wipe_data\"")

	rootCmd.AddCommand(modeCmd)
	rootCmd.AddCommand(setModeCmd)
}
