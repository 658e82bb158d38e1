package cmd

import (
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	jerrors "jailcore/errors"
)

// killCmd sends SIGTERM once to a previously recorded init PID, mirroring
// minijail_kill: signal, then wait once, without re-signalling.
var killCmd = &cobra.Command{
	Use:   "kill INITPID",
	Short: "Send SIGTERM to a jail's init PID and wait for it to exit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := strconv.Atoi(args[0])
		if err != nil {
			return jerrors.Wrap(err, jerrors.InvalidArgument, "kill")
		}
		if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
			return jerrors.Wrap(err, jerrors.KernelRefused, "kill")
		}
		var ws syscall.WaitStatus
		if _, err := syscall.Wait4(pid, &ws, 0, nil); err != nil {
			return jerrors.Wrap(err, jerrors.KernelRefused, "kill wait")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(killCmd)
}
