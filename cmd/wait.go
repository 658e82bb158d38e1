package cmd

import (
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	jerrors "jailcore/errors"
	"jailcore/jail"
)

// waitCmd waits once on a previously recorded init PID without
// signalling it, mirroring minijail_wait.
var waitCmd = &cobra.Command{
	Use:   "wait INITPID",
	Short: "Wait for a jail's init PID to exit and print its classified status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := strconv.Atoi(args[0])
		if err != nil {
			return jerrors.Wrap(err, jerrors.InvalidArgument, "wait")
		}
		var ws syscall.WaitStatus
		if _, err := syscall.Wait4(pid, &ws, 0, nil); err != nil {
			return jerrors.Wrap(err, jerrors.KernelRefused, "wait")
		}

		res := &jail.Result{Signal: -1}
		switch {
		case ws.Exited():
			res.Status = ws.ExitStatus()
		case ws.Signaled() && ws.Signal() == syscall.SIGSYS:
			res.Signal = int(syscall.SIGSYS)
			res.Status = jail.ErrJail
		case ws.Signaled():
			res.Signal = int(ws.Signal())
			res.Status = 128 + int(ws.Signal())
		}
		return reportResult(res)
	},
}

func init() {
	rootCmd.AddCommand(waitCmd)
}
