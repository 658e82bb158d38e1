package cmd

import (
	"github.com/spf13/cobra"

	"jailcore/jail"
)

// resolveCmd is a debugging aid for the path resolver: given the same
// chroot/bind flags as run, it prints the host-side path an in-jail
// path would resolve to, without launching anything.
var resolveCmd = &cobra.Command{
	Use:   "resolve PATH",
	Short: "Resolve an in-jail path to its host-side path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := buildConfigFromFlags()
		if err != nil {
			return err
		}
		host, err := jail.Resolve(cfg, args[0])
		if err != nil {
			return err
		}
		cmd.Println(host)
		return nil
	},
}

func init() {
	resolveCmd.Flags().StringVar(&runChroot, "chroot", "", "chroot directory")
	resolveCmd.Flags().StringVar(&runChdir, "chdir", "", "post-chroot chdir directory")
	resolveCmd.Flags().StringArrayVar(&runBinds, "bind", nil, "src:dest[:rw] bind mount, repeatable")
	rootCmd.AddCommand(resolveCmd)
}
