package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"jailcore/config"
	"jailcore/jail"
)

var (
	runUID          uint32
	runGID          uint32
	runUser         string
	runGroup        string
	runCapsMask     uint64
	runVFS          bool
	runPIDs         bool
	runNet          bool
	runSeccomp      bool
	runNoNewPrivs   bool
	runFilterPath   string
	runLogFilter    bool
	runInheritGrps  bool
	runChroot       string
	runChdir        string
	runBinds        []string
	runMountTmp     bool
	runReadonlyProc bool
	runStackLimit   uint64
	runTimeLimitMS  uint64
	runOutputLimit  uint64
	runMemoryLimit  uint64
	runMetaFile     string
)

func newRunCommand(static bool) *cobra.Command {
	use := "run TARGET [ARGS...]"
	short := "Build a jail from flags and run TARGET under it (dynamic path)"
	if static {
		use = "run-static TARGET [ARGS...]"
		short = "Build a jail from flags and run TARGET under it (static path)"
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfigFromFlags()
			if err != nil {
				return err
			}

			target := args[0]
			var launch *jail.Jail
			if static {
				launch, err = jail.RunStatic(cfg, target, args[1:])
			} else {
				launch, err = jail.Run(cfg, target, args[1:])
			}
			if err != nil {
				return err
			}

			res, err := launch.Wait()
			if err != nil {
				return err
			}
			return reportResult(res)
		},
	}

	cmd.Flags().Uint32Var(&runUID, "uid", 0, "target UID (0 = unset)")
	cmd.Flags().Uint32Var(&runGID, "gid", 0, "target GID (0 = unset)")
	cmd.Flags().StringVar(&runUser, "user", "", "resolve target UID/GID from this user name")
	cmd.Flags().StringVar(&runGroup, "group", "", "resolve target GID from this group name")
	cmd.Flags().Uint64Var(&runCapsMask, "caps", 0, "64-bit capability mask to retain")
	cmd.Flags().BoolVar(&runVFS, "vfs", false, "enter a new mount namespace")
	cmd.Flags().BoolVar(&runPIDs, "pids", false, "enter a new PID namespace")
	cmd.Flags().BoolVar(&runNet, "net", false, "enter a new network namespace")
	cmd.Flags().BoolVar(&runSeccomp, "seccomp", false, "install strict-mode seccomp")
	cmd.Flags().BoolVar(&runNoNewPrivs, "no-new-privs", false, "set the no_new_privs process bit")
	cmd.Flags().StringVar(&runFilterPath, "seccomp-filter", "", "path to a pre-compiled BPF filter program")
	cmd.Flags().BoolVar(&runLogFilter, "log-seccomp-filter", false, "log syscalls rejected by the BPF filter")
	cmd.Flags().BoolVar(&runInheritGrps, "inherit-usergroups", false, "populate supplementary groups from --user")
	cmd.Flags().StringVar(&runChroot, "chroot", "", "chroot directory")
	cmd.Flags().StringVar(&runChdir, "chdir", "", "post-chroot chdir directory")
	cmd.Flags().StringArrayVar(&runBinds, "bind", nil, "src:dest[:rw] bind mount, repeatable")
	cmd.Flags().BoolVar(&runMountTmp, "mount-tmp", false, "mount an ephemeral tmpfs at /tmp")
	cmd.Flags().BoolVar(&runReadonlyProc, "readonly-proc", false, "remount /proc read-only")
	cmd.Flags().Uint64Var(&runStackLimit, "stack-limit", 0, "RLIMIT_STACK in bytes")
	cmd.Flags().Uint64Var(&runTimeLimitMS, "time-limit", 0, "CPU/wall time limit in milliseconds")
	cmd.Flags().Uint64Var(&runOutputLimit, "output-limit", 0, "RLIMIT_FSIZE in bytes")
	cmd.Flags().Uint64Var(&runMemoryLimit, "memory-limit", 0, "RLIMIT_AS in bytes")
	cmd.Flags().StringVar(&runMetaFile, "meta-file", "", "path to write execution metadata")

	return cmd
}

func buildConfigFromFlags() (*config.Config, error) {
	b := config.New()

	if runUser != "" {
		if err := b.ChangeUser(runUser); err != nil {
			return nil, err
		}
	}
	if runGroup != "" {
		if err := b.ChangeGroup(runGroup); err != nil {
			return nil, err
		}
	}
	if runUID != 0 {
		if err := b.ChangeUID(runUID); err != nil {
			return nil, err
		}
	}
	if runGID != 0 {
		if err := b.ChangeGID(runGID); err != nil {
			return nil, err
		}
	}
	if runCapsMask != 0 {
		if err := b.UseCaps(runCapsMask); err != nil {
			return nil, err
		}
	}
	if runVFS {
		if err := b.NamespaceVFS(); err != nil {
			return nil, err
		}
	}
	if runPIDs {
		if err := b.NamespacePIDs(); err != nil {
			return nil, err
		}
	}
	if runNet {
		if err := b.NamespaceNet(); err != nil {
			return nil, err
		}
	}
	if runSeccomp {
		if err := b.UseSeccomp(); err != nil {
			return nil, err
		}
	}
	if runNoNewPrivs {
		if err := b.NoNewPrivs(); err != nil {
			return nil, err
		}
	}
	if runFilterPath != "" {
		filter, err := loadFilterProgram(runFilterPath)
		if err != nil {
			return nil, err
		}
		if err := b.UseSeccompFilter(filter); err != nil {
			return nil, err
		}
	}
	if runLogFilter {
		if err := b.LogSeccompFilterFailures(); err != nil {
			return nil, err
		}
	}
	if runInheritGrps {
		if err := b.InheritUsergroups(); err != nil {
			return nil, err
		}
	}
	if runChroot != "" {
		if err := b.EnterChroot(runChroot); err != nil {
			return nil, err
		}
	}
	if runChdir != "" {
		if err := b.ChrootChdir(runChdir); err != nil {
			return nil, err
		}
	}
	for _, spec := range runBinds {
		src, dest, writable, err := parseBindSpec(spec)
		if err != nil {
			return nil, err
		}
		if err := b.Bind(src, dest, writable); err != nil {
			return nil, err
		}
	}
	if runMountTmp {
		if err := b.MountTmp(); err != nil {
			return nil, err
		}
	}
	if runReadonlyProc {
		if err := b.RemountReadonly(); err != nil {
			return nil, err
		}
	}
	if runStackLimit != 0 {
		if err := b.StackLimit(runStackLimit); err != nil {
			return nil, err
		}
	}
	if runTimeLimitMS != 0 {
		if err := b.TimeLimit(runTimeLimitMS); err != nil {
			return nil, err
		}
	}
	if runOutputLimit != 0 {
		if err := b.OutputLimit(runOutputLimit); err != nil {
			return nil, err
		}
	}
	if runMemoryLimit != 0 {
		if err := b.MemoryLimit(runMemoryLimit); err != nil {
			return nil, err
		}
	}
	if runMetaFile != "" {
		if err := b.MetaFile(runMetaFile); err != nil {
			return nil, err
		}
	}

	return b.Config(), nil
}

// parseBindSpec parses "src:dest" or "src:dest:rw" into a bind entry;
// writable defaults to false (read-only) unless "rw" is given.
func parseBindSpec(spec string) (src, dest string, writable bool, err error) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) < 2 {
		return "", "", false, &invalidBindSpecError{spec}
	}
	src, dest = parts[0], parts[1]
	if len(parts) == 3 && parts[2] == "rw" {
		writable = true
	}
	return src, dest, writable, nil
}

type invalidBindSpecError struct{ spec string }

func (e *invalidBindSpecError) Error() string {
	return "invalid bind spec (want src:dest[:rw]): " + e.spec
}

func loadFilterProgram(path string) ([]config.BPFInstruction, error) {
	return readFilterFile(path)
}

func reportResult(res *jail.Result) error {
	cmd := rootCmd
	cmd.Printf("exit status: %d\n", res.Status)
	if res.Signal >= 0 {
		cmd.Printf("signal: %d\n", res.Signal)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(newRunCommand(false))
	rootCmd.AddCommand(newRunCommand(true))
}
