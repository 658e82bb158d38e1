package jail

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strconv"
	"syscall"

	"jailcore/config"
	"jailcore/linux"
	"jailcore/logging"
)

// ConfigFDEnv names the environment variable carrying the config pipe's
// read-end file descriptor, inherited by the re-exec'd entry process.
const ConfigFDEnv = "JAILCORE_CONFIG_FD"

// PreloadEnv is the library-injection directive the dynamic-target path
// saves, augments for the child, and restores in the parent afterward.
const PreloadEnv = "LD_PRELOAD"

// Entry is the body of the re-exec'd "entry" subcommand: it reads the
// marshalled configuration from the inherited pipe fd, then either
// becomes PID-namespace init (forking the actual target as its
// grandchild) or runs the privilege-drop pipeline and execs directly.
//
// It does not return on any successful path.
func Entry(target string, argv []string, static bool) {
	cfg, err := readConfigFromEnv()
	if err != nil {
		os.Exit(ErrInit)
	}

	if cfg.PIDs {
		runAsInit(cfg, target, argv, static)
		return
	}

	sync := syncPipeFromEnv()
	if err := ApplyPrivilegeDropPipeline(cfg, static); err != nil {
		logging.Default().Error("privilege-drop pipeline failed", "error", err)
		if sync != nil {
			sync.Write([]byte(err.Error()))
			sync.Close()
		}
		os.Exit(ErrInit)
	}
	if sync != nil {
		sync.Write([]byte{0})
		sync.Close()
	}
	execTarget(target, argv)
}

// syncPipeFromEnv reconstructs the setup sync pipe's write end the parent
// inherited into this process, if one was wired (the non-namespaced path
// only; see SyncFDEnv).
func syncPipeFromEnv() *os.File {
	fdStr := os.Getenv(SyncFDEnv)
	if fdStr == "" {
		return nil
	}
	fd, err := strconv.Atoi(fdStr)
	if err != nil {
		return nil
	}
	return os.NewFile(uintptr(fd), "syncpipe-child")
}

// runAsInit forks the real target as a grandchild (via a second self
// re-exec, mirroring the outer-child/inner-grandchild split of a
// PID-namespace clone) and runs the init supervisor in this process.
func runAsInit(cfg *config.Config, target string, argv []string, static bool) {
	exe, err := os.Executable()
	if err != nil {
		os.Exit(ErrInit)
	}

	childCfg := cfg.Clone()
	childCfg.PIDs = false
	childCfg.MetaFileSet = false

	r, w, err := os.Pipe()
	if err != nil {
		os.Exit(ErrInit)
	}

	marker := "__jail-entry__"
	if static {
		marker = "__jail-entry-static__"
	}

	attr := &os.ProcAttr{
		Files: append([]*os.File{os.Stdin, os.Stdout, os.Stderr}, r),
		Env:   append(os.Environ(), envWithFD(3)),
	}
	proc, err := os.StartProcess(exe, append([]string{exe, marker, target}, argv...), attr)
	if err != nil {
		os.Exit(ErrInit)
	}
	r.Close()

	if err := sendConfig(w, childCfg); err != nil {
		proc.Kill()
	}
	w.Close()

	Supervise(proc.Pid, cfg)
}

func envWithFD(fd uintptr) string {
	return fmt.Sprintf("%s=%d", ConfigFDEnv, fd)
}

// readConfigFromEnv reads the marshalled configuration from the pipe fd
// named by ConfigFDEnv, which os.StartProcess inherited into this process
// via ExtraFiles/attr.Files.
func readConfigFromEnv() (*config.Config, error) {
	fdStr := os.Getenv(ConfigFDEnv)
	fd, err := strconv.Atoi(fdStr)
	if err != nil {
		return nil, err
	}
	f := os.NewFile(uintptr(fd), "configpipe")
	defer f.Close()

	var lenBuf [8]byte
	if _, err := io.ReadFull(f, lenBuf[:]); err != nil {
		return nil, err
	}
	size := binary.LittleEndian.Uint64(lenBuf[:])

	rest := make([]byte, size-8)
	if _, err := io.ReadFull(f, rest); err != nil {
		return nil, err
	}

	full := append(lenBuf[:], rest...)
	cfg, err := config.Unmarshal(full)
	if err != nil {
		return nil, err
	}

	if cfg.MetaFileSet {
		if metaFD, mErr := strconv.Atoi(os.Getenv(MetaFileFDEnv)); mErr == nil {
			cfg.MetaFile = os.NewFile(uintptr(metaFD), "metafile")
		} else {
			cfg.MetaFileSet = false
		}
	}

	return cfg, nil
}

// sendConfig marshals cfg and writes it whole to w, the write end of a
// config pipe whose read end the child inherited.
func sendConfig(w *os.File, cfg *config.Config) error {
	data, err := config.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func execTarget(target string, argv []string) {
	full := append([]string{target}, argv...)
	if err := syscall.Exec(target, full, os.Environ()); err != nil {
		os.Exit(ErrInit)
	}
}

// ApplyPrivilegeDropPipeline runs C3 through C5/C6 in the ordering
// contract: mounts, then (with caps) keep-caps/securebits, then either
// {drop ugid → drop caps → seccomp filter} when no_new_privs is set, or
// {seccomp filter → drop ugid → drop caps} otherwise, then strict
// seccomp last, then (on the static path) rlimits.
func ApplyPrivilegeDropPipeline(cfg *config.Config, static bool) error {
	if err := linux.ApplyMounts(cfg); err != nil {
		return err
	}

	if cfg.CapsSet {
		if err := linux.SetKeepCaps(); err != nil {
			return err
		}
	}

	if cfg.NoNewPrivs {
		if err := linux.SetNoNewPrivs(); err != nil {
			return err
		}
	}

	dropCreds := func() error {
		if err := linux.DropUGID(cfg); err != nil {
			return err
		}
		switch {
		case cfg.CapsSet:
			mask := cfg.Caps
			if cfg.DisablePtrace {
				mask &^= uint64(1) << uint(linux.CAP_SYS_PTRACE)
			}
			if err := linux.DropCaps(mask); err != nil {
				return err
			}
		case cfg.DisablePtrace:
			if err := linux.DropPtraceCap(); err != nil {
				return err
			}
		}
		return nil
	}

	installFilter := func() error {
		if !cfg.SeccompFilter {
			return nil
		}
		if cfg.LogSeccompFilter {
			linux.WatchSigsys(logging.Default())
			logging.Default().Warn("seccomp filter installed with SIGSYS logging enabled")
		}
		return linux.InstallFilter(cfg.Filter)
	}

	if cfg.NoNewPrivs {
		if err := dropCreds(); err != nil {
			return err
		}
		if err := installFilter(); err != nil {
			return err
		}
	} else {
		if err := installFilter(); err != nil {
			return err
		}
		if err := dropCreds(); err != nil {
			return err
		}
	}

	if cfg.SeccompStrict {
		if err := linux.InstallStrict(); err != nil {
			return err
		}
	}

	if static {
		if err := linux.ApplyRlimits(cfg); err != nil {
			return err
		}
	}

	return nil
}
