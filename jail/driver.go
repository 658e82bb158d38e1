// Package jail implements the process orchestration, init supervision,
// and path resolution that sit on top of the linux package's primitives.
package jail

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"jailcore/config"
	jerrors "jailcore/errors"
	"jailcore/linux"
	"jailcore/utils"
)

// MetaFileFDEnv names the environment variable carrying the metadata
// output file's descriptor, when one was requested.
const MetaFileFDEnv = "JAILCORE_META_FD"

// SyncFDEnv names the environment variable carrying the setup sync pipe's
// write end, inherited by the re-exec'd entry process. Only wired on the
// non-namespaced path: once PID-namespace init is involved the classified
// exit status Wait already reports is the richer signal.
const SyncFDEnv = "JAILCORE_SYNC_FD"

// Jail is a running (or exited) jailed process, returned by Run and
// RunStatic and consumed by Wait/Kill.
type Jail struct {
	cmd     *exec.Cmd
	initPID int
	cfg     *config.Config
	killed  bool
}

// Run launches target under the dynamic-target path. No preload directive
// is added to the child's environment, so nothing inside the target
// applies resource limits after execve, and the pipeline does not apply
// them on this path either. Caps are permitted on this path.
func Run(cfg *config.Config, target string, argv []string) (*Jail, error) {
	return run(cfg, target, argv, false)
}

// RunStatic launches target under the static-target path: resource
// limits are applied inline by this process rather than by a preload
// shim, and capabilities are rejected at entry (they require the shim's
// post-exec continuation to be meaningful).
func RunStatic(cfg *config.Config, target string, argv []string) (*Jail, error) {
	if cfg.CapsSet {
		return nil, jerrors.ErrCapsWithStaticTarget
	}
	return run(cfg, target, argv, true)
}

func run(cfg *config.Config, target string, argv []string, static bool) (*Jail, error) {
	cfg.Freeze()

	exe, err := os.Executable()
	if err != nil {
		return nil, jerrors.Wrap(err, jerrors.IOError, "run")
	}

	r, w, err := os.Pipe()
	if err != nil {
		return nil, jerrors.Wrap(err, jerrors.IOError, "run")
	}

	entryArg := "__jail-entry__"
	if static {
		entryArg = "__jail-entry-static__"
	}

	extraFiles := []*os.File{r}
	env := os.Environ()
	env = append(env, envWithFD(3))
	if cfg.MetaFileSet && cfg.MetaFile != nil {
		extraFiles = append(extraFiles, cfg.MetaFile)
		env = append(env, MetaFileFDEnv+"=4")
	}

	var sp *utils.SyncPipe
	if !cfg.PIDs {
		var spErr error
		sp, spErr = utils.NewSyncPipe()
		if spErr != nil {
			r.Close()
			w.Close()
			return nil, jerrors.Wrap(spErr, jerrors.IOError, "run syncpipe")
		}
		syncFD := 3 + len(extraFiles)
		extraFiles = append(extraFiles, sp.ChildFile())
		env = append(env, fmt.Sprintf("%s=%d", SyncFDEnv, syncFD))
	}

	cmd := exec.Command(exe, append([]string{entryArg, target}, argv...)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = extraFiles
	cmd.SysProcAttr = linux.BuildSysProcAttr(cfg)
	cmd.Env = env

	// Save and restore the preload directive around the fork. The child's
	// env above is not augmented with one: it inherits whatever value this
	// process already had.
	preload, hadPreload := os.LookupEnv(PreloadEnv)

	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		if sp != nil {
			sp.Close()
		}
		return nil, jerrors.Wrap(err, jerrors.KernelRefused, "run start")
	}
	r.Close()
	if sp != nil {
		sp.CloseChild()
	}

	if hadPreload {
		os.Setenv(PreloadEnv, preload)
	} else {
		os.Unsetenv(PreloadEnv)
	}

	if err := sendConfig(w, cfg); err != nil {
		w.Close()
		cmd.Process.Kill()
		if sp != nil {
			sp.Close()
		}
		return nil, jerrors.Wrap(err, jerrors.IOError, "run marshal")
	}
	w.Close()

	if sp != nil {
		defer sp.CloseParent()
		if err := sp.WaitWithError(); err != nil {
			cmd.Wait()
			return nil, jerrors.Wrap(err, jerrors.KernelRefused, "run setup")
		}
	}

	return &Jail{cmd: cmd, initPID: cmd.Process.Pid, cfg: cfg}, nil
}

// InitPID returns the PID of the first forked child, which is the
// PID-namespace init when one was requested, or the target itself
// otherwise.
func (j *Jail) InitPID() int {
	return j.initPID
}

// Wait blocks until the jailed process tree exits and returns its
// classified result. It does not signal the process; see Kill.
func (j *Jail) Wait() (*Result, error) {
	err := j.cmd.Wait()

	res := &Result{Signal: -1}
	if j.cfg.PIDs {
		// The outer child ran the init supervisor and reported its own
		// classified exit status as this process's exit status.
		if exitErr, ok := err.(*exec.ExitError); ok {
			classifyFromStatus(res, exitErr.ExitCode())
		} else if err == nil {
			res.Status = 0
		} else {
			return nil, jerrors.Wrap(err, jerrors.KernelRefused, "wait")
		}
		return res, nil
	}

	if err == nil {
		res.Status = 0
		return res, nil
	}
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return nil, jerrors.Wrap(err, jerrors.KernelRefused, "wait")
	}
	ws, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok {
		res.Status = exitErr.ExitCode()
		return res, nil
	}
	switch {
	case ws.Exited():
		res.Status = ws.ExitStatus()
	case ws.Signaled() && ws.Signal() == syscall.SIGSYS:
		res.Signal = int(syscall.SIGSYS)
		res.Status = ErrJail
	case ws.Signaled():
		res.Signal = int(ws.Signal())
		res.Status = 128 + int(ws.Signal())
	}
	return res, nil
}

func classifyFromStatus(res *Result, status int) {
	switch status {
	case ErrJail:
		res.Status = ErrJail
		res.Signal = int(syscall.SIGSYS)
	case ErrInit:
		res.Status = ErrInit
	default:
		res.Status = status
	}
}

// Kill sends SIGTERM to the init PID once and waits once for it to exit,
// mirroring minijail_kill (spec.md §5).
func (j *Jail) Kill() error {
	if j.killed {
		return nil
	}
	j.killed = true
	if j.cmd.Process == nil {
		return jerrors.ErrNoInitProcess
	}
	if err := j.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return jerrors.Wrap(err, jerrors.KernelRefused, "kill")
	}
	j.cmd.Wait()
	return nil
}

// EntryTarget inspects argv for the self-re-exec markers Run/RunStatic
// launch under, returning the jailed target, its argv, and whether this
// is the static-target path. Used by package main to dispatch into
// Entry before any cobra parsing of the jailed target's own flags could
// interfere.
func EntryTarget(args []string) (target string, argv []string, static, ok bool) {
	if len(args) < 2 {
		return "", nil, false, false
	}
	switch args[0] {
	case "__jail-entry__":
		return args[1], args[2:], false, true
	case "__jail-entry-static__":
		return args[1], args[2:], true, true
	}
	return "", nil, false, false
}
