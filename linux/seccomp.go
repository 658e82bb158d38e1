// Package linux provides seccomp installation.
package linux

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"unsafe"

	"jailcore/config"
	jerrors "jailcore/errors"
	"jailcore/logging"
)

// Seccomp constants.
const (
	SECCOMP_MODE_STRICT = 1
	SECCOMP_MODE_FILTER = 2

	SECCOMP_RET_KILL_PROCESS = 0x80000000
	SECCOMP_RET_KILL_THREAD  = 0x00000000
	SECCOMP_RET_TRAP         = 0x00030000
	SECCOMP_RET_ERRNO        = 0x00050000
	SECCOMP_RET_TRACE        = 0x7ff00000
	SECCOMP_RET_LOG          = 0x7ffc0000
	SECCOMP_RET_ALLOW        = 0x7fff0000

	PR_SET_NO_NEW_PRIVS = 38
	PR_SET_SECCOMP      = 22
)

// sockFprog is the BPF program structure passed to PR_SET_SECCOMP.
type sockFprog struct {
	Len    uint16
	_      [6]byte // padding to match the kernel's struct sock_fprog layout
	Filter *sockFilter
}

// sockFilter is a single BPF instruction; identical layout to
// config.BPFInstruction, kept as a distinct type since it crosses into
// unsafe.Pointer territory and shouldn't alias the config package's type.
type sockFilter struct {
	Code uint16
	Jt   uint8
	Jf   uint8
	K    uint32
}

// SetNoNewPrivs sets the no_new_privs process bit. Required before
// installing a filter-mode seccomp program as an unprivileged process.
func SetNoNewPrivs() error {
	_, _, errno := syscall.Syscall(syscall.SYS_PRCTL, PR_SET_NO_NEW_PRIVS, 1, 0)
	if errno != 0 {
		return jerrors.Wrap(errno, jerrors.KernelRefused, "prctl(PR_SET_NO_NEW_PRIVS)")
	}
	return nil
}

// InstallFilter installs a pre-compiled BPF program via filter-mode
// seccomp. Compiling the policy into instructions is the external
// collaborator's job; this only installs the result.
func InstallFilter(filter []config.BPFInstruction) error {
	if len(filter) == 0 {
		return jerrors.New(jerrors.InvalidArgument, "install_filter", "empty filter program")
	}

	native := make([]sockFilter, len(filter))
	for i, ins := range filter {
		native[i] = sockFilter{Code: ins.Code, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}

	prog := sockFprog{
		Len:    uint16(len(native)),
		Filter: &native[0],
	}

	_, _, errno := syscall.Syscall(syscall.SYS_PRCTL,
		PR_SET_SECCOMP,
		SECCOMP_MODE_FILTER,
		uintptr(unsafe.Pointer(&prog)))
	if errno != 0 {
		return jerrors.Wrap(errno, jerrors.KernelRefused, "prctl(PR_SET_SECCOMP, filter)")
	}
	return nil
}

// InstallStrict installs strict-mode seccomp, which permits only read,
// write, exit and sigreturn. Must run last of all in the privilege-drop
// pipeline — it forbids nearly every subsequent syscall, including the
// ones needed to unwind a failed setup.
func InstallStrict() error {
	_, _, errno := syscall.Syscall(syscall.SYS_PRCTL, PR_SET_SECCOMP, SECCOMP_MODE_STRICT, 0)
	if errno != 0 {
		return jerrors.Wrap(errno, jerrors.KernelRefused, "prctl(PR_SET_SECCOMP, strict)")
	}
	return nil
}

var sigsysOnce sync.Once

// WatchSigsys installs a SIGSYS handler that logs blocked syscalls instead
// of relying silently on the filter's default kill action. Intended for
// use with a filter whose default/trap action is SECCOMP_RET_TRAP, which
// raises SIGSYS on the offending thread rather than killing it outright.
func WatchSigsys(logger interface{ Warn(string, ...any) }) {
	sigsysOnce.Do(func() {
		ch := make(chan os.Signal, 8)
		signal.Notify(ch, syscall.SIGSYS)
		go func() {
			for range ch {
				logger.Warn("seccomp filter rejected a syscall")
			}
		}()
	})
}

// LogSeccompFilterFailures wires WatchSigsys to the package logger, the
// concrete collaborator spec.md refers to as "install a SIGSYS handler".
func LogSeccompFilterFailures() {
	WatchSigsys(logging.Default())
}
