package linux

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"jailcore/config"
	jerrors "jailcore/errors"
)

// ITIMER_REAL selects the wall-clock interval timer, which delivers
// SIGALRM; golang.org/x/sys/unix does not wrap setitimer directly.
const ITIMER_REAL = 0

// timeval and itimerval mirror the kernel's struct timeval/itimerval layout
// for the raw setitimer syscall.
type timeval struct {
	Sec  int64
	Usec int64
}

type itimerval struct {
	Interval timeval
	Value    timeval
}

// ApplyRlimits sets RLIMIT_AS, RLIMIT_FSIZE (plus RLIMIT_CORE=0 when an
// output limit is requested) and RLIMIT_STACK directly from the config,
// and derives RLIMIT_CPU plus a finer-grained interval timer from the
// millisecond time limit. Called only on the static-target path; on the
// dynamic path these limits are not applied.
func ApplyRlimits(c *config.Config) error {
	if c.MemoryLimitSet {
		lim := unix.Rlimit{Cur: c.MemoryBytes, Max: c.MemoryBytes}
		if err := unix.Setrlimit(unix.RLIMIT_AS, &lim); err != nil {
			return jerrors.Wrap(err, jerrors.KernelRefused, "setrlimit(RLIMIT_AS)")
		}
	}

	if c.OutputLimitSet {
		lim := unix.Rlimit{Cur: c.OutputBytes, Max: c.OutputBytes}
		if err := unix.Setrlimit(unix.RLIMIT_FSIZE, &lim); err != nil {
			return jerrors.Wrap(err, jerrors.KernelRefused, "setrlimit(RLIMIT_FSIZE)")
		}
		core := unix.Rlimit{Cur: 0, Max: 0}
		if err := unix.Setrlimit(unix.RLIMIT_CORE, &core); err != nil {
			return jerrors.Wrap(err, jerrors.KernelRefused, "setrlimit(RLIMIT_CORE)")
		}
	}

	if c.StackLimitSet {
		lim := unix.Rlimit{Cur: c.StackBytes, Max: c.StackBytes}
		if err := unix.Setrlimit(unix.RLIMIT_STACK, &lim); err != nil {
			return jerrors.Wrap(err, jerrors.KernelRefused, "setrlimit(RLIMIT_STACK)")
		}
	}

	if c.TimeLimitSet {
		soft := (c.CPUTimeMS + 999) / 1000
		lim := unix.Rlimit{Cur: soft, Max: soft + 1}
		if err := unix.Setrlimit(unix.RLIMIT_CPU, &lim); err != nil {
			return jerrors.Wrap(err, jerrors.KernelRefused, "setrlimit(RLIMIT_CPU)")
		}
		if err := armIntervalTimer(c.CPUTimeMS); err != nil {
			return err
		}
	}

	return nil
}

// armIntervalTimer sets a one-shot ITIMER_REAL for ms milliseconds, a
// finer-grained stop than RLIMIT_CPU's whole-second granularity.
func armIntervalTimer(ms uint64) error {
	usec := int64(ms) * 1000
	val := itimerval{
		Value: timeval{Sec: usec / 1000000, Usec: usec % 1000000},
	}
	_, _, errno := syscall.Syscall(syscall.SYS_SETITIMER,
		uintptr(ITIMER_REAL),
		uintptr(unsafe.Pointer(&val)),
		0)
	if errno != 0 {
		return jerrors.Wrap(errno, jerrors.KernelRefused, "setitimer(ITIMER_REAL)")
	}
	return nil
}
