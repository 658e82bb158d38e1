package jail

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"jailcore/config"
	"jailcore/logging"
)

// Distinguished status values returned from Wait, outside the 0-255 range
// an ordinary exit code or 128+signal can take.
const (
	ErrJail = 1000 + iota // target was killed by SIGSYS
	ErrInit               // the init supervisor itself reports the failure
)

// Result is what Wait returns: a classified exit status plus any
// resource-usage metadata the supervisor collected.
type Result struct {
	Status      int
	Signal      int
	UserTimeUS  int64
	WallTimeUS  int64
	MaxRSSBytes int64
}

// Supervise runs as the PID-namespace init: it reaps every descendant via
// wait4 until none remain, tracks the root child's (rootPID's) outcome
// specifically, enforces an optional wall-clock timeout, and on exit
// writes metadata and classifies the result. It never returns; it exits
// the process directly, mirroring the "init _exit(status)" contract.
func Supervise(rootPID int, cfg *config.Config) {
	start := time.Now()

	overrideSignal := -1
	var rootStatus int
	var rootSignal int = -1
	rootReaped := false
	var rootUsage unix.Rusage

	if cfg.MetaFileSet {
		// CLOCK_REALTIME sample already implicit in start; recorded at
		// write time below via elapsed wall time instead.
		_ = start
	}

	sigalrm := make(chan os.Signal, 1)
	sigterm := make(chan os.Signal, 1)
	if cfg.TimeLimitSet {
		signal.Notify(sigalrm, syscall.SIGALRM)
		go func() {
			<-sigalrm
			overrideSignal = int(syscall.SIGXCPU)
			unix.Kill(-rootPID, syscall.SIGKILL)
		}()
		seconds := (cfg.CPUTimeMS + 1999) / 1000
		unix.Alarm(uint(seconds))
	}

	signal.Notify(sigterm, syscall.SIGTERM)
	go func() {
		<-sigterm
		finish(cfg, start, overrideSignal, rootStatus, rootSignal, rootReaped, rootUsage)
	}()

	for {
		var ws unix.WaitStatus
		var usage unix.Rusage
		pid, err := unix.Wait4(-1, &ws, 0, &usage)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			break
		}
		if pid == rootPID {
			rootReaped = true
			rootUsage = usage
			if ws.Exited() {
				rootStatus = ws.ExitStatus()
				rootSignal = -1
			} else if ws.Signaled() {
				rootSignal = int(ws.Signal())
				rootStatus = 0
			}
		}
		if pid <= 0 {
			break
		}
	}

	finish(cfg, start, overrideSignal, rootStatus, rootSignal, rootReaped, rootUsage)
}

// classifyOutcome turns the reap loop's raw observations into the
// (signal, status) pair Supervise exits with. overrideSignal >= 0 means the
// wall-clock timeout fired and pre-empts whatever the reap loop saw.
func classifyOutcome(overrideSignal, rootStatus, rootSignal int, rootReaped bool) (signalOut, statusOut int) {
	switch {
	case overrideSignal >= 0:
		return overrideSignal, ErrInit
	case rootReaped && rootSignal < 0:
		return -1, rootStatus
	case rootReaped && rootSignal == int(syscall.SIGSYS):
		return int(syscall.SIGSYS), ErrJail
	case rootReaped && rootSignal >= 0:
		return rootSignal, ErrInit
	default:
		return -1, ErrInit
	}
}

func finish(cfg *config.Config, start time.Time, overrideSignal, rootStatus, rootSignal int, rootReaped bool, usage unix.Rusage) {
	elapsed := time.Since(start)

	signalOut, statusOut := classifyOutcome(overrideSignal, rootStatus, rootSignal, rootReaped)

	if cfg.MetaFileSet && cfg.MetaFile != nil {
		writeMetadata(cfg.MetaFile, usage, elapsed, signalOut, statusOut)
		cfg.MetaFile.Close()
	}

	if signalOut == int(syscall.SIGSYS) {
		logging.Default().Warn("illegal syscall")
	}

	os.Exit(statusOut)
}

func writeMetadata(f *os.File, usage unix.Rusage, elapsed time.Duration, signalOut, statusOut int) {
	userUS := usage.Utime.Sec*1_000_000 + int64(usage.Utime.Usec)
	fmt.Fprintf(f, "time:%d\n", userUS)
	fmt.Fprintf(f, "time-wall:%d\n", elapsed.Microseconds())
	fmt.Fprintf(f, "mem:%d\n", usage.Maxrss*1024)
	if signalOut >= 0 {
		fmt.Fprintf(f, "signal:%d\n", signalOut)
	} else {
		fmt.Fprintf(f, "status:%d\n", statusOut)
	}
}
