package linux

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"unsafe"

	jerrors "jailcore/errors"
)

// Capability constants (from linux/capability.h)
const (
	CAP_CHOWN              = 0
	CAP_DAC_OVERRIDE       = 1
	CAP_DAC_READ_SEARCH    = 2
	CAP_FOWNER             = 3
	CAP_FSETID             = 4
	CAP_KILL               = 5
	CAP_SETGID             = 6
	CAP_SETUID             = 7
	CAP_SETPCAP            = 8
	CAP_LINUX_IMMUTABLE    = 9
	CAP_NET_BIND_SERVICE   = 10
	CAP_NET_BROADCAST      = 11
	CAP_NET_ADMIN          = 12
	CAP_NET_RAW            = 13
	CAP_IPC_LOCK           = 14
	CAP_IPC_OWNER          = 15
	CAP_SYS_MODULE         = 16
	CAP_SYS_RAWIO          = 17
	CAP_SYS_CHROOT         = 18
	CAP_SYS_PTRACE         = 19
	CAP_SYS_PACCT          = 20
	CAP_SYS_ADMIN          = 21
	CAP_SYS_BOOT           = 22
	CAP_SYS_NICE           = 23
	CAP_SYS_RESOURCE       = 24
	CAP_SYS_TIME           = 25
	CAP_SYS_TTY_CONFIG     = 26
	CAP_MKNOD              = 27
	CAP_LEASE              = 28
	CAP_AUDIT_WRITE        = 29
	CAP_AUDIT_CONTROL      = 30
	CAP_SETFCAP            = 31
	CAP_MAC_OVERRIDE       = 32
	CAP_MAC_ADMIN          = 33
	CAP_SYSLOG             = 34
	CAP_WAKE_ALARM         = 35
	CAP_BLOCK_SUSPEND      = 36
	CAP_AUDIT_READ         = 37
	CAP_PERFMON            = 38
	CAP_BPF                = 39
	CAP_CHECKPOINT_RESTORE = 40
)

var (
	lastCapOnce  sync.Once
	lastCapValue int = 40 // default fallback
)

// getLastCap returns the highest capability supported by the running
// kernel, detected once and cached.
func getLastCap() int {
	lastCapOnce.Do(func() {
		if data, err := os.ReadFile("/proc/sys/kernel/cap_last_cap"); err == nil {
			if val, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil && val >= 0 {
				lastCapValue = val
				return
			}
		}
		for cap := 40; cap <= 63; cap++ {
			ret, _, _ := syscall.Syscall(syscall.SYS_PRCTL, PR_CAPBSET_READ, uintptr(cap), 0)
			if ret == ^uintptr(0) {
				lastCapValue = cap - 1
				return
			}
		}
		lastCapValue = 63
	})
	return lastCapValue
}

// capabilityMap maps capability names to numbers.
var capabilityMap = map[string]int{
	"CAP_CHOWN":              CAP_CHOWN,
	"CAP_DAC_OVERRIDE":       CAP_DAC_OVERRIDE,
	"CAP_DAC_READ_SEARCH":    CAP_DAC_READ_SEARCH,
	"CAP_FOWNER":             CAP_FOWNER,
	"CAP_FSETID":             CAP_FSETID,
	"CAP_KILL":               CAP_KILL,
	"CAP_SETGID":             CAP_SETGID,
	"CAP_SETUID":             CAP_SETUID,
	"CAP_SETPCAP":            CAP_SETPCAP,
	"CAP_LINUX_IMMUTABLE":    CAP_LINUX_IMMUTABLE,
	"CAP_NET_BIND_SERVICE":   CAP_NET_BIND_SERVICE,
	"CAP_NET_BROADCAST":      CAP_NET_BROADCAST,
	"CAP_NET_ADMIN":          CAP_NET_ADMIN,
	"CAP_NET_RAW":            CAP_NET_RAW,
	"CAP_IPC_LOCK":           CAP_IPC_LOCK,
	"CAP_IPC_OWNER":          CAP_IPC_OWNER,
	"CAP_SYS_MODULE":         CAP_SYS_MODULE,
	"CAP_SYS_RAWIO":          CAP_SYS_RAWIO,
	"CAP_SYS_CHROOT":         CAP_SYS_CHROOT,
	"CAP_SYS_PTRACE":         CAP_SYS_PTRACE,
	"CAP_SYS_PACCT":          CAP_SYS_PACCT,
	"CAP_SYS_ADMIN":          CAP_SYS_ADMIN,
	"CAP_SYS_BOOT":           CAP_SYS_BOOT,
	"CAP_SYS_NICE":           CAP_SYS_NICE,
	"CAP_SYS_RESOURCE":       CAP_SYS_RESOURCE,
	"CAP_SYS_TIME":           CAP_SYS_TIME,
	"CAP_SYS_TTY_CONFIG":     CAP_SYS_TTY_CONFIG,
	"CAP_MKNOD":              CAP_MKNOD,
	"CAP_LEASE":              CAP_LEASE,
	"CAP_AUDIT_WRITE":        CAP_AUDIT_WRITE,
	"CAP_AUDIT_CONTROL":      CAP_AUDIT_CONTROL,
	"CAP_SETFCAP":            CAP_SETFCAP,
	"CAP_MAC_OVERRIDE":       CAP_MAC_OVERRIDE,
	"CAP_MAC_ADMIN":          CAP_MAC_ADMIN,
	"CAP_SYSLOG":             CAP_SYSLOG,
	"CAP_WAKE_ALARM":         CAP_WAKE_ALARM,
	"CAP_BLOCK_SUSPEND":      CAP_BLOCK_SUSPEND,
	"CAP_AUDIT_READ":         CAP_AUDIT_READ,
	"CAP_PERFMON":            CAP_PERFMON,
	"CAP_BPF":                CAP_BPF,
	"CAP_CHECKPOINT_RESTORE": CAP_CHECKPOINT_RESTORE,
}

// prctl constants
const (
	PR_CAPBSET_READ      = 23
	PR_CAPBSET_DROP      = 24
	PR_CAP_AMBIENT       = 47
	PR_CAP_AMBIENT_RAISE = 2
	PR_CAP_AMBIENT_LOWER = 3
	PR_CAP_AMBIENT_CLEAR = 4

	PR_SET_KEEPCAPS = 8
)

// securebits, SECBIT_* (linux/securebits.h)
const (
	SECBIT_NOROOT             = 1 << 0
	SECBIT_NOROOT_LOCKED      = 1 << 1
	SECBIT_NO_SETUID_FIXUP    = 1 << 2
	SECBIT_NO_SETUID_FIXUP_LOCKED = 1 << 3
	SECBIT_KEEP_CAPS          = 1 << 4
	SECBIT_KEEP_CAPS_LOCKED   = 1 << 5
	SECBIT_NO_CAP_AMBIENT_RAISE        = 1 << 6
	SECBIT_NO_CAP_AMBIENT_RAISE_LOCKED = 1 << 7

	SECURE_ALL_BITS  = SECBIT_NOROOT | SECBIT_NO_SETUID_FIXUP | SECBIT_KEEP_CAPS | SECBIT_NO_CAP_AMBIENT_RAISE
	SECURE_ALL_LOCKS = SECBIT_NOROOT_LOCKED | SECBIT_NO_SETUID_FIXUP_LOCKED | SECBIT_KEEP_CAPS_LOCKED | SECBIT_NO_CAP_AMBIENT_RAISE_LOCKED

	PR_SET_SECUREBITS = 28
	PR_GET_SECUREBITS = 27
)

// LINUX_CAPABILITY_VERSION_3 is the only capset/capget ABI version this
// package speaks; the kernel rejects capset calls for stale callers that
// still use version 1 or 2.
const LINUX_CAPABILITY_VERSION_3 = 0x20080522

type capHeader struct {
	Version uint32
	Pid     int32
}

type capData struct {
	Effective   uint32
	Permitted   uint32
	Inheritable uint32
}

func capset(header *capHeader, data *[2]capData) error {
	_, _, errno := syscall.Syscall(syscall.SYS_CAPSET,
		uintptr(unsafe.Pointer(header)),
		uintptr(unsafe.Pointer(&data[0])),
		0)
	if errno != 0 {
		return errno
	}
	return nil
}

func capget(header *capHeader, data *[2]capData) error {
	_, _, errno := syscall.Syscall(syscall.SYS_CAPGET,
		uintptr(unsafe.Pointer(header)),
		uintptr(unsafe.Pointer(&data[0])),
		0)
	if errno != 0 {
		return errno
	}
	return nil
}

func setBit(data *[2]capData, idx int, field func(*capData) *uint32) {
	word := idx / 32
	bit := uint32(1) << uint(idx%32)
	*field(&data[word]) |= bit
}

// SetKeepCaps arms PR_SET_KEEPCAPS and the securebits described in
// spec.md's credential-drop note, so that capabilities survive the
// subsequent setuid instead of being cleared by the kernel's usual
// drop-on-UID-change behavior.
func SetKeepCaps() error {
	if _, _, errno := syscall.Syscall(syscall.SYS_PRCTL, PR_SET_KEEPCAPS, 1, 0); errno != 0 {
		return jerrors.Wrap(errno, jerrors.KernelRefused, "set_keepcaps")
	}
	if _, _, errno := syscall.Syscall(syscall.SYS_PRCTL, PR_SET_SECUREBITS, uintptr(SECURE_ALL_BITS|SECURE_ALL_LOCKS), 0); errno != 0 {
		return jerrors.Wrap(errno, jerrors.KernelRefused, "set_securebits")
	}
	return nil
}

// DropCaps shapes the effective/permitted/inheritable/bounding sets down to
// mask, following the 6-step algorithm: clear everything, re-add only what
// was requested (plus CAP_SETPCAP, needed to touch the bounding set at
// all), commit, shrink the bounding set, then optionally strip
// CAP_SETPCAP and commit again if it was never actually requested.
func DropCaps(mask uint64) error {
	header := capHeader{Version: LINUX_CAPABILITY_VERSION_3, Pid: 0}
	var cur [2]capData
	if err := capget(&header, &cur); err != nil {
		return jerrors.Wrap(err, jerrors.KernelRefused, "capget")
	}

	lastCap := getLastCap()
	requestedSetpcap := mask&(1<<CAP_SETPCAP) != 0

	var data [2]capData
	for i := 0; i <= lastCap; i++ {
		keep := i == CAP_SETPCAP || mask&(uint64(1)<<uint(i)) != 0
		if !keep {
			continue
		}
		setBit(&data, i, func(d *capData) *uint32 { return &d.Effective })
		setBit(&data, i, func(d *capData) *uint32 { return &d.Permitted })
		setBit(&data, i, func(d *capData) *uint32 { return &d.Inheritable })
	}
	if err := capset(&header, &data); err != nil {
		return jerrors.Wrap(err, jerrors.KernelRefused, "capset")
	}

	for i := 0; i <= lastCap; i++ {
		if mask&(uint64(1)<<uint(i)) != 0 {
			continue
		}
		_, _, errno := syscall.Syscall(syscall.SYS_PRCTL, PR_CAPBSET_DROP, uintptr(i), 0)
		if errno != 0 && errno != syscall.EINVAL {
			return jerrors.Wrap(errno, jerrors.KernelRefused, fmt.Sprintf("capbset_drop(%d)", i))
		}
	}

	if !requestedSetpcap {
		data[CAP_SETPCAP/32].Effective &^= 1 << uint(CAP_SETPCAP%32)
		data[CAP_SETPCAP/32].Permitted &^= 1 << uint(CAP_SETPCAP%32)
		data[CAP_SETPCAP/32].Inheritable &^= 1 << uint(CAP_SETPCAP%32)
		if err := capset(&header, &data); err != nil {
			return jerrors.Wrap(err, jerrors.KernelRefused, "capset(strip setpcap)")
		}
	}

	return nil
}

// DropPtraceCap drops CAP_SYS_PTRACE from the bounding set on its own,
// for disable_ptrace requested without use_caps — the normal capability
// path (PR_CAPBSET_DROP) with no other bit touched.
func DropPtraceCap() error {
	_, _, errno := syscall.Syscall(syscall.SYS_PRCTL, PR_CAPBSET_DROP, uintptr(CAP_SYS_PTRACE), 0)
	if errno != 0 && errno != syscall.EINVAL {
		return jerrors.Wrap(errno, jerrors.KernelRefused, "capbset_drop(CAP_SYS_PTRACE)")
	}
	return nil
}

// GetCapabilities returns the current effective/permitted/inheritable sets
// as 64-bit masks.
func GetCapabilities() (effective, permitted, inheritable uint64, err error) {
	header := capHeader{Version: LINUX_CAPABILITY_VERSION_3, Pid: 0}
	var data [2]capData
	if gerr := capget(&header, &data); gerr != nil {
		return 0, 0, 0, jerrors.Wrap(gerr, jerrors.KernelRefused, "capget")
	}
	effective = uint64(data[0].Effective) | (uint64(data[1].Effective) << 32)
	permitted = uint64(data[0].Permitted) | (uint64(data[1].Permitted) << 32)
	inheritable = uint64(data[0].Inheritable) | (uint64(data[1].Inheritable) << 32)
	return effective, permitted, inheritable, nil
}

// CapabilityToName converts a capability number to its name.
func CapabilityToName(cap int) string {
	for name, num := range capabilityMap {
		if num == cap {
			return name
		}
	}
	return fmt.Sprintf("CAP_%d", cap)
}

// NameToCapability converts a capability name to its number.
func NameToCapability(name string) (int, bool) {
	cap, ok := capabilityMap[strings.ToUpper(name)]
	return cap, ok
}

// AllCapabilities returns all known capability names.
func AllCapabilities() []string {
	caps := make([]string, 0, len(capabilityMap))
	for name := range capabilityMap {
		caps = append(caps, name)
	}
	return caps
}
