// Package linux provides Linux-specific jail primitives: namespaces,
// capabilities, seccomp, mounts and resource limits.
package linux

import (
	"syscall"

	"jailcore/config"
)

// Linux namespace clone flags.
const (
	CLONE_NEWNS     = syscall.CLONE_NEWNS // Mount namespace
	CLONE_NEWUTS    = syscall.CLONE_NEWUTS
	CLONE_NEWIPC    = syscall.CLONE_NEWIPC
	CLONE_NEWPID    = syscall.CLONE_NEWPID // PID namespace
	CLONE_NEWNET    = syscall.CLONE_NEWNET // Network namespace
	CLONE_NEWUSER   = syscall.CLONE_NEWUSER
	CLONE_NEWCGROUP = 0x02000000 // not exposed by the syscall package
)

// NamespaceFlags derives the clone(2) flag set a Config asks for. Only VFS,
// PIDs and Net map to namespaces here — user-namespace remapping and cgroup
// namespaces are out of scope (Non-goals).
func NamespaceFlags(c *config.Config) uintptr {
	var flags uintptr
	if c.VFS {
		flags |= CLONE_NEWNS
	}
	if c.PIDs {
		flags |= CLONE_NEWPID
	}
	if c.Net {
		flags |= CLONE_NEWNET
	}
	return flags
}

// BuildSysProcAttr builds the SysProcAttr for the os/exec start that
// launches the jailed process: the clone flags from NamespaceFlags, a new
// session, and a mount-namespace unshare when VFS is requested. The driver
// uses it for every launch, the PID-namespace case included; there is no
// separate raw clone(2) path.
func BuildSysProcAttr(c *config.Config) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{
		Cloneflags: NamespaceFlags(c),
		Setsid:     true,
	}
	if c.VFS {
		attr.Unshareflags = syscall.CLONE_NEWNS
	}
	return attr
}
