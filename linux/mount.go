package linux

import (
	"os"
	"path/filepath"
	"syscall"

	"jailcore/config"
	jerrors "jailcore/errors"
)

// Mount flags used by the bind & chroot engine.
const (
	MS_BIND     = syscall.MS_BIND
	MS_REC      = syscall.MS_REC
	MS_REMOUNT  = syscall.MS_REMOUNT
	MS_RDONLY   = syscall.MS_RDONLY
	MS_NODEV    = syscall.MS_NODEV
	MS_NOEXEC   = syscall.MS_NOEXEC
	MS_NOSUID   = syscall.MS_NOSUID
	MS_PRIVATE  = syscall.MS_PRIVATE
	MS_DETACH   = syscall.MNT_DETACH
)

// ApplyMounts runs the bind & chroot engine's apply(config): make the
// mount tree private, then binds (independent of chroot — a bind target
// may be any absolute path, chrooted or not), then chroot/chdir and its
// optional /tmp, then optional readonly /proc (also independent of
// chroot — readonly_proc is implied by namespace_pids regardless of
// whether a chroot was requested). Any failure here is fatal — the
// caller is already partway through privilege transformation and must
// abort rather than continue in an unknown state.
func ApplyMounts(c *config.Config) error {
	if c.VFS {
		if err := MakeMountPrivate("/"); err != nil {
			return err
		}
	}

	for _, bd := range c.Binds {
		target := filepath.Join(c.ChrootDir, bd.Dest)
		if err := os.MkdirAll(target, 0755); err != nil && !os.IsExist(err) {
			return jerrors.Wrap(err, jerrors.KernelRefused, "mkdir bind target "+target)
		}
		if err := syscall.Mount(bd.Src, target, "", MS_BIND, ""); err != nil {
			return jerrors.Wrap(err, jerrors.KernelRefused, "bind "+bd.Src+" -> "+target)
		}
		if !bd.Writable {
			if err := syscall.Mount("", target, "", MS_BIND|MS_REMOUNT|MS_RDONLY, ""); err != nil {
				return jerrors.Wrap(err, jerrors.KernelRefused, "remount readonly "+target)
			}
		}
	}

	if c.Chroot {
		if err := syscall.Chroot(c.ChrootDir); err != nil {
			return jerrors.Wrap(err, jerrors.KernelRefused, "chroot "+c.ChrootDir)
		}
		chdir := "/"
		if c.Chdir {
			chdir = c.ChdirDir
		}
		if err := os.Chdir(chdir); err != nil {
			return jerrors.Wrap(err, jerrors.KernelRefused, "chdir "+chdir)
		}

		if c.MountTmp {
			if err := os.MkdirAll("/tmp", 01777); err != nil && !os.IsExist(err) {
				return jerrors.Wrap(err, jerrors.KernelRefused, "mkdir /tmp")
			}
			if err := syscall.Mount("tmpfs", "/tmp", "tmpfs", 0, "size=128M,mode=777"); err != nil {
				return jerrors.Wrap(err, jerrors.KernelRefused, "mount tmpfs /tmp")
			}
		}
	}

	if c.ReadonlyProc {
		// Best effort: a stale debugfs-style mount under /proc can block the
		// later detach; ignore failures, the mount may simply not exist.
		_ = syscall.Unmount("/proc/sys/fs/binfmt_misc", MS_DETACH)

		// We hold a reference into the parent mount namespace's /proc;
		// MS_REMOUNT there would leak outward even inside our own mount
		// namespace. Detach it and mount a fresh one instead.
		if err := syscall.Unmount("/proc", MS_DETACH); err != nil {
			return jerrors.Wrap(err, jerrors.KernelRefused, "detach /proc")
		}
		if err := os.MkdirAll("/proc", 0555); err != nil && !os.IsExist(err) {
			return jerrors.Wrap(err, jerrors.KernelRefused, "mkdir /proc")
		}
		if err := syscall.Mount("proc", "/proc", "proc", MS_NODEV|MS_NOEXEC|MS_NOSUID|MS_RDONLY, ""); err != nil {
			return jerrors.Wrap(err, jerrors.KernelRefused, "mount fresh /proc")
		}
	}

	return nil
}

// MakeMountPrivate marks the mount tree private before any namespace-local
// mounts are performed, so our bind mounts never propagate back to the
// host's mount namespace.
func MakeMountPrivate(path string) error {
	if err := syscall.Mount("", path, "", MS_REC|MS_PRIVATE, ""); err != nil {
		return jerrors.Wrap(err, jerrors.KernelRefused, "make-private "+path)
	}
	return nil
}
