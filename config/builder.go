package config

import (
	"os/user"
	"strconv"
	"strings"

	jerrors "jailcore/errors"
)

// Builder accumulates isolation requests into a Config, validating
// inter-option constraints as each operation is called. Every operation
// returns an error; operations against a frozen Builder (one whose Run or
// RunStatic has already been invoked) always fail.
type Builder struct {
	c *Config
}

// New returns an empty Builder, ready for configuration.
func New() *Builder {
	return &Builder{c: &Config{}}
}

// Config returns the underlying configuration record. Callers must not
// mutate it directly; go through Builder operations instead.
func (b *Builder) Config() *Config {
	return b.c
}

func (b *Builder) checkMutable(op string) error {
	if b.c.frozen {
		return jerrors.New(jerrors.InvalidArgument, op, "builder already consumed by run")
	}
	return nil
}

// ChangeUID requests a UID change. Rejects 0 (invariant 4).
func (b *Builder) ChangeUID(uid uint32) error {
	if err := b.checkMutable("change_uid"); err != nil {
		return err
	}
	if uid == 0 {
		return jerrors.ErrZeroUID
	}
	b.c.UID = uid
	b.c.UIDSet = true
	return nil
}

// ChangeGID requests a GID change. Rejects 0 (invariant 4).
func (b *Builder) ChangeGID(gid uint32) error {
	if err := b.checkMutable("change_gid"); err != nil {
		return err
	}
	if gid == 0 {
		return jerrors.ErrZeroGID
	}
	b.c.GID = gid
	b.c.GIDSet = true
	return nil
}

// ChangeUser resolves name to a UID and primary GID, and records the name
// itself for later inherit_usergroups use.
func (b *Builder) ChangeUser(name string) error {
	if err := b.checkMutable("change_user"); err != nil {
		return err
	}
	u, err := user.Lookup(name)
	if err != nil {
		return jerrors.Wrap(err, jerrors.IOError, "change_user")
	}
	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return jerrors.Wrap(err, jerrors.IOError, "change_user")
	}
	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return jerrors.Wrap(err, jerrors.IOError, "change_user")
	}
	if uid == 0 {
		return jerrors.ErrZeroUID
	}
	if gid == 0 {
		return jerrors.ErrZeroGID
	}
	b.c.UID = uint32(uid)
	b.c.UIDSet = true
	b.c.GID = uint32(gid)
	b.c.GIDSet = true
	b.c.UserName = name
	return nil
}

// ChangeGroup resolves name to a GID, used as the supplementary-group base.
func (b *Builder) ChangeGroup(name string) error {
	if err := b.checkMutable("change_group"); err != nil {
		return err
	}
	g, err := user.LookupGroup(name)
	if err != nil {
		return jerrors.Wrap(err, jerrors.IOError, "change_group")
	}
	gid, err := strconv.ParseUint(g.Gid, 10, 32)
	if err != nil {
		return jerrors.Wrap(err, jerrors.IOError, "change_group")
	}
	if gid == 0 {
		return jerrors.ErrZeroGID
	}
	b.c.GID = uint32(gid)
	b.c.GIDSet = true
	b.c.GroupBaseGID = uint32(gid)
	return nil
}

// UseCaps requests the given 64-bit capability mask. Bits beyond the
// kernel-reported last-cap bound are rejected (invariant 5).
func (b *Builder) UseCaps(mask uint64) error {
	if err := b.checkMutable("use_caps"); err != nil {
		return err
	}
	lastCap := kernelLastCap()
	if lastCap < 63 {
		overflow := mask &^ ((uint64(1) << (uint(lastCap) + 1)) - 1)
		if overflow != 0 {
			return jerrors.ErrCapsOutOfRange
		}
	}
	b.c.Caps = mask
	b.c.CapsSet = true
	return nil
}

// NamespaceVFS requests a new mount namespace.
func (b *Builder) NamespaceVFS() error {
	if err := b.checkMutable("namespace_vfs"); err != nil {
		return err
	}
	b.c.VFS = true
	return nil
}

// NamespacePIDs requests a new PID namespace. Implies VFS and readonly-proc
// (invariant 2 / testable property 6).
func (b *Builder) NamespacePIDs() error {
	if err := b.checkMutable("namespace_pids"); err != nil {
		return err
	}
	b.c.PIDs = true
	b.c.VFS = true
	b.c.ReadonlyProc = true
	return nil
}

// NamespaceNet requests a new network namespace.
func (b *Builder) NamespaceNet() error {
	if err := b.checkMutable("namespace_net"); err != nil {
		return err
	}
	b.c.Net = true
	return nil
}

// UseSeccomp requests strict-mode seccomp.
func (b *Builder) UseSeccomp() error {
	if err := b.checkMutable("use_seccomp"); err != nil {
		return err
	}
	b.c.SeccompStrict = true
	return nil
}

// NoNewPrivs requests the no_new_privs process bit.
func (b *Builder) NoNewPrivs() error {
	if err := b.checkMutable("no_new_privs"); err != nil {
		return err
	}
	b.c.NoNewPrivs = true
	return nil
}

// UseSeccompFilter records a pre-compiled BPF filter program for the child
// to install. Compiling
// the policy file into instructions is the external collaborator's job
// (spec.md §1); this operation only accepts the result.
func (b *Builder) UseSeccompFilter(filter []BPFInstruction) error {
	if err := b.checkMutable("use_seccomp_filter"); err != nil {
		return err
	}
	if len(filter) > 0xffff {
		return jerrors.ErrFilterTooLarge
	}
	b.c.Filter = append([]BPFInstruction(nil), filter...)
	b.c.FilterLen = uint16(len(filter))
	b.c.SeccompFilter = true
	return nil
}

// LogSeccompFilterFailures requests a SIGSYS handler that logs blocked
// syscalls instead of silently relying on the default kill action.
func (b *Builder) LogSeccompFilterFailures() error {
	if err := b.checkMutable("log_seccomp_filter_failures"); err != nil {
		return err
	}
	b.c.LogSeccompFilter = true
	return nil
}

// InheritUsergroups requests that the supplementary-group set be
// populated from /etc/group for the previously set user name (invariant 3).
func (b *Builder) InheritUsergroups() error {
	if err := b.checkMutable("inherit_usergroups"); err != nil {
		return err
	}
	if strings.TrimSpace(b.c.UserName) == "" {
		return jerrors.ErrInheritUsergroupsNoName
	}
	b.c.InheritUsergroups = true
	return nil
}

// DisablePtrace requests CAP_SYS_PTRACE be dropped from the bounding set.
// Enforced at privilege-drop time: folded out of the retained mask when
// use_caps is also set, or dropped on its own via PR_CAPBSET_DROP otherwise.
func (b *Builder) DisablePtrace() error {
	if err := b.checkMutable("disable_ptrace"); err != nil {
		return err
	}
	b.c.DisablePtrace = true
	return nil
}

// EnterChroot requests a chroot into dir. Fails if already set
// (invariant/testable property 5).
func (b *Builder) EnterChroot(dir string) error {
	if err := b.checkMutable("enter_chroot"); err != nil {
		return err
	}
	if b.c.Chroot {
		return jerrors.ErrChrootAlreadySet
	}
	b.c.ChrootDir = dir
	b.c.Chroot = true
	return nil
}

// MountTmp requests an ephemeral tmpfs at /tmp after chroot.
func (b *Builder) MountTmp() error {
	if err := b.checkMutable("mount_tmp"); err != nil {
		return err
	}
	b.c.MountTmp = true
	return nil
}

// RemountReadonly requests a readonly /proc remount.
func (b *Builder) RemountReadonly() error {
	if err := b.checkMutable("remount_readonly"); err != nil {
		return err
	}
	b.c.ReadonlyProc = true
	return nil
}

// ChrootChdir requests a post-chroot chdir. Requires enter_chroot to have
// been called already (invariant 1, testable property 5); dir must begin
// with "/".
func (b *Builder) ChrootChdir(dir string) error {
	if err := b.checkMutable("chroot_chdir"); err != nil {
		return err
	}
	if !b.c.Chroot {
		return jerrors.ErrChrootNotSet
	}
	if !strings.HasPrefix(dir, "/") {
		return jerrors.ErrChdirNotAbsolute
	}
	b.c.ChdirDir = dir
	b.c.Chdir = true
	return nil
}

// Bind appends a bind entry. Implies namespace_vfs (invariant 2, testable
// property 6). dest must begin with "/".
func (b *Builder) Bind(src, dest string, writable bool) error {
	if err := b.checkMutable("bind"); err != nil {
		return err
	}
	if !strings.HasPrefix(dest, "/") {
		return jerrors.ErrDestNotAbsolute
	}
	b.c.Binds = append(b.c.Binds, BindEntry{Src: src, Dest: dest, Writable: writable})
	b.c.BindCount = len(b.c.Binds)
	b.c.VFS = true
	return nil
}

// StackLimit requests RLIMIT_STACK.
func (b *Builder) StackLimit(bytes uint64) error {
	if err := b.checkMutable("stack_limit"); err != nil {
		return err
	}
	b.c.StackBytes = bytes
	b.c.StackLimitSet = true
	return nil
}

// TimeLimit requests a CPU/wall-clock time limit, in milliseconds.
func (b *Builder) TimeLimit(ms uint64) error {
	if err := b.checkMutable("time_limit"); err != nil {
		return err
	}
	b.c.CPUTimeMS = ms
	b.c.TimeLimitSet = true
	return nil
}

// OutputLimit requests RLIMIT_FSIZE and RLIMIT_CORE=0.
func (b *Builder) OutputLimit(bytes uint64) error {
	if err := b.checkMutable("output_limit"); err != nil {
		return err
	}
	b.c.OutputBytes = bytes
	b.c.OutputLimitSet = true
	return nil
}

// MemoryLimit requests RLIMIT_AS.
func (b *Builder) MemoryLimit(bytes uint64) error {
	if err := b.checkMutable("memory_limit"); err != nil {
		return err
	}
	b.c.MemoryBytes = bytes
	b.c.MemoryLimitSet = true
	return nil
}

// MetaFile opens path for metadata output.
func (b *Builder) MetaFile(path string) error {
	if err := b.checkMutable("meta_file"); err != nil {
		return err
	}
	f, err := openMetaFile(path)
	if err != nil {
		return jerrors.Wrap(err, jerrors.IOError, "meta_file")
	}
	b.c.MetaFile = f
	b.c.MetaFileSet = true
	return nil
}
