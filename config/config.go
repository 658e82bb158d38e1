// Package config implements the jail configuration record (the Config
// Builder) and the wire codec that carries a built configuration across
// the fork/clone boundary to the child that will apply it.
//
// The configuration record is deliberately a flat aggregate rather than a
// tree of interfaces: every isolation feature toggles a boolean flag and,
// where relevant, fills in a scalar or an owned string. This mirrors the
// "single mutable record, frozen at run time" shape the driver expects to
// marshal whole.
package config

import "os"

// BPFInstruction is a single classic-BPF instruction, laid out exactly as
// the kernel's struct sock_filter so a compiled filter program can be
// installed via prctl(PR_SET_SECCOMP, SECCOMP_MODE_FILTER, ...) without
// reshaping. The program itself is produced by an external seccomp-BPF
// policy compiler; this package only carries it.
type BPFInstruction struct {
	Code uint16
	Jt   uint8
	Jf   uint8
	K    uint32
}

// BindEntry is a directive to bind-mount one host path onto one path
// inside the chroot, optionally read-only. Insertion order is preserved:
// bind mounts apply in insertion order, and path resolution prefers the
// entry with the longest destination-prefix match.
type BindEntry struct {
	Src      string
	Dest     string
	Writable bool
}

// Config is the configuration record accumulated by Builder and consumed
// by the namespace/process driver. It is created empty, mutated only by
// Builder operations while privileges are held, frozen once Run or
// RunStatic is called, transmitted once through the marshal codec, and
// reconstructed read-only in the child.
type Config struct {
	// Flags.
	UIDSet             bool
	GIDSet             bool
	CapsSet            bool
	VFS                bool
	PIDs               bool
	Net                bool
	SeccompStrict      bool
	ReadonlyProc       bool
	InheritUsergroups  bool
	NoNewPrivs         bool
	SeccompFilter      bool
	LogSeccompFilter   bool
	Chroot             bool
	MountTmp           bool
	Chdir              bool
	DisablePtrace      bool
	StackLimitSet      bool
	TimeLimitSet       bool
	OutputLimitSet     bool
	MemoryLimitSet     bool
	MetaFileSet        bool

	// Scalars.
	UID            uint32
	GID            uint32
	GroupBaseGID   uint32
	Caps           uint64
	InitPID        int
	FilterLen      uint16
	BindCount      int

	// Owned strings.
	UserName string
	ChrootDir string
	ChdirDir  string

	// Owned compiled filter program.
	Filter []BPFInstruction

	// Ordered bind entries.
	Binds []BindEntry

	// Resource limits.
	StackBytes  uint64
	CPUTimeMS   uint64
	MemoryBytes uint64
	OutputBytes uint64

	// Optional metadata output handle. Not marshalled across the pipe
	// (it lives in the process that owns C8, the init supervisor) but
	// kept on the record so a single-process caller can reach it too.
	MetaFile *os.File

	frozen bool
}

// Frozen reports whether Run or RunStatic has already consumed this
// configuration; Builder operations refuse to mutate a frozen Config.
func (c *Config) Frozen() bool {
	return c.frozen
}

// Freeze marks the configuration as immutable. Called by the driver
// immediately before marshalling.
func (c *Config) Freeze() {
	c.frozen = true
}

// Clone returns a deep copy. The PID-namespace init uses it to derive the
// grandchild's configuration without altering its own.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Filter = append([]BPFInstruction(nil), c.Filter...)
	clone.Binds = append([]BindEntry(nil), c.Binds...)
	return &clone
}
