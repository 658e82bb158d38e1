// Package errors provides predefined sentinel errors for common failure cases.
package errors

// Builder invariant errors (spec.md §3 invariants 1, 3, 4; §8.5, §8.6).
var (
	// ErrChrootNotSet indicates chroot_chdir was called before enter_chroot.
	ErrChrootNotSet = &JailError{
		Kind:   InvalidArgument,
		Detail: "chroot_chdir requires enter_chroot to be set first",
	}

	// ErrChrootAlreadySet indicates enter_chroot was called twice.
	ErrChrootAlreadySet = &JailError{
		Kind:   InvalidArgument,
		Detail: "enter_chroot already set",
	}

	// ErrChdirNotAbsolute indicates a chdir path did not begin with "/".
	ErrChdirNotAbsolute = &JailError{
		Kind:   InvalidArgument,
		Detail: "chdir path must begin with /",
	}

	// ErrZeroUID indicates a UID of 0 was requested ("change to root").
	ErrZeroUID = &JailError{
		Kind:   InvalidArgument,
		Detail: "change_uid(0) is rejected",
	}

	// ErrZeroGID indicates a GID of 0 was requested.
	ErrZeroGID = &JailError{
		Kind:   InvalidArgument,
		Detail: "change_gid(0) is rejected",
	}

	// ErrInheritUsergroupsNoName indicates inherit_usergroups was requested
	// without a user name having been set first.
	ErrInheritUsergroupsNoName = &JailError{
		Kind:   InvalidArgument,
		Detail: "inherit_usergroups requires a non-empty user name",
	}

	// ErrDestNotAbsolute indicates a bind destination did not begin with "/".
	ErrDestNotAbsolute = &JailError{
		Kind:   InvalidArgument,
		Detail: "bind destination must begin with /",
	}

	// ErrCapsOutOfRange indicates a requested capability bit exceeds the
	// kernel-reported last-cap bound.
	ErrCapsOutOfRange = &JailError{
		Kind:   InvalidArgument,
		Detail: "capability mask bit exceeds kernel last-cap bound",
	}

	// ErrCapsWithStaticTarget indicates use_caps was combined with run_static,
	// which does not support capabilities (spec.md §4.7).
	ErrCapsWithStaticTarget = &JailError{
		Kind:   InvalidArgument,
		Detail: "capabilities are not supported on the static-target path",
	}

	// ErrEnterWithPIDs indicates minijail_enter (the non-forking entry) was
	// combined with PID-namespacing, which is disallowed by contract.
	ErrEnterWithPIDs = &JailError{
		Kind:   InvalidArgument,
		Detail: "enter is the non-forking entry and must not be combined with PID-namespacing",
	}
)

// Marshal/unmarshal codec errors (spec.md §4.2, §8.2, §8.3).
var (
	// ErrTruncated indicates a segment was shorter than declared.
	ErrTruncated = &JailError{
		Kind:   TruncatedInput,
		Detail: "input shorter than declared size",
	}

	// ErrNoTerminator indicates a string lacked a NUL terminator.
	ErrNoTerminator = &JailError{
		Kind:   NoTerminator,
		Detail: "string missing NUL terminator within remaining buffer",
	}

	// ErrFilterTooLarge indicates a filter length exceeded the wire limit.
	ErrFilterTooLarge = &JailError{
		Kind:   TooLarge,
		Detail: "filter program length exceeds uint16 range",
	}
)

// Privilege-transformation errors (spec.md §7 — fatal once begun).
var (
	// ErrMountFailed indicates a bind-mount or remount failed.
	ErrMountFailed = &JailError{
		Kind:   KernelRefused,
		Detail: "mount failed",
	}

	// ErrChrootFailed indicates chroot(2) or the following chdir failed.
	ErrChrootFailed = &JailError{
		Kind:   KernelRefused,
		Detail: "chroot failed",
	}

	// ErrCredentialDrop indicates setuid/setgid/setgroups failed.
	ErrCredentialDrop = &JailError{
		Kind:   KernelRefused,
		Detail: "failed to drop credentials",
	}

	// ErrCapabilityDrop indicates capset/prctl(PR_CAPBSET_DROP) failed.
	ErrCapabilityDrop = &JailError{
		Kind:   KernelRefused,
		Detail: "failed to drop capabilities",
	}

	// ErrSeccompInstall indicates prctl(PR_SET_SECCOMP) failed.
	ErrSeccompInstall = &JailError{
		Kind:   KernelRefused,
		Detail: "failed to install seccomp filter",
	}

	// ErrRlimitFailed indicates setrlimit/setitimer failed.
	ErrRlimitFailed = &JailError{
		Kind:   KernelRefused,
		Detail: "failed to apply resource limit",
	}
)

// Process-driver errors.
var (
	// ErrNoInitProcess indicates there is no recorded init PID to wait on or kill.
	ErrNoInitProcess = &JailError{
		Kind:   InvalidArgument,
		Detail: "no init process recorded",
	}

	// ErrNotRepresentable indicates the path resolver hit a non-regular,
	// non-symlink type or a buffer overflow (spec.md §4.9).
	ErrNotRepresentable = &JailError{
		Kind:   InvalidArgument,
		Detail: "path not representable",
	}
)
