package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKind_String(t *testing.T) {
	tests := []struct {
		kind     ErrorKind
		expected string
	}{
		{InvalidArgument, "invalid argument"},
		{OutOfMemory, "out of memory"},
		{IOError, "i/o error"},
		{TruncatedInput, "truncated input"},
		{NoTerminator, "no terminator"},
		{TooLarge, "too large"},
		{PermissionDenied, "permission denied"},
		{KernelRefused, "kernel refused"},
		{TargetNotExecutable, "target not executable"},
		{JailSyscall, "blocked by jail syscall filter"},
		{ErrorKind(999), "unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.expected {
				t.Errorf("ErrorKind.String() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestJailError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *JailError
		expected string
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: "<nil>",
		},
		{
			name: "full error",
			err: &JailError{
				Op:     "unmarshal",
				Kind:   TruncatedInput,
				Detail: "bind entry segment short",
				Err:    fmt.Errorf("EOF"),
			},
			expected: "unmarshal: bind entry segment short: EOF",
		},
		{
			name: "without detail",
			err: &JailError{
				Op:   "drop_caps",
				Kind: KernelRefused,
			},
			expected: "drop_caps: kernel refused",
		},
		{
			name: "kind only",
			err: &JailError{
				Kind: PermissionDenied,
			},
			expected: "permission denied",
		},
		{
			name: "with underlying error",
			err: &JailError{
				Op:   "mount",
				Kind: KernelRefused,
				Err:  fmt.Errorf("device busy"),
			},
			expected: "mount: kernel refused: device busy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("JailError.Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestJailError_Unwrap(t *testing.T) {
	underlying := fmt.Errorf("underlying error")
	err := &JailError{
		Op:   "test",
		Kind: KernelRefused,
		Err:  underlying,
	}

	if got := err.Unwrap(); got != underlying {
		t.Errorf("Unwrap() = %v, want %v", got, underlying)
	}

	var nilErr *JailError
	if got := nilErr.Unwrap(); got != nil {
		t.Errorf("nil.Unwrap() = %v, want nil", got)
	}
}

func TestJailError_Is(t *testing.T) {
	err1 := &JailError{Kind: InvalidArgument, Op: "test1"}
	err2 := &JailError{Kind: InvalidArgument, Op: "test2"}
	err3 := &JailError{Kind: PermissionDenied, Op: "test3"}

	if !err1.Is(err2) {
		t.Error("err1.Is(err2) should be true (same kind)")
	}
	if err1.Is(err3) {
		t.Error("err1.Is(err3) should be false (different kind)")
	}
	if err1.Is(fmt.Errorf("some error")) {
		t.Error("err1.Is(fmt.Errorf(...)) should be false")
	}

	var nilErr *JailError
	if !nilErr.Is(nil) {
		t.Error("nil.Is(nil) should be true")
	}
}

func TestNew(t *testing.T) {
	err := New(InvalidArgument, "change_uid", "change_uid(0) is rejected")

	if err.Kind != InvalidArgument {
		t.Errorf("Kind = %v, want %v", err.Kind, InvalidArgument)
	}
	if err.Op != "change_uid" {
		t.Errorf("Op = %q, want %q", err.Op, "change_uid")
	}
	if err.Detail != "change_uid(0) is rejected" {
		t.Errorf("Detail = %q, want %q", err.Detail, "change_uid(0) is rejected")
	}
}

func TestWrap(t *testing.T) {
	underlying := fmt.Errorf("permission denied")
	err := Wrap(underlying, PermissionDenied, "open meta file")

	if err.Err != underlying {
		t.Error("Wrapped error should preserve underlying error")
	}
	if err.Kind != PermissionDenied {
		t.Errorf("Kind = %v, want %v", err.Kind, PermissionDenied)
	}
	if err.Op != "open meta file" {
		t.Errorf("Op = %q, want %q", err.Op, "open meta file")
	}
}

func TestWrapWithDetail(t *testing.T) {
	underlying := fmt.Errorf("syscall failed")
	err := WrapWithDetail(underlying, KernelRefused, "seccomp", "invalid architecture")

	if err.Detail != "invalid architecture" {
		t.Errorf("Detail = %q, want %q", err.Detail, "invalid architecture")
	}
}

func TestIsKind(t *testing.T) {
	err := &JailError{Kind: TruncatedInput}
	wrapped := fmt.Errorf("wrapped: %w", err)

	if !IsKind(err, TruncatedInput) {
		t.Error("IsKind(err, TruncatedInput) should be true")
	}
	if !IsKind(wrapped, TruncatedInput) {
		t.Error("IsKind(wrapped, TruncatedInput) should be true")
	}
	if IsKind(err, PermissionDenied) {
		t.Error("IsKind(err, PermissionDenied) should be false")
	}
	if IsKind(fmt.Errorf("plain error"), TruncatedInput) {
		t.Error("IsKind(plain error, TruncatedInput) should be false")
	}
}

func TestGetKind(t *testing.T) {
	err := &JailError{Kind: TooLarge}
	wrapped := fmt.Errorf("wrapped: %w", err)

	kind, ok := GetKind(err)
	if !ok || kind != TooLarge {
		t.Errorf("GetKind(err) = (%v, %v), want (%v, true)", kind, ok, TooLarge)
	}

	kind, ok = GetKind(wrapped)
	if !ok || kind != TooLarge {
		t.Errorf("GetKind(wrapped) = (%v, %v), want (%v, true)", kind, ok, TooLarge)
	}

	_, ok = GetKind(fmt.Errorf("plain error"))
	if ok {
		t.Error("GetKind(plain error) should return false")
	}
}

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  *JailError
		kind ErrorKind
	}{
		{"ErrChrootNotSet", ErrChrootNotSet, InvalidArgument},
		{"ErrChrootAlreadySet", ErrChrootAlreadySet, InvalidArgument},
		{"ErrZeroUID", ErrZeroUID, InvalidArgument},
		{"ErrZeroGID", ErrZeroGID, InvalidArgument},
		{"ErrInheritUsergroupsNoName", ErrInheritUsergroupsNoName, InvalidArgument},
		{"ErrCapsOutOfRange", ErrCapsOutOfRange, InvalidArgument},
		{"ErrTruncated", ErrTruncated, TruncatedInput},
		{"ErrNoTerminator", ErrNoTerminator, NoTerminator},
		{"ErrFilterTooLarge", ErrFilterTooLarge, TooLarge},
		{"ErrMountFailed", ErrMountFailed, KernelRefused},
		{"ErrCredentialDrop", ErrCredentialDrop, KernelRefused},
		{"ErrCapabilityDrop", ErrCapabilityDrop, KernelRefused},
		{"ErrSeccompInstall", ErrSeccompInstall, KernelRefused},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Errorf("%s.Kind = %v, want %v", tt.name, tt.err.Kind, tt.kind)
			}
			wrapped := Wrap(fmt.Errorf("underlying"), tt.kind, "test")
			if !errors.Is(wrapped, tt.err) {
				t.Errorf("errors.Is(wrapped, %s) should be true", tt.name)
			}
		})
	}
}

func TestErrorChain(t *testing.T) {
	underlying := fmt.Errorf("file not found")
	err1 := Wrap(underlying, InvalidArgument, "resolve user name")
	err2 := fmt.Errorf("builder operation failed: %w", err1)

	if !errors.Is(err2, ErrZeroUID) {
		t.Error("errors.Is should find ErrZeroUID (same kind) in chain")
	}

	var jerr *JailError
	if !errors.As(err2, &jerr) {
		t.Error("errors.As should find JailError in chain")
	}
	if jerr.Op != "resolve user name" {
		t.Errorf("jerr.Op = %q, want %q", jerr.Op, "resolve user name")
	}

	if errors.Unwrap(err1) != underlying {
		t.Error("Unwrap should return underlying error")
	}
}
