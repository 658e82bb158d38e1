package linux

import (
	"syscall"
	"testing"

	"jailcore/config"
)

func TestNamespaceConstants(t *testing.T) {
	if CLONE_NEWNS != syscall.CLONE_NEWNS {
		t.Errorf("CLONE_NEWNS mismatch")
	}
	if CLONE_NEWUTS != syscall.CLONE_NEWUTS {
		t.Errorf("CLONE_NEWUTS mismatch")
	}
	if CLONE_NEWIPC != syscall.CLONE_NEWIPC {
		t.Errorf("CLONE_NEWIPC mismatch")
	}
	if CLONE_NEWPID != syscall.CLONE_NEWPID {
		t.Errorf("CLONE_NEWPID mismatch")
	}
	if CLONE_NEWNET != syscall.CLONE_NEWNET {
		t.Errorf("CLONE_NEWNET mismatch")
	}
	if CLONE_NEWUSER != syscall.CLONE_NEWUSER {
		t.Errorf("CLONE_NEWUSER mismatch")
	}
	if CLONE_NEWCGROUP != 0x02000000 {
		t.Errorf("CLONE_NEWCGROUP should be 0x02000000")
	}
}

func TestNamespaceFlags(t *testing.T) {
	b := config.New()
	if err := b.NamespacePIDs(); err != nil {
		t.Fatal(err)
	}
	if err := b.NamespaceNet(); err != nil {
		t.Fatal(err)
	}

	flags := NamespaceFlags(b.Config())
	expected := uintptr(CLONE_NEWPID | CLONE_NEWNET | CLONE_NEWNS) // PIDs implies VFS
	if flags != expected {
		t.Errorf("expected 0x%x, got 0x%x", expected, flags)
	}
}

func TestNamespaceFlagsEmpty(t *testing.T) {
	flags := NamespaceFlags(config.New().Config())
	if flags != 0 {
		t.Errorf("expected 0 for a bare config, got 0x%x", flags)
	}
}

func TestNamespaceFlagsVFSOnly(t *testing.T) {
	b := config.New()
	if err := b.NamespaceVFS(); err != nil {
		t.Fatal(err)
	}
	flags := NamespaceFlags(b.Config())
	if flags != CLONE_NEWNS {
		t.Errorf("expected CLONE_NEWNS only, got 0x%x", flags)
	}
}

func TestBuildSysProcAttr(t *testing.T) {
	b := config.New()
	if err := b.NamespacePIDs(); err != nil {
		t.Fatal(err)
	}

	attr := BuildSysProcAttr(b.Config())

	if attr.Cloneflags&CLONE_NEWPID == 0 {
		t.Error("should have CLONE_NEWPID")
	}
	if attr.Cloneflags&CLONE_NEWNS == 0 {
		t.Error("should have CLONE_NEWNS (PIDs implies VFS)")
	}
	if !attr.Setsid {
		t.Error("Setsid should be true")
	}
	if attr.Unshareflags != syscall.CLONE_NEWNS {
		t.Error("Unshareflags should request a private mount namespace")
	}
}

func TestBuildSysProcAttrBare(t *testing.T) {
	attr := BuildSysProcAttr(config.New().Config())
	if attr.Cloneflags != 0 {
		t.Errorf("expected no clone flags for a bare config, got 0x%x", attr.Cloneflags)
	}
	if attr.Unshareflags != 0 {
		t.Error("Unshareflags should be unset without VFS")
	}
}
