package jail

import (
	"os"
	"path/filepath"
	"testing"

	"jailcore/config"
	jerrors "jailcore/errors"
)

func buildResolveConfig(t *testing.T, chrootDir string, binds ...config.BindEntry) *config.Config {
	t.Helper()
	b := config.New()
	if chrootDir != "" {
		if err := b.EnterChroot(chrootDir); err != nil {
			t.Fatalf("EnterChroot: %v", err)
		}
	}
	for _, bd := range binds {
		if err := b.Bind(bd.Src, bd.Dest, bd.Writable); err != nil {
			t.Fatalf("Bind: %v", err)
		}
	}
	return b.Config()
}

func TestResolve_NoChrootRegularFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(target, []byte("hi"), 0644); err != nil {
		t.Fatal(err)
	}

	c := buildResolveConfig(t, "")
	got, err := Resolve(c, target)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != target {
		t.Errorf("Resolve() = %q, want %q", got, target)
	}
}

func TestResolve_ChrootRewrite(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "payload"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	c := buildResolveConfig(t, root)
	got, err := Resolve(c, "/payload")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := filepath.Join(root, "payload")
	if got != want {
		t.Errorf("Resolve() = %q, want %q", got, want)
	}
}

func TestResolve_BindLongestPrefixWins(t *testing.T) {
	root := t.TempDir()
	bindSrc := t.TempDir()
	nestedSrc := t.TempDir()

	if err := os.WriteFile(filepath.Join(nestedSrc, "deep.bin"), []byte("y"), 0644); err != nil {
		t.Fatal(err)
	}

	c := buildResolveConfig(t, root,
		config.BindEntry{Src: bindSrc, Dest: "/data", Writable: false},
		config.BindEntry{Src: nestedSrc, Dest: "/data/nested", Writable: false},
	)

	got, err := Resolve(c, "/data/nested/deep.bin")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := filepath.Join(nestedSrc, "deep.bin")
	if got != want {
		t.Errorf("Resolve() = %q, want %q (longest-prefix bind should win)", got, want)
	}
}

// ============================================================================
// SECURITY TESTS: Symlink and Path Traversal Handling
// ============================================================================

func TestResolve_SymlinkChain(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "real"), []byte("z"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("/real", filepath.Join(root, "link1")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("/link1", filepath.Join(root, "link2")); err != nil {
		t.Fatal(err)
	}

	c := buildResolveConfig(t, root)
	got, err := Resolve(c, "/link2")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := filepath.Join(root, "real")
	if got != want {
		t.Errorf("Resolve() = %q, want %q", got, want)
	}
}

func TestResolve_SymlinkLoopFails(t *testing.T) {
	root := t.TempDir()
	if err := os.Symlink("/loopB", filepath.Join(root, "loopA")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("/loopA", filepath.Join(root, "loopB")); err != nil {
		t.Fatal(err)
	}

	c := buildResolveConfig(t, root)
	_, err := Resolve(c, "/loopA")
	if !jerrors.IsKind(err, jerrors.InvalidArgument) {
		t.Errorf("Resolve() on symlink loop = %v, want InvalidArgument", err)
	}
}

func TestResolve_NonRegularNonSymlinkFails(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "adir"), 0755); err != nil {
		t.Fatal(err)
	}

	c := buildResolveConfig(t, root)
	_, err := Resolve(c, "/adir")
	if !jerrors.IsKind(err, jerrors.InvalidArgument) {
		t.Errorf("Resolve() on directory = %v, want InvalidArgument", err)
	}
}

func TestResolve_MissingPathFails(t *testing.T) {
	root := t.TempDir()
	c := buildResolveConfig(t, root)
	_, err := Resolve(c, "/nope")
	if !jerrors.IsKind(err, jerrors.InvalidArgument) {
		t.Errorf("Resolve() on missing path = %v, want InvalidArgument", err)
	}
}

func TestResolve_RelativePathUsesChdir(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "work"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "work", "f"), []byte("q"), 0644); err != nil {
		t.Fatal(err)
	}

	b := config.New()
	if err := b.EnterChroot(root); err != nil {
		t.Fatal(err)
	}
	if err := b.ChrootChdir("/work"); err != nil {
		t.Fatal(err)
	}
	c := b.Config()

	got, err := Resolve(c, "f")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := filepath.Join(root, "work", "f")
	if got != want {
		t.Errorf("Resolve() = %q, want %q", got, want)
	}
}

func TestAbsoluteInJail_AlreadyAbsolute(t *testing.T) {
	c := buildResolveConfig(t, "")
	if got := absoluteInJail(c, "/already/abs"); got != "/already/abs" {
		t.Errorf("absoluteInJail() = %q, want unchanged", got)
	}
}
