// Package jail implements the process orchestration, init supervision,
// and path resolution that sit on top of the linux package's primitives.
package jail

import (
	"os"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"

	"jailcore/config"
	jerrors "jailcore/errors"
)

const maxSymlinkDepth = 32

// Resolve translates an in-jail path to its host-side path, honoring bind
// mounts and chroot. It is idempotent and internally iterative (symlink
// recursion is unrolled into a loop, per the rewrite note about bounding
// stack depth).
func Resolve(c *config.Config, inJailPath string) (string, error) {
	current := absoluteInJail(c, inJailPath)

	for depth := 0; depth < maxSymlinkDepth; depth++ {
		hostPath, err := rewriteToHost(c, current)
		if err != nil {
			return "", err
		}

		info, err := os.Lstat(hostPath)
		if err != nil {
			return "", jerrors.Wrap(err, jerrors.InvalidArgument, "resolve lstat")
		}

		switch {
		case info.Mode().IsRegular():
			return hostPath, nil
		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(hostPath)
			if err != nil {
				return "", jerrors.Wrap(err, jerrors.InvalidArgument, "resolve readlink")
			}
			if filepath.IsAbs(target) {
				current = target
			} else {
				current = filepath.Join(filepath.Dir(current), target)
			}
		default:
			return "", jerrors.ErrNotRepresentable
		}
	}

	return "", jerrors.ErrNotRepresentable
}

// absoluteInJail makes path absolute relative to chdir (if set), else /
// (if chroot active), else the process's current working directory.
func absoluteInJail(c *config.Config, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	base := "/"
	if c.Chdir {
		base = c.ChdirDir
	} else if !c.Chroot {
		if cwd, err := os.Getwd(); err == nil {
			base = cwd
		}
	}
	return filepath.Join(base, path)
}

// rewriteToHost finds the bind entry whose dest is the longest prefix of
// path and rewrites the matched prefix to that entry's host-side src; with
// no match, the host prefix is the chroot directory (or / with no chroot).
func rewriteToHost(c *config.Config, path string) (string, error) {
	hostPrefix := "/"
	if c.Chroot {
		hostPrefix = c.ChrootDir
	}
	remainder := path

	bestLen := -1
	for _, bd := range c.Binds {
		if !strings.HasPrefix(path, bd.Dest) {
			continue
		}
		if len(bd.Dest) <= bestLen {
			continue
		}
		next := len(bd.Dest)
		if next < len(path) && path[next] != '/' && bd.Dest != "/" {
			continue
		}
		bestLen = next
		hostPrefix = bd.Src
		remainder = strings.TrimPrefix(path[next:], "/")
	}
	if bestLen < 0 {
		remainder = strings.TrimPrefix(path, "/")
	}

	return securejoin.SecureJoin(hostPrefix, remainder)
}
