package linux

import (
	"os/user"
	"strconv"

	"golang.org/x/sys/unix"

	"jailcore/config"
	jerrors "jailcore/errors"
)

// DropUGID implements drop_ugid: populates or clears supplementary groups,
// then sets GID before UID (dropping GID after UID would leave the process
// briefly running as an unprivileged UID still holding its old GID).
func DropUGID(c *config.Config) error {
	if c.InheritUsergroups {
		gids, err := lookupGroupIDs(c.UserName)
		if err != nil {
			return jerrors.Wrap(err, jerrors.PermissionDenied, "inherit_usergroups")
		}
		if err := unix.Setgroups(gids); err != nil {
			return jerrors.Wrap(err, jerrors.PermissionDenied, "setgroups")
		}
	} else if c.UIDSet || c.GIDSet {
		if err := unix.Setgroups(nil); err != nil {
			return jerrors.Wrap(err, jerrors.PermissionDenied, "setgroups(clear)")
		}
	}

	if c.GIDSet {
		if err := unix.Setresgid(int(c.GID), int(c.GID), int(c.GID)); err != nil {
			return jerrors.Wrap(err, jerrors.PermissionDenied, "setresgid")
		}
	}
	if c.UIDSet {
		if err := unix.Setresuid(int(c.UID), int(c.UID), int(c.UID)); err != nil {
			return jerrors.Wrap(err, jerrors.PermissionDenied, "setresuid")
		}
	}
	return nil
}

// lookupGroupIDs resolves the numeric GID set name belongs to, the
// platform routine the spec calls "reads /etc/group".
func lookupGroupIDs(name string) ([]int, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return nil, err
	}
	groupStrs, err := u.GroupIds()
	if err != nil {
		return nil, err
	}
	gids := make([]int, 0, len(groupStrs))
	for _, s := range groupStrs {
		gid, err := strconv.Atoi(s)
		if err != nil {
			continue
		}
		gids = append(gids, gid)
	}
	return gids, nil
}
