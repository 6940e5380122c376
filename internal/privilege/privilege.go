// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package privilege supplies the ownership and permission checks the
// checkpoint store and device probe both gate acceptance on: is this
// process running as root, and does a given file belong to the invoking
// user with no group- or world-write bit set.
package privilege

import (
	"os"
	"syscall"

	preclearerrors "github.com/stratastor/preclear-ng/pkg/errors"
)

// IsRoot reports whether the current process has an effective UID of 0.
func IsRoot() bool {
	return os.Geteuid() == 0
}

// RequireRoot returns a ConfigError if the process is not running as root.
func RequireRoot() error {
	if !IsRoot() {
		return preclearerrors.New(preclearerrors.ConfigInvalid, "preclear-ng must run as root")
	}
	return nil
}

// OwnedByInvoker reports whether path's owning UID matches the current
// effective UID. Used by the checkpoint store's strict read path: a
// checkpoint owned by anyone else is treated as absent, never read.
func OwnedByInvoker(info os.FileInfo) bool {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return false
	}
	return stat.Uid == uint32(os.Geteuid())
}

// NoGroupOrWorldWrite reports whether info's permission bits have neither
// the group-write nor the world-write bit set.
func NoGroupOrWorldWrite(info os.FileInfo) bool {
	return info.Mode().Perm()&0022 == 0
}
