// SPDX-License-Identifier: MPL-2.0

//go:build linux

package identity

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/appboot/appboot/pkg/types"
)

// VerifyOwnership walks dir without following symlinks and returns an
// *OwnershipError for the first entry whose owner or group differs from
// target.
func VerifyOwnership(ctx context.Context, dir string, target Identity) error {
	return filepath.WalkDir(dir, func(path string, _ fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		var st unix.Stat_t
		if err := unix.Lstat(path, &st); err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		got := Identity{UID: types.NumericID(st.Uid), GID: types.NumericID(st.Gid)}
		if got != target {
			return &OwnershipError{Path: path, Want: target, Got: got}
		}
		return nil
	})
}
