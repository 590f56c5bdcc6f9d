// SPDX-License-Identifier: MPL-2.0

//go:build !linux

package identity

import (
	"os"

	"github.com/appboot/appboot/pkg/types"
)

// Current returns the effective uid and gid of the process. Platforms
// without POSIX credentials report -1.
func Current() Identity {
	return Identity{UID: types.NumericID(os.Geteuid()), GID: types.NumericID(os.Getegid())}
}

// Drop is unavailable on this platform.
func Drop(Identity) error {
	return ErrUnsupportedPlatform
}
