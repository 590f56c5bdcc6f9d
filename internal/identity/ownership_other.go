// SPDX-License-Identifier: MPL-2.0

//go:build !linux

package identity

import "context"

// VerifyOwnership is a no-op where file ownership is not POSIX.
func VerifyOwnership(context.Context, string, Identity) error {
	return nil
}
