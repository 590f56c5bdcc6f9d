// SPDX-License-Identifier: MPL-2.0

// Package identity switches the process to its unprivileged runtime
// identity and checks that the working directory belongs to it.
//
// Privilege changes are Linux-only. Elsewhere Drop returns
// ErrUnsupportedPlatform and VerifyOwnership accepts every directory.
package identity
