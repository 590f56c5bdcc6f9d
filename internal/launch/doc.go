// SPDX-License-Identifier: MPL-2.0

// Package launch is the container's startup sequence: resolve the
// configured application, settle the process identity, check workdir
// ownership, then serve until cancelled.
package launch
