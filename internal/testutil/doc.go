// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helpers shared by package tests: project trees on
// disk, loopback ports and server cleanup. Helpers fail the test on error.
package testutil
