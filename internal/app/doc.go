// SPDX-License-Identifier: MPL-2.0

// Package app resolves the served application from a "module:attribute"
// reference against an in-process registry of HTTP handler factories.
package app
