// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable error handling with user-friendly messages.
//
// ActionableError carries the failed operation, the resource involved and remediation
// hints. Errors may also point at a catalog entry (Id) describing one of the build or
// startup failure kinds in Markdown, which the CLI renders with glamour.
package issue
