// SPDX-License-Identifier: MPL-2.0

// Package server serves an http.Handler on a TCP address with a bounded
// startup, a graceful stop and the lifecycle states of serverbase.
package server
