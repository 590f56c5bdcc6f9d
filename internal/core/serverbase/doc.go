// SPDX-License-Identifier: MPL-2.0

// Package serverbase provides the lifecycle state machine shared by
// long-running listeners.
//
// A Base moves through Created, Starting, Running, Stopping and Stopped, or
// ends in Failed. Reads are lock-free; transitions use compare-and-swap.
// Goroutines started through Go are tracked so Shutdown returns only after
// every one of them has exited.
package serverbase
