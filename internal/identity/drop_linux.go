// SPDX-License-Identifier: MPL-2.0

//go:build linux

package identity

import (
	"golang.org/x/sys/unix"
)

func hostCalls() sysCalls {
	return sysCalls{
		geteuid:   unix.Geteuid,
		getegid:   unix.Getegid,
		setgroups: unix.Setgroups,
		setgid:    unix.Setgid,
		setuid:    unix.Setuid,
	}
}

// Current returns the effective uid and gid of the process.
func Current() Identity {
	return hostCalls().current()
}

// Drop switches a root process to target. A process already running as
// target is left alone; any other non-root identity is a MismatchError.
// Credentials apply to every thread of the process.
func Drop(target Identity) error {
	return drop(hostCalls(), target)
}
