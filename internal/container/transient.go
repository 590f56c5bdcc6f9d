// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"os/exec"
	"strings"

	"github.com/appboot/appboot/pkg/types"
)

// transientMarkers are engine and network messages that usually clear on retry.
var transientMarkers = []string{
	// Rootless Podman races and OCI runtime errors.
	"ping_group_range",
	"OCI runtime error",
	// Network errors while pulling the base image or fetching packages.
	"Temporary failure resolving",
	"Could not resolve host",
	"connection timed out",
	"connection refused",
	"TLS handshake timeout",
	// Overlay mount races on rootless Podman.
	"error creating overlay mount",
	"error mounting layer",
}

// IsTransientError reports whether err is a container engine error that may
// succeed on retry. Context cancellation and deadline errors are never transient.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && types.ExitCode(exitErr.ExitCode()).IsTransient() {
		return true
	}

	errStr := err.Error()
	for _, marker := range transientMarkers {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}
