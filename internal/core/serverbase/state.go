// SPDX-License-Identifier: MPL-2.0

package serverbase

import (
	"errors"
	"fmt"
)

const (
	// StateCreated: Start has not been called.
	StateCreated State = iota
	// StateStarting: Start was called and the listener is being set up.
	StateStarting
	// StateRunning: the listener accepts connections.
	StateRunning
	// StateStopping: a graceful shutdown is draining connections.
	StateStopping
	// StateStopped is terminal.
	StateStopped
	// StateFailed is terminal: startup or serving failed.
	StateFailed
)

// ErrInvalidState is returned when a State value is not one of the defined lifecycle states.
var ErrInvalidState = errors.New("invalid state")

var stateNames = [...]string{
	StateCreated:  "created",
	StateStarting: "starting",
	StateRunning:  "running",
	StateStopping: "stopping",
	StateStopped:  "stopped",
	StateFailed:   "failed",
}

type (
	// State is the lifecycle state of a server.
	State int32

	// InvalidStateError is returned when a State value is not recognized.
	InvalidStateError struct {
		Value State
	}
)

// String returns the lower-case state name, or "unknown".
func (s State) String() string {
	if s.Validate() != nil {
		return "unknown"
	}
	return stateNames[s]
}

// Error implements the error interface for InvalidStateError.
func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state %d", e.Value)
}

// Unwrap returns ErrInvalidState for errors.Is() compatibility.
func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// Validate returns an error wrapping ErrInvalidState for undefined values.
func (s State) Validate() error {
	if s < StateCreated || s > StateFailed {
		return &InvalidStateError{Value: s}
	}
	return nil
}

// IsTerminal reports whether s is Stopped or Failed.
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateFailed
}
