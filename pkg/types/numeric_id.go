// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"fmt"
	"strconv"
)

// MaxNumericID is the largest uid/gid accepted.
const MaxNumericID NumericID = 1<<31 - 1

// ErrInvalidNumericID is the sentinel error wrapped by InvalidNumericIDError.
var ErrInvalidNumericID = errors.New("invalid numeric id")

type (
	// NumericID is a POSIX user or group id.
	// The zero value (0) is valid and denotes root.
	NumericID int

	// InvalidNumericIDError is returned when a NumericID is negative or too large.
	InvalidNumericIDError struct {
		Value NumericID
	}
)

// String returns the decimal string representation of the NumericID.
func (n NumericID) String() string { return strconv.Itoa(int(n)) }

// Validate returns an error if the id is outside 0..MaxNumericID.
func (n NumericID) Validate() error {
	if n < 0 || n > MaxNumericID {
		return &InvalidNumericIDError{Value: n}
	}
	return nil
}

// IsRoot reports whether the id is the superuser id.
func (n NumericID) IsRoot() bool { return n == 0 }

// Error implements the error interface for InvalidNumericIDError.
func (e *InvalidNumericIDError) Error() string {
	return fmt.Sprintf("invalid numeric id %d (must be in range 0-%d)", e.Value, MaxNumericID)
}

// Unwrap returns ErrInvalidNumericID for errors.Is() compatibility.
func (e *InvalidNumericIDError) Unwrap() error { return ErrInvalidNumericID }
