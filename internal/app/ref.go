// SPDX-License-Identifier: MPL-2.0

package app

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidRef is the sentinel error wrapped by InvalidRefError.
var ErrInvalidRef = errors.New("invalid application reference")

var (
	modulePattern    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)
	attributePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

type (
	// Ref names an application as module:attribute, e.g. main:app.
	Ref struct {
		Module string
		Attr   string
	}

	// InvalidRefError is returned when a reference string is malformed.
	InvalidRefError struct {
		Value  string
		Reason string
	}
)

// ParseRef parses "module:attribute". The module is a dotted identifier
// path and the attribute is a single identifier.
func ParseRef(s string) (Ref, error) {
	module, attr, ok := strings.Cut(s, ":")
	if !ok {
		return Ref{}, &InvalidRefError{Value: s, Reason: "expected module:attribute"}
	}
	if !modulePattern.MatchString(module) {
		return Ref{}, &InvalidRefError{Value: s, Reason: fmt.Sprintf("module %q is not a dotted identifier", module)}
	}
	if !attributePattern.MatchString(attr) {
		return Ref{}, &InvalidRefError{Value: s, Reason: fmt.Sprintf("attribute %q is not an identifier", attr)}
	}
	return Ref{Module: module, Attr: attr}, nil
}

// MustParseRef is like ParseRef but panics on error.
func MustParseRef(s string) Ref {
	ref, err := ParseRef(s)
	if err != nil {
		panic(err)
	}
	return ref
}

// String returns the module:attribute form.
func (r Ref) String() string { return r.Module + ":" + r.Attr }

// IsZero reports whether the reference is unset.
func (r Ref) IsZero() bool { return r.Module == "" && r.Attr == "" }

// Error implements the error interface for InvalidRefError.
func (e *InvalidRefError) Error() string {
	return fmt.Sprintf("invalid application reference %q: %s", e.Value, e.Reason)
}

// Unwrap returns ErrInvalidRef for errors.Is() compatibility.
func (e *InvalidRefError) Unwrap() error { return ErrInvalidRef }
