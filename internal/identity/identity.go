// SPDX-License-Identifier: MPL-2.0

package identity

import (
	"errors"
	"fmt"

	"github.com/appboot/appboot/pkg/types"
)

var (
	// ErrRootIdentity is returned when the target or the resulting identity is root.
	ErrRootIdentity = errors.New("identity is root")
	// ErrIdentityMismatch is returned when a non-root process runs as an identity
	// other than the target and cannot switch.
	ErrIdentityMismatch = errors.New("process identity does not match target")
	// ErrUnsupportedPlatform is returned where privilege changes are unavailable.
	ErrUnsupportedPlatform = errors.New("privilege drop is not supported on this platform")
	// ErrOwnershipMismatch is the sentinel wrapped by OwnershipError.
	ErrOwnershipMismatch = errors.New("path not owned by runtime identity")
)

type (
	// Identity is a numeric uid/gid pair.
	Identity struct {
		UID types.NumericID
		GID types.NumericID
	}

	// MismatchError reports the identity a process has instead of the target.
	MismatchError struct {
		Want Identity
		Got  Identity
	}

	// OwnershipError reports the first path not owned by the target identity.
	OwnershipError struct {
		Path string
		Want Identity
		Got  Identity
	}

	// sysCalls are the process-credential primitives Drop relies on.
	sysCalls struct {
		geteuid   func() int
		getegid   func() int
		setgroups func(gids []int) error
		setgid    func(gid int) error
		setuid    func(uid int) error
	}
)

// String returns "uid:gid".
func (i Identity) String() string {
	return fmt.Sprintf("%d:%d", i.UID, i.GID)
}

// Validate rejects root and out-of-range ids.
func (i Identity) Validate() error {
	if err := i.UID.Validate(); err != nil {
		return fmt.Errorf("uid: %w", err)
	}
	if err := i.GID.Validate(); err != nil {
		return fmt.Errorf("gid: %w", err)
	}
	if i.UID.IsRoot() || i.GID.IsRoot() {
		return fmt.Errorf("%s: %w", i, ErrRootIdentity)
	}
	return nil
}

// Error implements the error interface.
func (e *MismatchError) Error() string {
	return fmt.Sprintf("running as %s, want %s", e.Got, e.Want)
}

// Unwrap returns ErrIdentityMismatch for errors.Is() compatibility.
func (e *MismatchError) Unwrap() error { return ErrIdentityMismatch }

// Error implements the error interface.
func (e *OwnershipError) Error() string {
	return fmt.Sprintf("%s is owned by %s, want %s", e.Path, e.Got, e.Want)
}

// Unwrap returns ErrOwnershipMismatch for errors.Is() compatibility.
func (e *OwnershipError) Unwrap() error { return ErrOwnershipMismatch }

func (sc sysCalls) current() Identity {
	return Identity{UID: types.NumericID(sc.geteuid()), GID: types.NumericID(sc.getegid())}
}

// drop switches from root to target: supplementary groups first, then the
// group, then the user, since setgid is no longer permitted after setuid.
func drop(sc sysCalls, target Identity) error {
	if err := target.Validate(); err != nil {
		return err
	}

	cur := sc.current()
	switch {
	case cur == target:
		return nil
	case !cur.UID.IsRoot():
		return &MismatchError{Want: target, Got: cur}
	}

	if err := sc.setgroups([]int{}); err != nil {
		return fmt.Errorf("setgroups: %w", err)
	}
	if err := sc.setgid(int(target.GID)); err != nil {
		return fmt.Errorf("setgid %d: %w", target.GID, err)
	}
	if err := sc.setuid(int(target.UID)); err != nil {
		return fmt.Errorf("setuid %d: %w", target.UID, err)
	}

	after := sc.current()
	if after.UID.IsRoot() {
		return fmt.Errorf("effective uid still 0 after setuid: %w", ErrRootIdentity)
	}
	if after != target {
		return &MismatchError{Want: target, Got: after}
	}
	return nil
}
