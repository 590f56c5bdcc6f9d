// SPDX-License-Identifier: MPL-2.0

package identity

import (
	"errors"
	"slices"
	"testing"
)

// fakeProc simulates process credentials and records credential calls.
type fakeProc struct {
	euid, egid int
	calls      []string
	failSetuid error
	ignoreUID  bool
}

func (p *fakeProc) sysCalls() sysCalls {
	return sysCalls{
		geteuid: func() int { return p.euid },
		getegid: func() int { return p.egid },
		setgroups: func(gids []int) error {
			p.calls = append(p.calls, "setgroups")
			if len(gids) != 0 {
				return errors.New("unexpected supplementary groups")
			}
			return nil
		},
		setgid: func(gid int) error {
			p.calls = append(p.calls, "setgid")
			p.egid = gid
			return nil
		},
		setuid: func(uid int) error {
			p.calls = append(p.calls, "setuid")
			if p.failSetuid != nil {
				return p.failSetuid
			}
			if !p.ignoreUID {
				p.euid = uid
			}
			return nil
		},
	}
}

var appUser = Identity{UID: 1000, GID: 1000}

func TestDrop_FromRoot(t *testing.T) {
	t.Parallel()

	p := &fakeProc{euid: 0, egid: 0}
	if err := drop(p.sysCalls(), appUser); err != nil {
		t.Fatalf("drop() error = %v", err)
	}
	if want := []string{"setgroups", "setgid", "setuid"}; !slices.Equal(p.calls, want) {
		t.Errorf("calls = %v, want %v", p.calls, want)
	}
	if p.euid != 1000 || p.egid != 1000 {
		t.Errorf("credentials = %d:%d", p.euid, p.egid)
	}
}

func TestDrop_AlreadyTarget(t *testing.T) {
	t.Parallel()

	p := &fakeProc{euid: 1000, egid: 1000}
	if err := drop(p.sysCalls(), appUser); err != nil {
		t.Fatalf("drop() error = %v", err)
	}
	if len(p.calls) != 0 {
		t.Errorf("credential calls made: %v", p.calls)
	}
}

func TestDrop_Errors(t *testing.T) {
	t.Parallel()

	errPerm := errors.New("operation not permitted")
	tests := []struct {
		name   string
		proc   *fakeProc
		target Identity
		want   error
	}{
		{name: "root target", proc: &fakeProc{}, target: Identity{UID: 0, GID: 1000}, want: ErrRootIdentity},
		{name: "root group target", proc: &fakeProc{}, target: Identity{UID: 1000, GID: 0}, want: ErrRootIdentity},
		{name: "other unprivileged user", proc: &fakeProc{euid: 1001, egid: 1001}, target: appUser, want: ErrIdentityMismatch},
		{name: "same uid other gid", proc: &fakeProc{euid: 1000, egid: 50}, target: appUser, want: ErrIdentityMismatch},
		{name: "setuid fails", proc: &fakeProc{failSetuid: errPerm}, target: appUser, want: errPerm},
		{name: "setuid ignored", proc: &fakeProc{ignoreUID: true}, target: appUser, want: ErrRootIdentity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := drop(tt.proc.sysCalls(), tt.target)
			if !errors.Is(err, tt.want) {
				t.Errorf("drop() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestIdentity(t *testing.T) {
	t.Parallel()

	if appUser.String() != "1000:1000" {
		t.Errorf("String() = %q", appUser.String())
	}
	if err := appUser.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if err := (Identity{}).Validate(); !errors.Is(err, ErrRootIdentity) {
		t.Errorf("Validate(root) error = %v", err)
	}

	var mm error = &MismatchError{Want: appUser, Got: Identity{UID: 5, GID: 5}}
	if mm.Error() != "running as 5:5, want 1000:1000" {
		t.Errorf("MismatchError = %q", mm.Error())
	}
}
