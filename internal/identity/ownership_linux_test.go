// SPDX-License-Identifier: MPL-2.0

//go:build linux

package identity

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestVerifyOwnership(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "app", "static"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "app", "main.py"), []byte("app = None\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := VerifyOwnership(context.Background(), dir, Current()); err != nil {
		t.Fatalf("VerifyOwnership(current) error = %v", err)
	}

	other := Current()
	other.UID++
	err := VerifyOwnership(context.Background(), dir, other)
	if !errors.Is(err, ErrOwnershipMismatch) {
		t.Fatalf("VerifyOwnership(other) error = %v, want ErrOwnershipMismatch", err)
	}
	var oe *OwnershipError
	if !errors.As(err, &oe) || oe.Path != dir || oe.Got != Current() {
		t.Errorf("OwnershipError = %+v", oe)
	}
}

func TestVerifyOwnership_Missing(t *testing.T) {
	t.Parallel()

	err := VerifyOwnership(context.Background(), filepath.Join(t.TempDir(), "absent"), Current())
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("VerifyOwnership() error = %v, want os.ErrNotExist", err)
	}
}

func TestVerifyOwnership_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := VerifyOwnership(ctx, t.TempDir(), Current()); !errors.Is(err, context.Canceled) {
		t.Errorf("VerifyOwnership() error = %v, want context.Canceled", err)
	}
}

func TestDrop_RefusesRootTarget(t *testing.T) {
	t.Parallel()

	if err := Drop(Identity{}); !errors.Is(err, ErrRootIdentity) {
		t.Errorf("Drop(root) error = %v, want ErrRootIdentity", err)
	}
}
