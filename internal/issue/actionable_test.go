// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestActionableError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      *ActionableError
		expected string
	}{
		{
			name:     "operation only",
			err:      &ActionableError{Operation: "build image"},
			expected: "failed to build image",
		},
		{
			name: "operation with resource",
			err: &ActionableError{
				Operation: "build image",
				Resource:  "./Containerfile",
			},
			expected: "failed to build image: ./Containerfile",
		},
		{
			name: "full context",
			err: &ActionableError{
				Operation: "verify ownership",
				Resource:  "/app",
				Cause:     errors.New("owned by uid 0"),
			},
			expected: "failed to verify ownership: /app: owned by uid 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestActionableError_ErrorsIs(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("sentinel")
	err := NewErrorContext().
		WithOperation("resolve application").
		Wrap(fmt.Errorf("lookup: %w", sentinel)).
		BuildError()

	if !errors.Is(err, sentinel) {
		t.Error("errors.Is should find the wrapped sentinel")
	}
}

func TestActionableError_Format(t *testing.T) {
	t.Parallel()

	inner := errors.New("exit status 100")
	err := &ActionableError{
		Operation:   "build image",
		Resource:    "appboot/demo:abc",
		Suggestions: []string{"Check os_packages", "Re-run with --verbose"},
		Cause:       fmt.Errorf("engine: %w", inner),
	}

	short := err.Format(false)
	if !strings.Contains(short, "  • Check os_packages") {
		t.Errorf("Format(false) missing suggestion:\n%s", short)
	}
	if strings.Contains(short, "Error chain:") {
		t.Errorf("Format(false) should not include the chain:\n%s", short)
	}

	long := err.Format(true)
	if !strings.Contains(long, "Error chain:") || !strings.Contains(long, "2. exit status 100") {
		t.Errorf("Format(true) missing error chain:\n%s", long)
	}
}

func TestErrorContext_Build(t *testing.T) {
	t.Parallel()

	if NewErrorContext().Build() != nil {
		t.Error("Build() without operation should return nil")
	}
	if NewErrorContext().BuildError() != nil {
		t.Error("BuildError() without operation should return nil")
	}

	ae := NewErrorContext().
		WithOperation("drop privileges").
		WithResource("uid 1000").
		WithKind(PermissionDeniedId).
		WithSuggestion("start as root").
		Build()
	if ae.Kind != PermissionDeniedId {
		t.Errorf("Kind = %d, want %d", ae.Kind, PermissionDeniedId)
	}
	if !ae.HasSuggestions() {
		t.Error("HasSuggestions() = false")
	}
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	inner := NewErrorContext().
		WithOperation("install packages").
		WithKind(PackageInstallFailedId).
		BuildError()
	outer := NewErrorContext().
		WithOperation("build image").
		Wrap(inner).
		BuildError()

	id, ok := KindOf(fmt.Errorf("cli: %w", outer))
	if !ok || id != PackageInstallFailedId {
		t.Errorf("KindOf() = %d, %v; want %d, true", id, ok, PackageInstallFailedId)
	}

	if _, ok := KindOf(errors.New("plain")); ok {
		t.Error("KindOf(plain error) should report false")
	}
}

func TestWrapWithContext(t *testing.T) {
	t.Parallel()

	if WrapWithContext(nil, "op", "res") != nil {
		t.Error("WrapWithContext(nil) should return nil")
	}
	err := WrapWithContext(errors.New("boom"), "stage payload", "static/")
	if err.Error() != "failed to stage payload: static/: boom" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}
