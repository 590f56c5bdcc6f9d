// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/appboot/appboot/internal/container"
)

// ErrImageMismatch is the sentinel error wrapped by ImageMismatchError.
var ErrImageMismatch = errors.New("image does not match recipe")

// ImageMismatchError reports one property of a built image that differs
// from what the recipe declares.
type ImageMismatchError struct {
	Tag   string
	Field string
	Want  string
	Got   string
}

// Error implements the error interface.
func (e *ImageMismatchError) Error() string {
	return fmt.Sprintf("image %s: %s is %q, want %q", e.Tag, e.Field, e.Got, e.Want)
}

// Unwrap returns ErrImageMismatch for errors.Is() compatibility.
func (e *ImageMismatchError) Unwrap() error { return ErrImageMismatch }

// Verify checks the runtime contract of a built image: the configured user,
// the exposed port, the startup command and working directory from its
// metadata, then the effective uid and the workdir ownership from inside a
// throwaway container. All mismatches are returned joined.
func (b *Builder) Verify(ctx context.Context, tag string) error {
	if b.engine == nil {
		return ErrNoEngine
	}

	cfg, err := b.engine.InspectImage(ctx, tag)
	if err != nil {
		return err
	}

	id := b.recipe.Identity()
	launch := b.recipe.Launch()
	var errs []error
	mismatch := func(field, want, got string) {
		errs = append(errs, &ImageMismatchError{Tag: tag, Field: field, Want: want, Got: got})
	}

	if cfg.User != id.Name && cfg.User != id.UID.String() && cfg.User != id.UID.String()+":"+id.GID.String() {
		mismatch("user", id.Name, cfg.User)
	}
	port := launch.Port.String() + "/tcp"
	if !slices.Contains(cfg.ExposedPorts, port) {
		mismatch("exposed ports", port, strings.Join(cfg.ExposedPorts, ","))
	}
	if want := b.recipe.Command(); !slices.Equal(cfg.Cmd, want) {
		mismatch("cmd", strings.Join(want, " "), strings.Join(cfg.Cmd, " "))
	}
	if len(cfg.Entrypoint) > 0 {
		mismatch("entrypoint", "", strings.Join(cfg.Entrypoint, " "))
	}
	if cfg.WorkingDir != b.recipe.Workdir() {
		mismatch("workdir", b.recipe.Workdir(), cfg.WorkingDir)
	}

	uid, err := b.runInImage(ctx, tag, "id", "-u")
	if err != nil {
		return errors.Join(append(errs, err)...)
	}
	if uid != id.UID.String() {
		mismatch("effective uid", id.UID.String(), uid)
	}

	owner, err := b.runInImage(ctx, tag, "stat", "-c", "%u:%g", b.recipe.Workdir())
	if err != nil {
		return errors.Join(append(errs, err)...)
	}
	if want := id.UID.String() + ":" + id.GID.String(); owner != want {
		mismatch("workdir owner", want, owner)
	}

	return errors.Join(errs...)
}

// runInImage runs argv in a throwaway container of tag and returns its trimmed stdout.
func (b *Builder) runInImage(ctx context.Context, tag string, argv ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	res, err := b.engine.Run(ctx, container.RunOptions{
		Image:   tag,
		Command: argv,
		Remove:  true,
		Stdout:  &stdout,
		Stderr:  &stderr,
	})
	if err != nil {
		return "", fmt.Errorf("run %s in %s: %w", argv[0], tag, err)
	}
	if res.Error != nil {
		return "", fmt.Errorf("run %s in %s: %w", argv[0], tag, res.Error)
	}
	if !res.ExitCode.IsSuccess() {
		return "", fmt.Errorf("run %s in %s: exit code %s: %s", argv[0], tag, res.ExitCode, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}
