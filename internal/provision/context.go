// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/appboot/appboot/internal/recipe"
)

// StageContext copies everything the recipe's COPY steps reference into a
// new directory under buildRoot and writes the Containerfile next to it.
// The returned cleanup removes the directory.
func StageContext(r *recipe.Recipe, root, buildRoot string) (dir string, cleanup func(), err error) {
	filter, err := recipe.LoadIgnore(root)
	if err != nil {
		return "", nil, err
	}

	if err := os.MkdirAll(buildRoot, 0o755); err != nil {
		return "", nil, fmt.Errorf("failed to create build context parent directory: %w", err)
	}
	dir, err = os.MkdirTemp(buildRoot, "ctx-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	cleanup = func() {
		_ = os.RemoveAll(dir) // Cleanup temp dir; error non-critical
	}

	if err := stage(r, root, dir, filter); err != nil {
		cleanup()
		return "", nil, err
	}
	return dir, cleanup, nil
}

func stage(r *recipe.Recipe, root, dir string, filter *recipe.Ignore) error {
	manifest := r.Manifest().Path
	if err := CopyFile(fromSlash(root, manifest), fromSlash(dir, manifest)); err != nil {
		return fmt.Errorf("stage manifest %s: %w", manifest, err)
	}

	for _, p := range r.Payload() {
		src := fromSlash(root, p)
		info, err := os.Stat(src)
		if err != nil {
			return fmt.Errorf("stage payload %s: %w", p, err)
		}
		if !info.IsDir() {
			if err := CopyFile(src, fromSlash(dir, p)); err != nil {
				return fmt.Errorf("stage payload %s: %w", p, err)
			}
			continue
		}
		skip := func(rel string) bool { return filter.Matches(path.Join(p, rel)) }
		if err := CopyDir(src, fromSlash(dir, p), skip); err != nil {
			return fmt.Errorf("stage payload %s: %w", p, err)
		}
	}

	if bin := r.LauncherBinary(); bin != "" {
		dst := filepath.Join(dir, recipe.LauncherContextName)
		if err := CopyFile(bin, dst); err != nil {
			return fmt.Errorf("stage launcher: %w", err)
		}
		if err := os.Chmod(dst, 0o755); err != nil {
			return fmt.Errorf("stage launcher: %w", err)
		}
	}

	if err := os.WriteFile(filepath.Join(dir, ContainerfileName), []byte(r.Render()), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", ContainerfileName, err)
	}
	return nil
}

func fromSlash(base, rel string) string {
	return filepath.Join(base, filepath.FromSlash(rel))
}
