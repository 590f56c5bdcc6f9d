// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/appboot/appboot/internal/config"
	"github.com/appboot/appboot/internal/testutil"
	"github.com/appboot/appboot/pkg/types"
)

func writeProject(t *testing.T) string {
	t.Helper()
	return testutil.WriteProject(t)
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	testutil.WriteFile(t, root, rel, content)
}

func projectRecipe(t *testing.T) *Recipe {
	t.Helper()
	return newTestRecipe(t, func(c *config.Config) {
		c.Payload = []types.FilesystemPath{"app/", "templates/"}
	})
}

func indexOf(keys []LayerKey, kind StepKind) int {
	for i, k := range keys {
		if k.Kind == kind {
			return i
		}
	}
	return -1
}

func TestLayerKeys_Deterministic(t *testing.T) {
	t.Parallel()

	root := writeProject(t)
	r := projectRecipe(t)

	a, err := r.LayerKeys(context.Background(), root)
	if err != nil {
		t.Fatalf("LayerKeys() error = %v", err)
	}
	b, err := r.LayerKeys(context.Background(), root)
	if err != nil {
		t.Fatalf("LayerKeys() error = %v", err)
	}
	if len(a) != len(r.Steps()) {
		t.Fatalf("len(keys) = %d, want %d", len(a), len(r.Steps()))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("key %d differs between runs: %s vs %s", i, a[i].Key, b[i].Key)
		}
	}
}

func TestLayerKeys_PayloadChangeKeepsDependencyLayers(t *testing.T) {
	t.Parallel()

	root := writeProject(t)
	r := projectRecipe(t)

	before, err := r.LayerKeys(context.Background(), root)
	if err != nil {
		t.Fatalf("LayerKeys() error = %v", err)
	}

	writeFile(t, root, "app/main.py", "app = object()  # changed\n")

	after, err := r.LayerKeys(context.Background(), root)
	if err != nil {
		t.Fatalf("LayerKeys() error = %v", err)
	}

	statuses := Diff(before, after)
	payload := indexOf(after, StepPayload)
	for i, s := range statuses {
		switch {
		case i < payload && s.Status != StatusCached:
			t.Errorf("step %s = %s, want cached", s.Kind, s.Status)
		case i >= payload && s.Status != StatusRebuild:
			t.Errorf("step %s = %s, want rebuild", s.Kind, s.Status)
		}
	}
	for _, kind := range []StepKind{StepManifest, StepInstall} {
		i := indexOf(after, kind)
		if statuses[i].Status != StatusCached {
			t.Errorf("%s layer = %s after payload-only change", kind, statuses[i].Status)
		}
	}
}

func TestLayerKeys_ManifestChangeInvalidatesInstall(t *testing.T) {
	t.Parallel()

	root := writeProject(t)
	r := projectRecipe(t)

	before, err := r.LayerKeys(context.Background(), root)
	if err != nil {
		t.Fatalf("LayerKeys() error = %v", err)
	}

	writeFile(t, root, "requirements.txt", "fastapi==0.111.0\n")

	after, err := r.LayerKeys(context.Background(), root)
	if err != nil {
		t.Fatalf("LayerKeys() error = %v", err)
	}

	statuses := Diff(before, after)
	manifest := indexOf(after, StepManifest)
	if statuses[manifest-1].Status != StatusCached {
		t.Errorf("step before manifest = %s, want cached", statuses[manifest-1].Status)
	}
	if statuses[manifest].Status != StatusRebuild || statuses[manifest+1].Status != StatusRebuild {
		t.Error("manifest and install layers must rebuild after a manifest change")
	}
}

func TestLayerKeys_IgnoredFilesDoNotAffectKeys(t *testing.T) {
	t.Parallel()

	root := writeProject(t)
	writeFile(t, root, IgnoreFileName, "# local artefacts\n**/__pycache__\n*.pyc\n")
	r := projectRecipe(t)

	before, err := r.LayerKeys(context.Background(), root)
	if err != nil {
		t.Fatalf("LayerKeys() error = %v", err)
	}

	writeFile(t, root, "app/__pycache__/main.cpython-311.pyc", "bytecode")
	writeFile(t, root, "app/stale.pyc", "bytecode")

	after, err := r.LayerKeys(context.Background(), root)
	if err != nil {
		t.Fatalf("LayerKeys() error = %v", err)
	}
	if before[len(before)-1].Key != after[len(after)-1].Key {
		t.Error("ignored files changed the final layer key")
	}
}

func TestLayerKeys_MissingInput(t *testing.T) {
	t.Parallel()

	root := writeProject(t)
	if err := os.Remove(filepath.Join(root, "requirements.txt")); err != nil {
		t.Fatal(err)
	}
	r := projectRecipe(t)

	_, err := r.LayerKeys(context.Background(), root)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LayerKeys() error = %v, want os.ErrNotExist", err)
	}
}

func TestLayerKeys_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := projectRecipe(t).LayerKeys(ctx, writeProject(t))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("LayerKeys() error = %v, want context.Canceled", err)
	}
}

func TestIgnore(t *testing.T) {
	t.Parallel()

	ig := NewIgnore("*.pyc", "node_modules/", "!keep.pyc")
	tests := []struct {
		path string
		want bool
	}{
		{"app/main.py", false},
		{"app/main.pyc", true},
		{"static/node_modules/x.js", true},
		{"keep.pyc", false},
	}
	for _, tt := range tests {
		if got := ig.Matches(tt.path); got != tt.want {
			t.Errorf("Matches(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}

	var empty *Ignore
	if empty.Matches("anything") {
		t.Error("nil Ignore matched a path")
	}
}
