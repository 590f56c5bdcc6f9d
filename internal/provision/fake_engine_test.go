// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/appboot/appboot/internal/container"
	"github.com/appboot/appboot/pkg/types"
)

// fakeEngine is an in-memory container.Engine. Build snapshots the staged
// context because the builder removes it afterwards.
type fakeEngine struct {
	mu        sync.Mutex
	images    map[string]bool
	existsErr error
	buildErrs []error
	builds    []container.BuildOptions
	staged    map[string]string
	inspect   *container.ImageConfig
	runOutput map[string]string
	runExit   map[string]types.ExitCode
}

var _ container.Engine = (*fakeEngine)(nil)

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		images:    make(map[string]bool),
		runOutput: make(map[string]string),
		runExit:   make(map[string]types.ExitCode),
	}
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Available() bool { return true }

func (f *fakeEngine) Version(context.Context) (string, error) { return "1.0", nil }

func (f *fakeEngine) Build(_ context.Context, opts container.BuildOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.builds = append(f.builds, opts)
	if len(f.buildErrs) > 0 {
		err := f.buildErrs[0]
		f.buildErrs = f.buildErrs[1:]
		if err != nil {
			fmt.Fprintln(opts.Stderr, "step failed")
			return err
		}
	}

	f.staged = make(map[string]string)
	_ = filepath.WalkDir(opts.ContextDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, _ := filepath.Rel(opts.ContextDir, p)
		data, _ := os.ReadFile(p)
		f.staged[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	f.images[opts.Tag] = true
	return nil
}

func (f *fakeEngine) Run(_ context.Context, opts container.RunOptions) (*container.RunResult, error) {
	key := strings.Join(opts.Command, " ")
	if opts.Stdout != nil {
		_, _ = io.WriteString(opts.Stdout, f.runOutput[key])
	}
	return &container.RunResult{ExitCode: f.runExit[key]}, nil
}

func (f *fakeEngine) ImageExists(_ context.Context, image string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.images[image], f.existsErr
}

func (f *fakeEngine) InspectImage(context.Context, string) (*container.ImageConfig, error) {
	if f.inspect == nil {
		return nil, container.ErrImageNotFound
	}
	return f.inspect, nil
}

func (f *fakeEngine) RemoveImage(_ context.Context, image string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.images, image)
	return nil
}

func (f *fakeEngine) buildCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.builds)
}
