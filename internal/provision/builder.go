// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/appboot/appboot/internal/container"
	"github.com/appboot/appboot/internal/recipe"
)

// maxOutputTail bounds the build output attached to a failed build's error.
const maxOutputTail = 4 << 10

// Compile-time interface check
var _ Provisioner = (*Builder)(nil)

// ErrNoEngine is returned when a build is requested without a container engine.
var ErrNoEngine = errors.New("no container engine configured")

type (
	// Builder builds the image described by a recipe.
	Builder struct {
		engine container.Engine
		recipe *recipe.Recipe
		config *Config
	}

	// tailWriter keeps the last maxOutputTail bytes written to it.
	tailWriter struct {
		buf bytes.Buffer
	}
)

// NewBuilder creates a Builder. engine may be nil when only Plan is used.
func NewBuilder(engine container.Engine, r *recipe.Recipe, opts ...Option) *Builder {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	return &Builder{
		engine: engine,
		recipe: r,
		config: cfg,
	}
}

// Config returns the builder's configuration.
func (b *Builder) Config() *Config {
	return b.config
}

// Tag returns the image tag for a key chain, honouring Tag and TagSuffix.
func (b *Builder) Tag(keys []recipe.LayerKey) string {
	if b.config.Tag != "" {
		return b.config.Tag
	}
	tag := b.recipe.ImageTag(keys)
	if b.config.TagSuffix != "" && len(keys) > 0 {
		tag += "-" + b.config.TagSuffix
	}
	return tag
}

// Plan computes the layer keys of root and compares them against the last
// recorded build without contacting the engine.
func (b *Builder) Plan(ctx context.Context, root string) (*Plan, error) {
	if err := b.config.Validate(); err != nil {
		return nil, err
	}

	keys, err := b.recipe.LayerKeys(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("compute layer keys: %w", err)
	}

	prev, err := LoadRecord(b.config.cacheDir(root), b.recipe.Project())
	if err != nil {
		return nil, err
	}

	return &Plan{
		Containerfile: b.recipe.Render(),
		Tag:           b.Tag(keys),
		Layers:        recipe.Diff(previousKeys(prev), keys),
		Previous:      prev,
	}, nil
}

// Build builds the image for root, or reuses an existing image with the same
// content-addressed tag unless ForceRebuild is set.
func (b *Builder) Build(ctx context.Context, root string) (*Result, error) {
	if b.engine == nil {
		return nil, ErrNoEngine
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	logger := b.config.Logger
	cacheDir := b.config.cacheDir(root)

	keys, err := b.recipe.LayerKeys(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("compute layer keys: %w", err)
	}

	prev, err := LoadRecord(cacheDir, b.recipe.Project())
	if err != nil {
		logger.Warn("ignoring unreadable build record", "error", err)
		prev = nil
	}

	tag := b.Tag(keys)
	result := &Result{
		Tag:    tag,
		Keys:   keys,
		Layers: recipe.Diff(previousKeys(prev), keys),
	}

	if !b.config.ForceRebuild {
		exists, err := b.engine.ImageExists(ctx, tag)
		if err != nil {
			logger.Debug("image lookup failed, building", "tag", tag, "error", err)
		}
		if exists {
			logger.Info("image up to date", "tag", tag)
			result.Cached = true
			result.Duration = time.Since(start)
			if err := b.record(cacheDir, tag, keys); err != nil {
				return nil, err
			}
			return result, nil
		}
	}

	contextDir, cleanup, err := StageContext(b.recipe, root, string(b.config.BuildRoot))
	if err != nil {
		return nil, fmt.Errorf("stage build context: %w", err)
	}
	defer cleanup()

	logger.Debug("staged build context", "dir", contextDir)
	logger.Info("building image", "tag", tag, "engine", b.engine.Name())

	err = container.RetryWithBackoff(ctx, b.config.MaxAttempts, b.config.RetryBackoff, func(attempt int) (bool, error) {
		result.Attempts = attempt + 1

		tail := &tailWriter{}
		buildErr := b.engine.Build(ctx, container.BuildOptions{
			ContextDir: contextDir,
			Dockerfile: ContainerfileName,
			Tag:        tag,
			NoCache:    b.config.NoCache,
			Stdout:     io.MultiWriter(b.config.Stdout, tail),
			Stderr:     io.MultiWriter(b.config.Stderr, tail),
		})
		if buildErr == nil {
			return false, nil
		}
		if out := tail.String(); out != "" {
			buildErr = fmt.Errorf("%w\n%s", buildErr, out)
		}
		if container.IsTransientError(buildErr) && attempt+1 < b.config.MaxAttempts {
			logger.Warn("transient engine failure, retrying", "attempt", attempt+1, "error", buildErr)
			return true, buildErr
		}
		return false, buildErr
	})
	if err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	logger.Info("image built", "tag", tag, "duration", result.Duration.Round(time.Millisecond))

	if err := b.record(cacheDir, tag, keys); err != nil {
		return nil, err
	}
	return result, nil
}

func (b *Builder) record(cacheDir, tag string, keys []recipe.LayerKey) error {
	return SaveRecord(cacheDir, &Record{
		Project:   b.recipe.Project(),
		Tag:       tag,
		BaseImage: b.recipe.BaseImage().String(),
		Keys:      keys,
		BuiltAt:   time.Now().UTC(),
	})
}

func previousKeys(rec *Record) []recipe.LayerKey {
	if rec == nil {
		return nil
	}
	return rec.Keys
}

func (w *tailWriter) Write(p []byte) (int, error) {
	n := len(p)
	if n >= maxOutputTail {
		w.buf.Reset()
		w.buf.Write(p[n-maxOutputTail:])
		return n, nil
	}
	if over := w.buf.Len() + n - maxOutputTail; over > 0 {
		w.buf.Next(over)
	}
	w.buf.Write(p)
	return n, nil
}

func (w *tailWriter) String() string {
	return string(bytes.TrimSpace(w.buf.Bytes()))
}
