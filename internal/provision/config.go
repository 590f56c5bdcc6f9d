// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/appboot/appboot/pkg/types"
)

const (
	// ContainerfileName is the name of the rendered build file inside the staged context.
	ContainerfileName = "Containerfile"

	defaultCacheDir     = ".appboot"
	defaultMaxAttempts  = 3
	defaultRetryBackoff = 2 * time.Second
	buildRootName       = "appboot-build"
	tagSuffixEnv        = "APPBOOT_PROVISION_TAG_SUFFIX"
)

// ErrInvalidProvisionConfig is the sentinel error wrapped by InvalidProvisionConfigError.
var ErrInvalidProvisionConfig = errors.New("invalid provision config")

type (
	// Config holds the build settings of a Builder.
	Config struct {
		// ForceRebuild builds even when an image with the computed tag exists.
		ForceRebuild bool

		// NoCache disables the engine's layer cache.
		NoCache bool

		// Tag overrides the content-addressed image tag.
		Tag string

		// TagSuffix is appended to the computed tag. It keeps parallel test
		// builds from sharing images. Read from APPBOOT_PROVISION_TAG_SUFFIX.
		TagSuffix string

		// CacheDir stores recorded key chains. Relative paths resolve against
		// the project root.
		CacheDir types.FilesystemPath

		// BuildRoot is the parent of the temporary build context. Docker
		// installed via Snap cannot read /tmp or hidden directories, so the
		// default is a visible directory in the user's home.
		BuildRoot types.FilesystemPath

		// MaxAttempts bounds retries of transient engine failures.
		MaxAttempts int

		// RetryBackoff is the base delay between attempts.
		RetryBackoff time.Duration

		// Stdout and Stderr receive engine build output.
		Stdout io.Writer
		Stderr io.Writer

		// Logger receives progress messages.
		Logger *log.Logger
	}

	// Option is a functional option for configuring a Config.
	Option func(*Config)

	// InvalidProvisionConfigError is returned when Config fields are invalid.
	InvalidProvisionConfigError struct {
		FieldErrors []error
	}
)

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	buildRoot := ""
	// Verify HOME exists; some environments set it to a placeholder.
	if home, err := os.UserHomeDir(); err == nil {
		if _, statErr := os.Stat(home); statErr == nil {
			buildRoot = filepath.Join(home, buildRootName)
		}
	}
	if buildRoot == "" {
		buildRoot = filepath.Join(os.TempDir(), buildRootName)
	}

	return &Config{
		TagSuffix:    os.Getenv(tagSuffixEnv),
		CacheDir:     defaultCacheDir,
		BuildRoot:    types.FilesystemPath(buildRoot),
		MaxAttempts:  defaultMaxAttempts,
		RetryBackoff: defaultRetryBackoff,
		Stdout:       io.Discard,
		Stderr:       io.Discard,
		Logger:       log.New(io.Discard),
	}
}

// WithForceRebuild returns an Option that sets ForceRebuild on the config.
func WithForceRebuild(force bool) Option {
	return func(c *Config) {
		c.ForceRebuild = force
	}
}

// WithNoCache returns an Option that sets NoCache on the config.
func WithNoCache(noCache bool) Option {
	return func(c *Config) {
		c.NoCache = noCache
	}
}

// WithTag returns an Option that overrides the computed image tag.
func WithTag(tag string) Option {
	return func(c *Config) {
		c.Tag = tag
	}
}

// WithTagSuffix returns an Option that sets TagSuffix on the config.
func WithTagSuffix(suffix string) Option {
	return func(c *Config) {
		c.TagSuffix = suffix
	}
}

// WithCacheDir returns an Option that sets CacheDir on the config.
func WithCacheDir(dir types.FilesystemPath) Option {
	return func(c *Config) {
		c.CacheDir = dir
	}
}

// WithBuildRoot returns an Option that sets BuildRoot on the config.
func WithBuildRoot(dir types.FilesystemPath) Option {
	return func(c *Config) {
		c.BuildRoot = dir
	}
}

// WithRetry returns an Option that sets the retry policy for transient failures.
func WithRetry(maxAttempts int, backoff time.Duration) Option {
	return func(c *Config) {
		c.MaxAttempts = maxAttempts
		c.RetryBackoff = backoff
	}
}

// WithOutput returns an Option that routes engine build output.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(c *Config) {
		c.Stdout = stdout
		c.Stderr = stderr
	}
}

// WithLogger returns an Option that sets the progress logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// Apply applies the given options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate returns an error describing every invalid field.
func (c *Config) Validate() error {
	var errs []error
	if err := c.CacheDir.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("cache dir: %w", err))
	}
	if err := c.BuildRoot.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("build root: %w", err))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max attempts %d: must be at least 1", c.MaxAttempts))
	}
	if c.RetryBackoff < 0 {
		errs = append(errs, fmt.Errorf("retry backoff %s: must not be negative", c.RetryBackoff))
	}
	if c.Tag != "" && strings.TrimSpace(c.Tag) == "" {
		errs = append(errs, errors.New("tag: must not be whitespace-only"))
	}
	if len(errs) > 0 {
		return &InvalidProvisionConfigError{FieldErrors: errs}
	}
	return nil
}

// cacheDir resolves CacheDir against the project root.
func (c *Config) cacheDir(root string) string {
	dir := string(c.CacheDir)
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(root, dir)
}

// Error implements the error interface.
func (e *InvalidProvisionConfigError) Error() string {
	return fmt.Sprintf("invalid provision config: %v", errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidProvisionConfig for errors.Is() compatibility.
func (e *InvalidProvisionConfigError) Unwrap() error { return ErrInvalidProvisionConfig }
