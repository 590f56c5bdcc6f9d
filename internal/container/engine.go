// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"fmt"
	"io"

	"github.com/appboot/appboot/pkg/types"
)

const (
	EngineTypePodman EngineType = "podman"
	EngineTypeDocker EngineType = "docker"
)

type (
	// Engine defines the interface for container operations
	Engine interface {
		// Name returns the engine name (docker or podman)
		Name() string
		// Available checks if the engine is available on the system
		Available() bool
		// Version returns the engine version
		Version(ctx context.Context) (string, error)

		// Build builds an image from a Containerfile
		Build(ctx context.Context, opts BuildOptions) error
		// Run runs a command in a new container
		Run(ctx context.Context, opts RunOptions) (*RunResult, error)
		// ImageExists checks if an image exists locally
		ImageExists(ctx context.Context, image string) (bool, error)
		// InspectImage returns the runtime configuration baked into an image
		InspectImage(ctx context.Context, image string) (*ImageConfig, error)
		// RemoveImage removes an image
		RemoveImage(ctx context.Context, image string, force bool) error
	}

	// BuildOptions contains options for building an image
	BuildOptions struct {
		// ContextDir is the build context directory
		ContextDir string
		// Dockerfile is the path to the Containerfile (relative to ContextDir)
		Dockerfile string
		// Tag is the image tag
		Tag string
		// BuildArgs are build-time variables
		BuildArgs map[string]string
		// NoCache disables the build cache
		NoCache bool
		// Stdout is where to write build output
		Stdout io.Writer
		// Stderr is where to write build errors
		Stderr io.Writer
	}

	// RunOptions contains options for running a container
	RunOptions struct {
		// Image is the image to run
		Image string
		// Command overrides the image CMD when non-empty
		Command []string
		// User overrides the image USER when non-empty
		User string
		// Env contains environment variables
		Env map[string]string
		// Ports are published port mappings
		Ports []PortMapping
		// Remove automatically removes the container after exit
		Remove bool
		// Name is the container name
		Name string
		// Stdout is where to write standard output
		Stdout io.Writer
		// Stderr is where to write standard error
		Stderr io.Writer
	}

	// RunResult contains the result of running a container
	RunResult struct {
		// ExitCode is the container process exit code
		ExitCode types.ExitCode
		// Error is set for infrastructure failures (binary missing, etc.)
		Error error
	}

	// ImageConfig is the subset of an image's runtime configuration that
	// determines how the container process starts.
	ImageConfig struct {
		User         string
		ExposedPorts []string
		Cmd          []string
		Entrypoint   []string
		WorkingDir   string
	}

	// EngineType identifies the container engine type
	EngineType string

	// ErrEngineNotAvailable is returned when a container engine is not available
	ErrEngineNotAvailable struct {
		Engine string
		Reason string
	}
)

func (e *ErrEngineNotAvailable) Error() string {
	return fmt.Sprintf("container engine '%s' is not available: %s", e.Engine, e.Reason)
}

// NewEngine creates a new container engine based on preference, falling back
// to the other engine when the preferred one is not available.
func NewEngine(preferredType EngineType) (Engine, error) {
	switch preferredType {
	case EngineTypePodman:
		return firstAvailable("podman", NewPodmanEngine(), NewDockerEngine())
	case EngineTypeDocker:
		return firstAvailable("docker", NewDockerEngine(), NewPodmanEngine())
	default:
		return nil, fmt.Errorf("unknown container engine type: %s", preferredType)
	}
}

// AutoDetectEngine tries to find an available container engine.
// Podman is tried first since it is more common in rootless setups.
func AutoDetectEngine() (Engine, error) {
	return firstAvailable("any", NewPodmanEngine(), NewDockerEngine())
}

func firstAvailable(preferred string, engines ...Engine) (Engine, error) {
	for _, e := range engines {
		if e.Available() {
			return e, nil
		}
	}
	return nil, &ErrEngineNotAvailable{
		Engine: preferred,
		Reason: "no container engine (podman or docker) is installed or accessible",
	}
}
