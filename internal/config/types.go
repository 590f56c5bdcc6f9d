// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/appboot/appboot/pkg/types"
)

const (
	// ContainerEnginePodman uses Podman as the container runtime.
	ContainerEnginePodman ContainerEngine = "podman"
	// ContainerEngineDocker uses Docker as the container runtime.
	ContainerEngineDocker ContainerEngine = "docker"

	// LauncherBuiltin starts the image with `appboot serve`.
	LauncherBuiltin Launcher = "builtin"
	// LauncherUvicorn starts the image with the uvicorn ASGI server.
	LauncherUvicorn Launcher = "uvicorn"
)

var (
	// ErrInvalidContainerEngine is returned when a ContainerEngine value is not recognized.
	ErrInvalidContainerEngine = errors.New("invalid container engine")
	// ErrInvalidLauncher is returned when a Launcher value is not recognized.
	ErrInvalidLauncher = errors.New("invalid launcher")
	// ErrInvalidIdentity is the sentinel error wrapped by InvalidIdentityError.
	ErrInvalidIdentity = errors.New("invalid identity")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// ContainerEngine specifies which container runtime to use.
	ContainerEngine string

	// InvalidContainerEngineError is returned when a ContainerEngine value is not recognized.
	// It wraps ErrInvalidContainerEngine for errors.Is() compatibility.
	InvalidContainerEngineError struct {
		Value ContainerEngine
	}

	// Launcher selects the program written into the image's CMD.
	Launcher string

	// InvalidLauncherError is returned when a Launcher value is not recognized.
	InvalidLauncherError struct {
		Value Launcher
	}

	// Identity is the unprivileged OS account the application runs as.
	Identity struct {
		Name string          `json:"name" mapstructure:"name"`
		UID  types.NumericID `json:"uid" mapstructure:"uid"`
		GID  types.NumericID `json:"gid" mapstructure:"gid"`
	}

	// InvalidIdentityError collects field-level errors of an Identity.
	InvalidIdentityError struct {
		FieldErrors []error
	}

	// Config holds the project configuration.
	Config struct {
		// Project names the image repository (appboot/<project>).
		Project string `json:"project" mapstructure:"project"`
		// BaseImage is the pinned runtime base image reference.
		BaseImage string `json:"base_image" mapstructure:"base_image"`
		// Workdir is the absolute working directory inside the image.
		Workdir types.FilesystemPath `json:"workdir" mapstructure:"workdir"`
		// OSPackages are installed with apt in a single layer.
		OSPackages []string `json:"os_packages" mapstructure:"os_packages"`
		// Manifest is the project-relative dependency manifest.
		Manifest types.FilesystemPath `json:"manifest" mapstructure:"manifest"`
		// InstallCommand installs the dependencies declared in Manifest.
		InstallCommand []string `json:"install_command" mapstructure:"install_command"`
		// Payload lists the project-relative directories copied after dependency install.
		Payload []types.FilesystemPath `json:"payload" mapstructure:"payload"`
		// Identity is the runtime user and group.
		Identity Identity `json:"identity" mapstructure:"identity"`
		// Port is the TCP port the application listens on.
		Port types.ListenPort `json:"port" mapstructure:"port"`
		// Host is the listen address.
		Host string `json:"host" mapstructure:"host"`
		// App is the module:attribute reference of the served application.
		App string `json:"app" mapstructure:"app"`
		// Launcher selects the CMD form.
		Launcher Launcher `json:"launcher" mapstructure:"launcher"`
		// ContainerEngine specifies whether to use "docker" or "podman".
		ContainerEngine ContainerEngine `json:"container_engine" mapstructure:"container_engine"`
		// CacheDir holds recorded layer keys. Relative values resolve against the project directory.
		CacheDir string `json:"cache_dir" mapstructure:"cache_dir"`

		// Source is the config file the values were read from, empty for pure defaults.
		Source string `json:"-" mapstructure:"-"`
	}

	// InvalidConfigError is returned when a Config has invalid fields.
	// It wraps ErrInvalidConfig for errors.Is() compatibility and collects
	// field-level validation errors from all sub-components.
	InvalidConfigError struct {
		FieldErrors []error
	}
)

// String returns the string representation of the ContainerEngine.
func (ce ContainerEngine) String() string { return string(ce) }

// Validate returns an error if the ContainerEngine is not one of the defined engine types.
func (ce ContainerEngine) Validate() error {
	switch ce {
	case ContainerEnginePodman, ContainerEngineDocker:
		return nil
	default:
		return &InvalidContainerEngineError{Value: ce}
	}
}

// Error implements the error interface for InvalidContainerEngineError.
func (e *InvalidContainerEngineError) Error() string {
	return fmt.Sprintf("invalid container engine %q (valid: podman, docker)", e.Value)
}

// Unwrap returns ErrInvalidContainerEngine for errors.Is() compatibility.
func (e *InvalidContainerEngineError) Unwrap() error { return ErrInvalidContainerEngine }

// String returns the string representation of the Launcher.
func (l Launcher) String() string { return string(l) }

// Validate returns an error if the Launcher is not recognized.
func (l Launcher) Validate() error {
	switch l {
	case LauncherBuiltin, LauncherUvicorn:
		return nil
	default:
		return &InvalidLauncherError{Value: l}
	}
}

// Error implements the error interface for InvalidLauncherError.
func (e *InvalidLauncherError) Error() string {
	return fmt.Sprintf("invalid launcher %q (valid: builtin, uvicorn)", e.Value)
}

// Unwrap returns ErrInvalidLauncher for errors.Is() compatibility.
func (e *InvalidLauncherError) Unwrap() error { return ErrInvalidLauncher }

// Validate checks the account name and the id ranges. Root ids are accepted
// here; the build recipe is where least privilege is enforced.
func (i Identity) Validate() error {
	var errs []error
	if strings.TrimSpace(i.Name) == "" {
		errs = append(errs, fmt.Errorf("identity name must be non-empty"))
	}
	if err := i.UID.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("uid: %w", err))
	}
	if err := i.GID.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("gid: %w", err))
	}
	if len(errs) > 0 {
		return &InvalidIdentityError{FieldErrors: errs}
	}
	return nil
}

// Error implements the error interface for InvalidIdentityError.
func (e *InvalidIdentityError) Error() string {
	return fmt.Sprintf("invalid identity: %s", errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidIdentity followed by the field errors, so
// errors.Is() matches both the sentinel and the underlying causes.
func (e *InvalidIdentityError) Unwrap() []error {
	return append([]error{ErrInvalidIdentity}, e.FieldErrors...)
}

// Validate checks every field that environment overrides could have set
// outside the CUE schema.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Project) == "" {
		errs = append(errs, fmt.Errorf("project must be non-empty"))
	}
	if strings.TrimSpace(c.BaseImage) == "" {
		errs = append(errs, fmt.Errorf("base_image must be non-empty"))
	}
	if err := c.Workdir.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("workdir: %w", err))
	} else if !path.IsAbs(string(c.Workdir)) {
		errs = append(errs, fmt.Errorf("workdir %q must be absolute", c.Workdir))
	}
	if _, err := c.Manifest.Relative(); err != nil {
		errs = append(errs, fmt.Errorf("manifest: %w", err))
	}
	if len(c.InstallCommand) == 0 {
		errs = append(errs, fmt.Errorf("install_command must be non-empty"))
	}
	for i, p := range c.Payload {
		if _, err := p.Relative(); err != nil {
			errs = append(errs, fmt.Errorf("payload[%d]: %w", i, err))
		}
	}
	if err := c.Identity.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Port.Validate(); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.App) == "" {
		errs = append(errs, fmt.Errorf("app must be non-empty"))
	}
	if err := c.Launcher.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.ContainerEngine.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %d field error(s): %s", len(e.FieldErrors), errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidConfig followed by the field errors, so
// errors.Is() matches both the sentinel and the underlying causes.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Project:        "app",
		BaseImage:      "python:3.11.9-slim",
		Workdir:        "/app",
		OSPackages:     []string{"git", "curl"},
		Manifest:       "requirements.txt",
		InstallCommand: []string{"pip", "install", "--no-cache-dir", "-r", "requirements.txt"},
		Payload:        []types.FilesystemPath{"app/", "templates/", "static/"},
		Identity: Identity{
			Name: "appuser",
			UID:  1000,
			GID:  1000,
		},
		Port:            8000,
		Host:            "0.0.0.0",
		App:             "main:app",
		Launcher:        LauncherBuiltin,
		ContainerEngine: ContainerEngineDocker,
		CacheDir:        ".appboot",
	}
}
