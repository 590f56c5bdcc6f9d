// SPDX-License-Identifier: MPL-2.0

package container

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/appboot/appboot/internal/issue"
	"github.com/appboot/appboot/pkg/types"
)

const (
	// PortProtocolTCP is the default transport protocol.
	PortProtocolTCP PortProtocol = "tcp"
	// PortProtocolUDP is the UDP transport protocol.
	PortProtocolUDP PortProtocol = "udp"
)

var (
	// ErrInvalidPortMapping is the sentinel error wrapped by InvalidPortMappingError.
	ErrInvalidPortMapping = errors.New("invalid port mapping")
	// ErrImageNotFound is returned by InspectImage when the engine reports no such image.
	ErrImageNotFound = errors.New("image not found")
)

type (
	// ExecCommandFunc creates an exec.Cmd. It is replaceable for tests.
	ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

	// RunArgsTransformer rewrites the run argument list before execution.
	RunArgsTransformer func(args []string) []string

	// BaseCLIEngineOption configures a BaseCLIEngine.
	BaseCLIEngineOption func(*BaseCLIEngine)

	// BaseCLIEngine holds the CLI plumbing shared by Docker and Podman.
	BaseCLIEngine struct {
		name               string
		binaryPath         string
		execCommand        ExecCommandFunc
		runArgsTransformer RunArgsTransformer
		cmdEnvOverrides    map[string]string
	}

	// PortProtocol is a transport protocol for a published port.
	PortProtocol string

	// PortMapping publishes a container port on the host.
	PortMapping struct {
		HostPort      types.ListenPort
		ContainerPort types.ListenPort
		Protocol      PortProtocol
	}

	// InvalidPortMappingError is returned when a PortMapping has invalid fields.
	InvalidPortMappingError struct {
		Value  string
		Reason string
	}

	// inspectRecord is one element of the `image inspect` JSON array.
	inspectRecord struct {
		Config struct {
			User         string              `json:"User"`
			ExposedPorts map[string]struct{} `json:"ExposedPorts"`
			Cmd          []string            `json:"Cmd"`
			Entrypoint   []string            `json:"Entrypoint"`
			WorkingDir   string              `json:"WorkingDir"`
		} `json:"Config"`
	}
)

// --- Option Functions ---

// WithName sets the engine name used in error messages.
func WithName(name string) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.name = name
	}
}

// WithExecCommand sets a custom exec command function for testing.
func WithExecCommand(fn ExecCommandFunc) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.execCommand = fn
	}
}

// WithRunArgsTransformer sets a custom run args transformer.
func WithRunArgsTransformer(fn RunArgsTransformer) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.runArgsTransformer = fn
	}
}

// WithCmdEnvOverride adds an environment variable applied to every exec.Cmd
// created by this engine.
func WithCmdEnvOverride(key, value string) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		if e.cmdEnvOverrides == nil {
			e.cmdEnvOverrides = make(map[string]string)
		}
		e.cmdEnvOverrides[key] = value
	}
}

// NewBaseCLIEngine creates a new base engine with the given binary path.
func NewBaseCLIEngine(binaryPath string, opts ...BaseCLIEngineOption) *BaseCLIEngine {
	e := &BaseCLIEngine{
		binaryPath:         binaryPath,
		execCommand:        exec.CommandContext,
		runArgsTransformer: func(args []string) []string { return args },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BinaryPath returns the path to the container engine binary.
func (e *BaseCLIEngine) BinaryPath() string {
	return e.binaryPath
}

// --- Argument Builders ---

// BuildArgs constructs arguments for a container build command.
//
// Generated command: <binary> build [options] <context>
func (e *BaseCLIEngine) BuildArgs(opts BuildOptions) []string {
	args := []string{"build"}

	if opts.Dockerfile != "" {
		dockerfilePath := opts.Dockerfile
		if !filepath.IsAbs(dockerfilePath) && opts.ContextDir != "" {
			dockerfilePath = filepath.Join(opts.ContextDir, dockerfilePath)
		}
		args = append(args, "-f", dockerfilePath)
	}

	if opts.Tag != "" {
		args = append(args, "-t", opts.Tag)
	}

	if opts.NoCache {
		args = append(args, "--no-cache")
	}

	// Sorted for reproducible command lines.
	for _, k := range slices.Sorted(maps.Keys(opts.BuildArgs)) {
		args = append(args, "--build-arg", k+"="+opts.BuildArgs[k])
	}

	args = append(args, opts.ContextDir)

	return args
}

// RunArgs constructs arguments for a container run command.
//
// Generated command: <binary> run [options] <image> [command...]
func (e *BaseCLIEngine) RunArgs(opts RunOptions) []string {
	args := []string{"run"}

	if opts.Remove {
		args = append(args, "--rm")
	}
	if opts.Name != "" {
		args = append(args, "--name", opts.Name)
	}
	if opts.User != "" {
		args = append(args, "--user", opts.User)
	}
	for _, k := range slices.Sorted(maps.Keys(opts.Env)) {
		args = append(args, "-e", k+"="+opts.Env[k])
	}
	for _, p := range opts.Ports {
		args = append(args, "-p", FormatPortMapping(p))
	}

	args = append(args, opts.Image)
	args = append(args, opts.Command...)

	return e.runArgsTransformer(args)
}

// RemoveImageArgs constructs arguments for an image remove command.
func (e *BaseCLIEngine) RemoveImageArgs(image string, force bool) []string {
	args := []string{"rmi"}
	if force {
		args = append(args, "-f")
	}
	return append(args, image)
}

// --- Command Execution ---

// RunCommandStatus executes a command and returns only the error status.
func (e *BaseCLIEngine) RunCommandStatus(ctx context.Context, args ...string) error {
	cmd := e.CreateCommand(ctx, args...)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("command %s %v failed: %w", e.binaryPath, args, err)
	}
	return nil
}

// RunCommandWithOutput executes a command with stdout captured to a buffer.
func (e *BaseCLIEngine) RunCommandWithOutput(ctx context.Context, args ...string) (string, error) {
	cmd := e.CreateCommand(ctx, args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("command %s %v failed: %w: %s", e.binaryPath, args, err, msg)
		}
		return "", fmt.Errorf("command %s %v failed: %w", e.binaryPath, args, err)
	}

	return out.String(), nil
}

// CreateCommand creates an exec.Cmd for the given arguments with engine-level
// environment overrides applied.
func (e *BaseCLIEngine) CreateCommand(ctx context.Context, args ...string) *exec.Cmd {
	cmd := e.execCommand(ctx, e.binaryPath, args...)
	if len(e.cmdEnvOverrides) > 0 {
		// A non-nil Env replaces the inherited environment entirely.
		cmd.Env = os.Environ()
		for k, v := range e.cmdEnvOverrides {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	return cmd
}

// --- Promoted Engine Methods (shared by Docker and Podman) ---

// Build builds an image from a Containerfile.
func (e *BaseCLIEngine) Build(ctx context.Context, opts BuildOptions) error {
	if opts.ContextDir == "" {
		return fmt.Errorf("build context directory is required")
	}

	cmd := e.CreateCommand(ctx, e.BuildArgs(opts)...)
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr

	if err := cmd.Run(); err != nil {
		return buildContainerError(e.name, opts, err)
	}
	return nil
}

// Run runs a command in a container and returns the result.
// A non-zero exit code is captured in RunResult.ExitCode (not returned as error).
// Only infrastructure failures (binary not found, etc.) set RunResult.Error.
func (e *BaseCLIEngine) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	if opts.Image == "" {
		return nil, fmt.Errorf("image is required")
	}

	cmd := e.CreateCommand(ctx, e.RunArgs(opts)...)
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr

	result := &RunResult{}
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = types.ExitCode(exitErr.ExitCode())
		} else {
			result.ExitCode = types.ExitFailure
			result.Error = err
		}
	}
	return result, nil
}

// ImageExists checks if an image exists using `image inspect`.
func (e *BaseCLIEngine) ImageExists(ctx context.Context, image string) (bool, error) {
	err := e.RunCommandStatus(ctx, "image", "inspect", image)
	return err == nil, nil
}

// RemoveImage removes an image.
func (e *BaseCLIEngine) RemoveImage(ctx context.Context, image string, force bool) error {
	return e.RunCommandStatus(ctx, e.RemoveImageArgs(image, force)...)
}

// InspectImage returns the runtime configuration of an image.
func (e *BaseCLIEngine) InspectImage(ctx context.Context, image string) (*ImageConfig, error) {
	out, err := e.RunCommandWithOutput(ctx, "image", "inspect", image)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", image, err)
	}
	return ParseImageInspect([]byte(out))
}

// ParseImageInspect decodes `image inspect` output. Docker and Podman both
// emit a JSON array with one record per image.
func ParseImageInspect(data []byte) (*ImageConfig, error) {
	var records []inspectRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode image inspect output: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrImageNotFound
	}

	c := records[0].Config
	return &ImageConfig{
		User:         c.User,
		ExposedPorts: slices.Sorted(maps.Keys(c.ExposedPorts)),
		Cmd:          c.Cmd,
		Entrypoint:   c.Entrypoint,
		WorkingDir:   c.WorkingDir,
	}, nil
}

// --- Port Mapping Formatting ---

// Validate returns an error if either port is out of range or the protocol is unknown.
func (p PortMapping) Validate() error {
	if p.HostPort < 1 || p.HostPort.Validate() != nil {
		return &InvalidPortMappingError{Value: FormatPortMapping(p), Reason: "host port must be 1-65535"}
	}
	if p.ContainerPort < 1 || p.ContainerPort.Validate() != nil {
		return &InvalidPortMappingError{Value: FormatPortMapping(p), Reason: "container port must be 1-65535"}
	}
	switch p.Protocol {
	case "", PortProtocolTCP, PortProtocolUDP:
		return nil
	default:
		return &InvalidPortMappingError{Value: FormatPortMapping(p), Reason: fmt.Sprintf("unknown protocol %q", p.Protocol)}
	}
}

// Error implements the error interface for InvalidPortMappingError.
func (e *InvalidPortMappingError) Error() string {
	return fmt.Sprintf("invalid port mapping %q: %s", e.Value, e.Reason)
}

// Unwrap returns ErrInvalidPortMapping for errors.Is() compatibility.
func (e *InvalidPortMappingError) Unwrap() error { return ErrInvalidPortMapping }

// FormatPortMapping formats a port mapping as a string for the -p flag.
func FormatPortMapping(mapping PortMapping) string {
	result := fmt.Sprintf("%d:%d", mapping.HostPort, mapping.ContainerPort)
	if mapping.Protocol != "" && mapping.Protocol != PortProtocolTCP {
		result += "/" + string(mapping.Protocol)
	}
	return result
}

// ParsePortMapping parses "hostPort:containerPort[/protocol]".
func ParsePortMapping(portStr string) (PortMapping, error) {
	mapping := PortMapping{}

	host, container, ok := strings.Cut(portStr, ":")
	if !ok {
		return mapping, &InvalidPortMappingError{Value: portStr, Reason: "must contain ':' separator"}
	}

	hostPort, err := strconv.ParseUint(host, 10, 16)
	if err != nil {
		return mapping, &InvalidPortMappingError{Value: portStr, Reason: fmt.Sprintf("host port %q is not a number", host)}
	}
	mapping.HostPort = types.ListenPort(hostPort)

	port, proto, hasProto := strings.Cut(container, "/")
	containerPort, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return mapping, &InvalidPortMappingError{Value: portStr, Reason: fmt.Sprintf("container port %q is not a number", port)}
	}
	mapping.ContainerPort = types.ListenPort(containerPort)
	if hasProto {
		mapping.Protocol = PortProtocol(proto)
	}

	if err := mapping.Validate(); err != nil {
		return mapping, err
	}
	return mapping, nil
}

// --- Actionable Error Helpers ---

// buildContainerError creates an actionable error for container build failures.
// Package and dependency installation run inside the build, so their failures
// surface here.
func buildContainerError(engine string, opts BuildOptions, cause error) error {
	ctx := issue.NewErrorContext().
		WithOperation("build container image").
		WithKind(issue.PackageInstallFailedId)

	switch {
	case opts.Tag != "":
		ctx.WithResource(opts.Tag)
	case opts.Dockerfile != "":
		ctx.WithResource(opts.Dockerfile)
	default:
		ctx.WithResource(opts.ContextDir)
	}

	ctx.WithSuggestion("Check the os_packages names exist in the base image's apt repositories")
	ctx.WithSuggestion("Verify the dependency manifest installs cleanly with the install_command")
	ctx.WithSuggestion("Ensure the base image is reachable (try: " + engine + " pull <base-image>)")
	ctx.WithSuggestion("Run with --verbose to see full build output")

	return ctx.Wrap(cause).BuildError()
}
