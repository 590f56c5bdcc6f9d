// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"regexp"
	"strings"

	"github.com/appboot/appboot/internal/app"
	"github.com/appboot/appboot/internal/config"
	"github.com/appboot/appboot/pkg/types"

	"mvdan.cc/sh/v3/syntax"
)

const (
	// LauncherPath is where the builtin launcher is installed in the image.
	LauncherPath = "/usr/local/bin/appboot"
	// LauncherContextName is the launcher's file name inside the build context.
	LauncherContextName = "appboot"

	// aptListsDir is purged in the same layer that installs OS packages.
	aptListsDir = "/var/lib/apt/lists/*"

	imageRepositoryPrefix = "appboot/"
	imageTagLength        = 12
)

var (
	// ErrPrivilegedIdentity is returned when the runtime uid or gid is 0.
	ErrPrivilegedIdentity = errors.New("runtime identity must not be root")
	// ErrPrivilegedPort is returned when the port cannot be bound by an unprivileged user.
	ErrPrivilegedPort = errors.New("port requires elevated privileges")
	// ErrEmptyManifest is returned when no dependency manifest or install command is configured.
	ErrEmptyManifest = errors.New("dependency manifest is empty")
	// ErrMalformedCommand is returned when a rendered RUN command is not valid shell.
	ErrMalformedCommand = errors.New("malformed shell command")
	// ErrReservedPath is returned when a payload entry collides with the launcher in the build context.
	ErrReservedPath = errors.New("payload path is reserved")

	accountNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_-]*$`)
)

type (
	// Manifest is the dependency manifest copied ahead of the payload.
	Manifest struct {
		// Path is the cleaned, project-relative manifest path.
		Path string
		// Install is the argv that installs the declared dependencies.
		Install []string
	}

	// Identity is the unprivileged account the image runs as.
	Identity struct {
		Name string
		UID  types.NumericID
		GID  types.NumericID
	}

	// Launch describes the image's startup command.
	Launch struct {
		Kind config.Launcher
		App  app.Ref
		Host string
		Port types.ListenPort
	}

	// Recipe is the validated, ordered build of an application image.
	Recipe struct {
		project        string
		base           BaseImage
		workdir        string
		packages       []string
		manifest       Manifest
		payload        []string
		identity       Identity
		launch         Launch
		launcherBinary string
		steps          []Step
	}

	// Option configures a Recipe.
	Option func(*Recipe)
)

// WithLauncherBinary sets the binary copied into builtin-launcher images.
// When unset, the running executable is used.
func WithLauncherBinary(path string) Option {
	return func(r *Recipe) {
		r.launcherBinary = path
	}
}

// New validates cfg and builds the ordered step list.
func New(cfg *config.Config, opts ...Option) (*Recipe, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	base, err := ParseBaseImage(cfg.BaseImage)
	if err != nil {
		return nil, err
	}

	if cfg.Identity.UID.IsRoot() {
		return nil, fmt.Errorf("uid %d: %w", cfg.Identity.UID, ErrPrivilegedIdentity)
	}
	if cfg.Identity.GID.IsRoot() {
		return nil, fmt.Errorf("gid %d: %w", cfg.Identity.GID, ErrPrivilegedIdentity)
	}
	if cfg.Identity.Name == "root" {
		return nil, fmt.Errorf("account %q: %w", cfg.Identity.Name, ErrPrivilegedIdentity)
	}
	if !accountNamePattern.MatchString(cfg.Identity.Name) {
		return nil, fmt.Errorf("invalid account name %q", cfg.Identity.Name)
	}

	if cfg.Port == 0 {
		return nil, fmt.Errorf("port must be set explicitly: %w", types.ErrInvalidListenPort)
	}
	if cfg.Port.IsPrivileged() {
		return nil, fmt.Errorf("port %d: %w", cfg.Port, ErrPrivilegedPort)
	}

	manifestPath, err := cfg.Manifest.Relative()
	if err != nil || manifestPath == "." {
		return nil, fmt.Errorf("manifest %q: %w", cfg.Manifest, ErrEmptyManifest)
	}
	if len(cfg.InstallCommand) == 0 || strings.TrimSpace(cfg.InstallCommand[0]) == "" {
		return nil, fmt.Errorf("install command: %w", ErrEmptyManifest)
	}

	ref, err := app.ParseRef(cfg.App)
	if err != nil {
		return nil, err
	}

	payload := make([]string, 0, len(cfg.Payload))
	for _, p := range cfg.Payload {
		rel, err := p.Relative()
		if err != nil {
			return nil, fmt.Errorf("payload: %w", err)
		}
		if cfg.Launcher == config.LauncherBuiltin && rel == LauncherContextName {
			return nil, fmt.Errorf("payload %q: %w", rel, ErrReservedPath)
		}
		payload = append(payload, rel)
	}

	r := &Recipe{
		project:  cfg.Project,
		base:     base,
		workdir:  path.Clean(string(cfg.Workdir)),
		packages: append([]string(nil), cfg.OSPackages...),
		manifest: Manifest{Path: manifestPath, Install: append([]string(nil), cfg.InstallCommand...)},
		payload:  payload,
		identity: Identity{Name: cfg.Identity.Name, UID: cfg.Identity.UID, GID: cfg.Identity.GID},
		launch:   Launch{Kind: cfg.Launcher, App: ref, Host: cfg.Host, Port: cfg.Port},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.launch.Kind == config.LauncherBuiltin && r.launcherBinary == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate launcher binary: %w", err)
		}
		r.launcherBinary = exe
	}

	if r.steps, err = r.buildSteps(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Recipe) buildSteps() ([]Step, error) {
	steps := []Step{
		{Kind: StepFrom, Instruction: "FROM " + r.base.String()},
		{Kind: StepWorkdir, Instruction: "WORKDIR " + r.workdir},
	}

	if len(r.packages) > 0 {
		pkgs, err := quoteAll(r.packages)
		if err != nil {
			return nil, fmt.Errorf("os packages: %w", err)
		}
		cmd := "apt-get update && apt-get install -y --no-install-recommends " + strings.Join(pkgs, " ") +
			" && rm -rf " + aptListsDir
		step, err := runStep(StepOSPackages, cmd)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}

	steps = append(steps, Step{
		Kind:        StepManifest,
		Instruction: "COPY " + r.manifest.Path + " .",
		Inputs:      []string{r.manifest.Path},
	})
	install, err := quoteAll(r.manifest.Install)
	if err != nil {
		return nil, fmt.Errorf("install command: %w", err)
	}
	step, err := runStep(StepInstall, strings.Join(install, " "))
	if err != nil {
		return nil, err
	}
	steps = append(steps, step)

	for _, p := range r.payload {
		steps = append(steps, Step{
			Kind:        StepPayload,
			Instruction: "COPY " + p + " ./" + p,
			Inputs:      []string{p},
		})
	}

	if r.launch.Kind == config.LauncherBuiltin {
		steps = append(steps, Step{
			Kind:        StepLauncher,
			Instruction: "COPY " + LauncherContextName + " " + LauncherPath,
			Inputs:      []string{r.launcherBinary},
		})
	}

	name, err := syntax.Quote(r.identity.Name, syntax.LangPOSIX)
	if err != nil {
		return nil, fmt.Errorf("account name: %w", err)
	}
	workdir, err := syntax.Quote(r.workdir, syntax.LangPOSIX)
	if err != nil {
		return nil, fmt.Errorf("workdir: %w", err)
	}
	identityCmd := fmt.Sprintf("groupadd -g %d %s && useradd -m -u %d -g %d %s && chown -R %s:%s %s",
		r.identity.GID, name, r.identity.UID, r.identity.GID, name, name, name, workdir)
	if step, err = runStep(StepIdentity, identityCmd); err != nil {
		return nil, err
	}
	steps = append(steps, step)

	cmd, err := json.Marshal(r.command())
	if err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}

	steps = append(steps,
		Step{Kind: StepUser, Instruction: "USER " + r.identity.Name},
		Step{Kind: StepExpose, Instruction: "EXPOSE " + r.launch.Port.String()},
		Step{Kind: StepCmd, Instruction: "CMD " + string(cmd)},
	)
	return steps, nil
}

// command returns the exec-form startup argv.
func (r *Recipe) command() []string {
	port := r.launch.Port.String()
	if r.launch.Kind == config.LauncherUvicorn {
		return []string{"uvicorn", r.launch.App.String(), "--host", r.launch.Host, "--port", port}
	}

	argv := []string{"appboot", "serve", "--app", r.launch.App.String(), "--host", r.launch.Host, "--port", port}
	defaults := config.DefaultConfig()
	if r.workdir != string(defaults.Workdir) {
		argv = append(argv, "--workdir", r.workdir)
	}
	if r.identity.UID != defaults.Identity.UID || r.identity.GID != defaults.Identity.GID {
		argv = append(argv, "--uid", r.identity.UID.String(), "--gid", r.identity.GID.String())
	}
	return argv
}

// runStep renders a RUN instruction after checking that cmd parses as POSIX shell.
func runStep(kind StepKind, cmd string) (Step, error) {
	parser := syntax.NewParser(syntax.Variant(syntax.LangPOSIX))
	if _, err := parser.Parse(strings.NewReader(cmd), string(kind)); err != nil {
		return Step{}, fmt.Errorf("%s step: %w: %w", kind, ErrMalformedCommand, err)
	}
	return Step{Kind: kind, Instruction: "RUN " + cmd}, nil
}

func quoteAll(words []string) ([]string, error) {
	out := make([]string, len(words))
	for i, w := range words {
		q, err := syntax.Quote(w, syntax.LangPOSIX)
		if err != nil {
			return nil, err
		}
		out[i] = q
	}
	return out, nil
}

// Steps returns the ordered build steps.
func (r *Recipe) Steps() []Step {
	out := make([]Step, len(r.steps))
	copy(out, r.steps)
	return out
}

// Render returns the Containerfile text.
func (r *Recipe) Render() string {
	var sb strings.Builder
	sb.WriteString("# Generated by appboot. Do not edit.\n")
	for _, s := range r.steps {
		sb.WriteString(s.Instruction)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// ImageTag returns the content-addressed image tag for a key chain.
func (r *Recipe) ImageTag(keys []LayerKey) string {
	repo := imageRepositoryPrefix + r.project
	if len(keys) == 0 {
		return repo
	}
	final := keys[len(keys)-1].Key
	if len(final) > imageTagLength {
		final = final[:imageTagLength]
	}
	return repo + ":" + final
}

// Project returns the project name.
func (r *Recipe) Project() string { return r.project }

// BaseImage returns the pinned base image.
func (r *Recipe) BaseImage() BaseImage { return r.base }

// Workdir returns the image working directory.
func (r *Recipe) Workdir() string { return r.workdir }

// Manifest returns the dependency manifest.
func (r *Recipe) Manifest() Manifest { return r.manifest }

// Payload returns the cleaned project-relative payload paths.
func (r *Recipe) Payload() []string { return append([]string(nil), r.payload...) }

// Identity returns the runtime identity.
func (r *Recipe) Identity() Identity { return r.identity }

// Launch returns the startup command settings.
func (r *Recipe) Launch() Launch { return r.launch }

// Command returns the exec-form CMD argv.
func (r *Recipe) Command() []string { return r.command() }

// LauncherBinary returns the host path of the launcher binary. It is empty
// unless the builtin launcher is selected.
func (r *Recipe) LauncherBinary() string { return r.launcherBinary }
