// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/appboot/appboot/internal/issue"
	"github.com/appboot/appboot/pkg/types"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "appboot"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "appboot"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// EnvPrefix prefixes every environment override (APPBOOT_PORT, APPBOOT_IDENTITY_UID, ...).
	EnvPrefix = "APPBOOT"

	// maxConfigFileSize bounds the config file read into memory.
	maxConfigFileSize = 1 << 20
)

// ErrConfigExists is returned by WriteDefault when the target file is already present.
var ErrConfigExists = errors.New("config file already exists")

//go:embed config_schema.cue
var configSchema string

// FilePath returns the conventional config file location inside projectDir.
func FilePath(projectDir string) string {
	return filepath.Join(projectDir, ConfigFileName+"."+ConfigFileExt)
}

// loadWithOptions performs option-driven config loading without mutating
// package-level state.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	resolvedPath := ""
	switch {
	case opts.ConfigFilePath != "":
		if !fileExists(opts.ConfigFilePath) {
			return nil, issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithKind(issue.ConfigLoadFailedId).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Use 'appboot config init' to write a default appboot.cue").
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		resolvedPath = opts.ConfigFilePath
	case fileExists(FilePath(opts.ProjectDir)):
		resolvedPath = FilePath(opts.ProjectDir)
	}

	if resolvedPath != "" {
		if err := loadCUEIntoViper(v, resolvedPath); err != nil {
			return nil, issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(resolvedPath).
				WithKind(issue.ConfigLoadFailedId).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Verify the configuration values match the expected schema").
				WithSuggestion("Use 'appboot config show' to see the effective configuration").
				Wrap(err).
				BuildError()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Source = resolvedPath

	// Environment overrides bypass the CUE schema.
	if err := cfg.Validate(); err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(resolvedPath).
			WithKind(issue.ConfigLoadFailedId).
			WithSuggestion("Check APPBOOT_* environment variables for malformed values").
			Wrap(err).
			BuildError()
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("project", d.Project)
	v.SetDefault("base_image", d.BaseImage)
	v.SetDefault("workdir", string(d.Workdir))
	v.SetDefault("os_packages", d.OSPackages)
	v.SetDefault("manifest", string(d.Manifest))
	v.SetDefault("install_command", d.InstallCommand)
	v.SetDefault("payload", payloadStrings(d.Payload))
	v.SetDefault("identity.name", d.Identity.Name)
	v.SetDefault("identity.uid", int(d.Identity.UID))
	v.SetDefault("identity.gid", int(d.Identity.GID))
	v.SetDefault("port", int(d.Port))
	v.SetDefault("host", d.Host)
	v.SetDefault("app", d.App)
	v.SetDefault("launcher", string(d.Launcher))
	v.SetDefault("container_engine", string(d.ContainerEngine))
	v.SetDefault("cache_dir", d.CacheDir)
}

// loadCUEIntoViper parses a CUE file, validates it against the #Config schema,
// and merges its contents into Viper.
//
// Config decodes to map[string]any rather than a struct so that omitted
// fields keep their Viper defaults and environment overrides still apply.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if len(data) > maxConfigFileSize {
		return fmt.Errorf("%s: file size %d bytes exceeds maximum %d bytes", path, len(data), maxConfigFileSize)
	}

	ctx := cuecontext.New()

	schemaValue := ctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}

	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return formatCUEError(userValue.Err(), path)
	}

	schema := schemaValue.LookupPath(cue.ParsePath("#Config"))
	unified := schema.Unify(userValue)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return formatCUEError(err, path)
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return formatCUEError(err, path)
	}

	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}

	return nil
}

// formatCUEError flattens a CUE error list into "path: field: message" lines.
func formatCUEError(err error, filePath string) error {
	list := cueerrors.Errors(err)
	if len(list) == 0 {
		return fmt.Errorf("%s: %w", filePath, err)
	}

	lines := make([]string, 0, len(list))
	for _, e := range list {
		field := strings.Join(cueerrors.Path(e), ".")
		msg := e.Error()
		if field != "" && strings.HasPrefix(msg, field) {
			msg = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(msg, field), ":"))
		}
		if field != "" {
			lines = append(lines, field+": "+msg)
		} else {
			lines = append(lines, msg)
		}
	}

	if len(lines) == 1 {
		return fmt.Errorf("%s: %s", filePath, lines[0])
	}
	return fmt.Errorf("%s: validation failed:\n  %s", filePath, strings.Join(lines, "\n  "))
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// WriteDefault writes the default configuration to appboot.cue in projectDir
// and returns the written path. An existing file is never overwritten.
func WriteDefault(projectDir string) (string, error) {
	cfgPath := FilePath(projectDir)
	if _, err := os.Stat(cfgPath); err == nil {
		return cfgPath, fmt.Errorf("%s: %w", cfgPath, ErrConfigExists)
	}

	if projectDir != "" {
		if err := os.MkdirAll(projectDir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create project directory: %w", err)
		}
	}

	if err := os.WriteFile(cfgPath, []byte(GenerateCUE(DefaultConfig())), 0o644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}
	return cfgPath, nil
}

// GenerateCUE generates a CUE representation of the configuration
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// appboot project configuration\n\n")

	fmt.Fprintf(&sb, "project:    %q\n", cfg.Project)
	fmt.Fprintf(&sb, "base_image: %q\n", cfg.BaseImage)
	fmt.Fprintf(&sb, "workdir:    %q\n", cfg.Workdir)
	fmt.Fprintf(&sb, "os_packages: %s\n", cueList(cfg.OSPackages))
	fmt.Fprintf(&sb, "\nmanifest:        %q\n", cfg.Manifest)
	fmt.Fprintf(&sb, "install_command: %s\n", cueList(cfg.InstallCommand))
	fmt.Fprintf(&sb, "payload:         %s\n", cueList(payloadStrings(cfg.Payload)))

	sb.WriteString("\nidentity: {\n")
	fmt.Fprintf(&sb, "\tname: %q\n", cfg.Identity.Name)
	fmt.Fprintf(&sb, "\tuid:  %d\n", cfg.Identity.UID)
	fmt.Fprintf(&sb, "\tgid:  %d\n", cfg.Identity.GID)
	sb.WriteString("}\n")

	fmt.Fprintf(&sb, "\nport:     %d\n", cfg.Port)
	fmt.Fprintf(&sb, "host:     %q\n", cfg.Host)
	fmt.Fprintf(&sb, "app:      %q\n", cfg.App)
	fmt.Fprintf(&sb, "launcher: %q\n", cfg.Launcher)

	fmt.Fprintf(&sb, "\ncontainer_engine: %q\n", cfg.ContainerEngine)
	if cfg.CacheDir != "" {
		fmt.Fprintf(&sb, "cache_dir:        %q\n", cfg.CacheDir)
	}

	return sb.String()
}

func cueList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func payloadStrings(paths []types.FilesystemPath) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = string(p)
	}
	return out
}
