// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/appboot/appboot/internal/issue"
	"github.com/appboot/appboot/pkg/types"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := FilePath(dir)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
	if cfg.Port != 8000 {
		t.Errorf("Port = %d, want 8000", cfg.Port)
	}
	if cfg.Host != "0.0.0.0" {
		t.Errorf("Host = %q, want 0.0.0.0", cfg.Host)
	}
	if cfg.App != "main:app" {
		t.Errorf("App = %q, want main:app", cfg.App)
	}
	if cfg.Identity.UID != 1000 || cfg.Identity.GID != 1000 {
		t.Errorf("Identity = %+v, want uid/gid 1000", cfg.Identity)
	}
	if cfg.Workdir != "/app" {
		t.Errorf("Workdir = %q, want /app", cfg.Workdir)
	}
	want := []types.FilesystemPath{"app/", "templates/", "static/"}
	if len(cfg.Payload) != len(want) {
		t.Fatalf("Payload = %v, want %v", cfg.Payload, want)
	}
	for i := range want {
		if cfg.Payload[i] != want[i] {
			t.Errorf("Payload[%d] = %q, want %q", i, cfg.Payload[i], want[i])
		}
	}
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := NewProvider().Load(context.Background(), LoadOptions{ProjectDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Source != "" {
		t.Errorf("Source = %q, want empty", cfg.Source)
	}
	if cfg.Project != DefaultConfig().Project {
		t.Errorf("Project = %q, want %q", cfg.Project, DefaultConfig().Project)
	}
}

func TestLoad_ProjectFileOverridesDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeConfig(t, dir, `
project: "shop"
base_image: "python:3.12.4-slim"
os_packages: ["git"]
identity: { uid: 1001 }
port: 9000
launcher: "uvicorn"
container_engine: "podman"
`)

	cfg, err := NewProvider().Load(context.Background(), LoadOptions{ProjectDir: dir})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Source != path {
		t.Errorf("Source = %q, want %q", cfg.Source, path)
	}
	if cfg.Project != "shop" {
		t.Errorf("Project = %q, want shop", cfg.Project)
	}
	if cfg.BaseImage != "python:3.12.4-slim" {
		t.Errorf("BaseImage = %q", cfg.BaseImage)
	}
	if len(cfg.OSPackages) != 1 || cfg.OSPackages[0] != "git" {
		t.Errorf("OSPackages = %v, want [git]", cfg.OSPackages)
	}
	if cfg.Identity.UID != 1001 {
		t.Errorf("Identity.UID = %d, want 1001", cfg.Identity.UID)
	}
	if cfg.Identity.GID != 1000 {
		t.Errorf("Identity.GID = %d, want default 1000", cfg.Identity.GID)
	}
	if cfg.Identity.Name != "appuser" {
		t.Errorf("Identity.Name = %q, want default appuser", cfg.Identity.Name)
	}
	if cfg.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Port)
	}
	if cfg.Launcher != LauncherUvicorn {
		t.Errorf("Launcher = %q, want uvicorn", cfg.Launcher)
	}
	if cfg.ContainerEngine != ContainerEnginePodman {
		t.Errorf("ContainerEngine = %q, want podman", cfg.ContainerEngine)
	}
}

func TestLoad_SchemaViolations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		field   string
	}{
		{name: "root uid", content: `identity: { uid: 0 }`, field: "identity.uid"},
		{name: "privileged port", content: `port: 80`, field: "port"},
		{name: "relative workdir", content: `workdir: "app"`, field: "workdir"},
		{name: "unknown launcher", content: `launcher: "gunicorn"`, field: "launcher"},
		{name: "malformed app ref", content: `app: "main.app"`, field: "app"},
		{name: "unknown field", content: `entrypoint: "main"`, field: "entrypoint"},
		{name: "empty install command", content: `install_command: []`, field: "install_command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			writeConfig(t, dir, tt.content)

			_, err := NewProvider().Load(context.Background(), LoadOptions{ProjectDir: dir})
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if kind, ok := issue.KindOf(err); !ok || kind != issue.ConfigLoadFailedId {
				t.Errorf("KindOf() = %v, %v, want ConfigLoadFailedId", kind, ok)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.field)
			}
		})
	}
}

func TestLoad_InvalidSyntax(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeConfig(t, dir, `port: [`)

	if _, err := NewProvider().Load(context.Background(), LoadOptions{ProjectDir: dir}); err == nil {
		t.Fatal("Load() expected error for invalid CUE")
	}
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "nope.cue")
	_, err := NewProvider().Load(context.Background(), LoadOptions{ConfigFilePath: missing})
	if err == nil {
		t.Fatal("Load() expected error for missing explicit file")
	}
	var ae *issue.ActionableError
	if !errors.As(err, &ae) {
		t.Fatalf("error type = %T, want *issue.ActionableError", err)
	}
	if ae.Resource != missing {
		t.Errorf("Resource = %q, want %q", ae.Resource, missing)
	}
}

func TestLoad_ExplicitFileWinsOverProjectDir(t *testing.T) {
	t.Parallel()

	projectDir := t.TempDir()
	writeConfig(t, projectDir, `project: "from-project"`)

	otherDir := t.TempDir()
	explicit := writeConfig(t, otherDir, `project: "from-flag"`)

	cfg, err := NewProvider().Load(context.Background(), LoadOptions{ConfigFilePath: explicit, ProjectDir: projectDir})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Project != "from-flag" {
		t.Errorf("Project = %q, want from-flag", cfg.Project)
	}
}

func TestLoad_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewProvider().Load(ctx, LoadOptions{ProjectDir: t.TempDir()})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Load() error = %v, want context.Canceled", err)
	}
}

// Environment tests mutate process state and must not run in parallel.
func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("APPBOOT_PORT", "8080")
	t.Setenv("APPBOOT_IDENTITY_UID", "1500")
	t.Setenv("APPBOOT_APP", "api:router")

	cfg, err := NewProvider().Load(context.Background(), LoadOptions{ProjectDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.Identity.UID != 1500 {
		t.Errorf("Identity.UID = %d, want 1500", cfg.Identity.UID)
	}
	if cfg.App != "api:router" {
		t.Errorf("App = %q, want api:router", cfg.App)
	}
}

func TestLoad_EnvOverrideValidated(t *testing.T) {
	t.Setenv("APPBOOT_LAUNCHER", "gunicorn")

	_, err := NewProvider().Load(context.Background(), LoadOptions{ProjectDir: t.TempDir()})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Load() error = %v, want ErrInvalidConfig", err)
	}
	if !errors.Is(err, ErrInvalidLauncher) {
		t.Errorf("Load() error = %v, want ErrInvalidLauncher in chain", err)
	}
}

func TestWriteDefault_RoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path, err := WriteDefault(dir)
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if path != FilePath(dir) {
		t.Errorf("path = %q, want %q", path, FilePath(dir))
	}

	cfg, err := NewProvider().Load(context.Background(), LoadOptions{ProjectDir: dir})
	if err != nil {
		t.Fatalf("Load() of generated file error = %v", err)
	}
	if cfg.Source != path {
		t.Errorf("Source = %q, want %q", cfg.Source, path)
	}
	if GenerateCUE(cfg) != GenerateCUE(DefaultConfig()) {
		t.Errorf("generated config does not round-trip:\n%s", GenerateCUE(cfg))
	}

	if _, err := WriteDefault(dir); !errors.Is(err, ErrConfigExists) {
		t.Errorf("second WriteDefault() error = %v, want ErrConfigExists", err)
	}
}
