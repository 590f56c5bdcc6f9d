// SPDX-License-Identifier: MPL-2.0

package container

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/appboot/appboot/internal/issue"
	"github.com/appboot/appboot/pkg/types"
)

func TestBuildArgs(t *testing.T) {
	t.Parallel()

	e := NewBaseCLIEngine("/usr/bin/docker")
	tests := []struct {
		name string
		opts BuildOptions
		want []string
	}{
		{
			name: "minimal",
			opts: BuildOptions{ContextDir: "/ctx"},
			want: []string{"build", "/ctx"},
		},
		{
			name: "containerfile relative to context",
			opts: BuildOptions{ContextDir: "/ctx", Dockerfile: "Containerfile", Tag: "appboot/app:abc", NoCache: true},
			want: []string{"build", "-f", "/ctx/Containerfile", "-t", "appboot/app:abc", "--no-cache", "/ctx"},
		},
		{
			name: "build args sorted",
			opts: BuildOptions{ContextDir: "/ctx", BuildArgs: map[string]string{"B": "2", "A": "1"}},
			want: []string{"build", "--build-arg", "A=1", "--build-arg", "B=2", "/ctx"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := e.BuildArgs(tt.opts); !slices.Equal(got, tt.want) {
				t.Errorf("BuildArgs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunArgs(t *testing.T) {
	t.Parallel()

	e := NewBaseCLIEngine("/usr/bin/podman")
	got := e.RunArgs(RunOptions{
		Image:   "appboot/app:abc",
		Command: []string{"id", "-u"},
		User:    "1000:1000",
		Env:     map[string]string{"Z": "1", "A": "2"},
		Ports:   []PortMapping{{HostPort: 18000, ContainerPort: 8000}},
		Remove:  true,
		Name:    "verify-uid",
	})
	want := []string{
		"run", "--rm", "--name", "verify-uid", "--user", "1000:1000",
		"-e", "A=2", "-e", "Z=1", "-p", "18000:8000",
		"appboot/app:abc", "id", "-u",
	}
	if !slices.Equal(got, want) {
		t.Errorf("RunArgs() = %v, want %v", got, want)
	}
}

func TestRunArgs_Transformer(t *testing.T) {
	t.Parallel()

	e := NewBaseCLIEngine("/usr/bin/podman", WithRunArgsTransformer(func(args []string) []string {
		return append([]string{args[0], "--userns=keep-id"}, args[1:]...)
	}))
	got := e.RunArgs(RunOptions{Image: "img"})
	if !slices.Equal(got, []string{"run", "--userns=keep-id", "img"}) {
		t.Errorf("RunArgs() = %v", got)
	}
}

func TestRemoveImageArgs(t *testing.T) {
	t.Parallel()

	e := NewBaseCLIEngine("docker")
	if got := e.RemoveImageArgs("img", true); !slices.Equal(got, []string{"rmi", "-f", "img"}) {
		t.Errorf("RemoveImageArgs(force) = %v", got)
	}
	if got := e.RemoveImageArgs("img", false); !slices.Equal(got, []string{"rmi", "img"}) {
		t.Errorf("RemoveImageArgs() = %v", got)
	}
}

func TestBuild_Success(t *testing.T) {
	t.Parallel()

	e, rec := newMockEngine(t, nil)
	err := e.Build(context.Background(), BuildOptions{ContextDir: "/ctx", Dockerfile: "Containerfile", Tag: "appboot/app:1"})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !rec.hasArgPair("-t", "appboot/app:1") {
		t.Errorf("build args %v missing tag", rec.lastArgs())
	}
}

func TestBuild_FailureIsActionable(t *testing.T) {
	t.Parallel()

	e, _ := newMockEngine(t, func(r *mockCommandRecorder) { r.exitCode = 100 })
	err := e.Build(context.Background(), BuildOptions{ContextDir: "/ctx", Tag: "appboot/app:1", Stderr: &bytes.Buffer{}})
	if err == nil {
		t.Fatal("Build() expected error")
	}

	var ae *issue.ActionableError
	if !errors.As(err, &ae) {
		t.Fatalf("Build() error type = %T, want *issue.ActionableError", err)
	}
	if ae.Resource != "appboot/app:1" {
		t.Errorf("Resource = %q", ae.Resource)
	}
	if id, ok := issue.KindOf(err); !ok || id != issue.PackageInstallFailedId {
		t.Errorf("KindOf() = %d, %v", id, ok)
	}
}

func TestBuild_RequiresContext(t *testing.T) {
	t.Parallel()

	e, rec := newMockEngine(t, nil)
	if err := e.Build(context.Background(), BuildOptions{}); err == nil {
		t.Error("Build() without context dir succeeded")
	}
	if rec.invocationCount() != 0 {
		t.Error("engine invoked without a context dir")
	}
}

func TestRun_ExitCodeCaptured(t *testing.T) {
	t.Parallel()

	e, _ := newMockEngine(t, func(r *mockCommandRecorder) {
		r.exitCode = 3
		r.stdout = "out"
	})
	var stdout bytes.Buffer
	res, err := e.Run(context.Background(), RunOptions{Image: "img", Stdout: &stdout})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ExitCode != types.ExitCode(3) || res.Error != nil {
		t.Errorf("Run() = %+v, want exit 3 without infrastructure error", res)
	}
	if stdout.String() != "out" {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestImageExists(t *testing.T) {
	t.Parallel()

	e, rec := newMockEngine(t, nil)
	ok, err := e.ImageExists(context.Background(), "img")
	if err != nil || !ok {
		t.Errorf("ImageExists() = %v, %v; want true", ok, err)
	}
	if !slices.Equal(rec.lastArgs(), []string{"image", "inspect", "img"}) {
		t.Errorf("args = %v", rec.lastArgs())
	}

	missing, _ := newMockEngine(t, func(r *mockCommandRecorder) { r.exitCode = 1 })
	if ok, _ := missing.ImageExists(context.Background(), "img"); ok {
		t.Error("ImageExists() = true for failing inspect")
	}
}

func TestInspectImage(t *testing.T) {
	t.Parallel()

	out := `[{"Id":"sha256:abc","Config":{"User":"appuser","ExposedPorts":{"9000/udp":{},"8000/tcp":{}},` +
		`"Cmd":["appboot","serve","--app","main:app"],"Entrypoint":null,"WorkingDir":"/app"}}]`
	e, _ := newMockEngine(t, func(r *mockCommandRecorder) { r.stdout = out })

	cfg, err := e.InspectImage(context.Background(), "img")
	if err != nil {
		t.Fatalf("InspectImage() error = %v", err)
	}
	if cfg.User != "appuser" || cfg.WorkingDir != "/app" {
		t.Errorf("InspectImage() = %+v", cfg)
	}
	if !slices.Equal(cfg.ExposedPorts, []string{"8000/tcp", "9000/udp"}) {
		t.Errorf("ExposedPorts = %v, want sorted", cfg.ExposedPorts)
	}
	if len(cfg.Entrypoint) != 0 || cfg.Cmd[0] != "appboot" {
		t.Errorf("Cmd/Entrypoint = %v / %v", cfg.Cmd, cfg.Entrypoint)
	}
}

func TestInspectImage_Errors(t *testing.T) {
	t.Parallel()

	failing, _ := newMockEngine(t, func(r *mockCommandRecorder) {
		r.exitCode = 1
		r.stderr = "Error: No such image: img"
	})
	_, err := failing.InspectImage(context.Background(), "img")
	if err == nil || !strings.Contains(err.Error(), "No such image") {
		t.Errorf("InspectImage() error = %v, want engine stderr", err)
	}

	if _, err := ParseImageInspect([]byte("[]")); !errors.Is(err, ErrImageNotFound) {
		t.Errorf("ParseImageInspect([]) error = %v, want ErrImageNotFound", err)
	}
	if _, err := ParseImageInspect([]byte("not json")); err == nil {
		t.Error("ParseImageInspect() accepted invalid JSON")
	}
}

func TestCreateCommand_EnvOverride(t *testing.T) {
	t.Parallel()

	rec := newMockCommandRecorder()
	e := NewBaseCLIEngine("docker", WithExecCommand(rec.commandFunc(t)), WithCmdEnvOverride("DOCKER_BUILDKIT", "1"))
	cmd := e.CreateCommand(context.Background(), "version")
	if !slices.Contains(cmd.Env, "DOCKER_BUILDKIT=1") {
		t.Error("env override not applied")
	}
}

func TestParsePortMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    PortMapping
		wantErr bool
	}{
		{in: "18000:8000", want: PortMapping{HostPort: 18000, ContainerPort: 8000}},
		{in: "53:53/udp", want: PortMapping{HostPort: 53, ContainerPort: 53, Protocol: PortProtocolUDP}},
		{in: "8000", wantErr: true},
		{in: "x:8000", wantErr: true},
		{in: "8000:0", wantErr: true},
		{in: "8000:8000/sctp", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParsePortMapping(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPortMapping) {
					t.Errorf("ParsePortMapping(%q) error = %v, want ErrInvalidPortMapping", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePortMapping(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParsePortMapping(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
			if FormatPortMapping(got) != tt.in {
				t.Errorf("FormatPortMapping() = %q, want %q", FormatPortMapping(got), tt.in)
			}
		})
	}
}

func TestEngineNames(t *testing.T) {
	t.Parallel()

	var _ Engine = NewDockerEngine()
	var _ Engine = NewPodmanEngine()

	if NewDockerEngine().Name() != "docker" || NewPodmanEngine().Name() != "podman" {
		t.Error("unexpected engine names")
	}
	if _, err := NewEngine("containerd"); err == nil {
		t.Error("NewEngine() accepted an unknown engine type")
	}
}

func TestPodmanImageExists(t *testing.T) {
	t.Parallel()

	rec := newMockCommandRecorder()
	e := NewPodmanEngine(WithExecCommand(rec.commandFunc(t)))
	if ok, _ := e.ImageExists(context.Background(), "img"); !ok {
		t.Error("ImageExists() = false")
	}
	if !slices.Equal(rec.lastArgs(), []string{"image", "exists", "img"}) {
		t.Errorf("args = %v", rec.lastArgs())
	}
}
