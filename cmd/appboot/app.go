// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/appboot/appboot/internal/app"
	"github.com/appboot/appboot/internal/config"
	"github.com/appboot/appboot/internal/container"
	"github.com/appboot/appboot/internal/launch"
)

type (
	// App wires CLI services and shared dependencies. Every Cobra handler
	// receives an App and delegates through its fields.
	App struct {
		Config   ConfigProvider
		Engines  EngineFactory
		Registry *app.Registry
		Launch   LaunchFunc
		Probe    ProbeFunc
		stdout   io.Writer
		stderr   io.Writer

		// Global flag values.
		configFile string
		verbose    bool
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config   ConfigProvider
		Engines  EngineFactory
		Registry *app.Registry
		Launch   LaunchFunc
		Probe    ProbeFunc
		Stdout   io.Writer
		Stderr   io.Writer
	}

	// ConfigProvider loads configuration using explicit options.
	ConfigProvider interface {
		Load(ctx context.Context, opts config.LoadOptions) (*config.Config, error)
	}

	// EngineFactory returns a usable container engine, preferring the given type.
	EngineFactory func(preferred container.EngineType) (container.Engine, error)

	// LaunchFunc serves an application until ctx is cancelled.
	LaunchFunc func(ctx context.Context, opts launch.Options) error

	// ProbeFunc waits until addr accepts TCP connections.
	ProbeFunc func(ctx context.Context, addr string, timeout time.Duration) error
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	if deps.Engines == nil {
		deps.Engines = container.NewEngine
	}
	if deps.Registry == nil {
		deps.Registry = app.Default()
	}
	if deps.Launch == nil {
		deps.Launch = launch.Run
	}
	if deps.Probe == nil {
		deps.Probe = launch.Probe
	}

	return &App{
		Config:   deps.Config,
		Engines:  deps.Engines,
		Registry: deps.Registry,
		Launch:   deps.Launch,
		Probe:    deps.Probe,
		stdout:   deps.Stdout,
		stderr:   deps.Stderr,
	}
}

// loadConfig loads the project configuration of dir, honouring --config.
func (a *App) loadConfig(ctx context.Context, dir string) (*config.Config, error) {
	return a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: a.configFile, ProjectDir: dir})
}

// logger returns the CLI logger. --verbose lowers the level to debug.
func (a *App) logger() *log.Logger {
	level := log.InfoLevel
	if a.verbose {
		level = log.DebugLevel
	}
	return log.NewWithOptions(a.stderr, log.Options{
		Prefix:          config.AppName,
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	})
}

// fail renders err for the user and returns an ExitError so that fang does
// not print it a second time.
func (a *App) fail(cmd *cobra.Command, err error) error {
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	issueID, styled := classifyError(err, a.verbose)
	renderServiceError(a.stderr, newServiceError(err, issueID, styled), a.verbose)
	return &ExitError{Code: exitCodeOf(err), Err: err}
}
