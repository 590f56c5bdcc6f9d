// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for appboot.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// NewRootCommand builds the appboot command tree around a.
func NewRootCommand(a *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "appboot",
		Short: "Bootstrap least-privilege application images",
		Long: TitleStyle.Render("appboot") + SubtitleStyle.Render(" - Bootstrap least-privilege application images") + `

appboot turns a project directory into a container image through a fixed,
ordered set of build layers, and serves the application inside it as an
unprivileged user on port 8000.

` + SubtitleStyle.Render("Examples:") + `
  appboot plan              Show the Containerfile and which layers rebuild
  appboot build             Build (or reuse) the project image
  appboot serve             Serve main:app (the image's startup command)
  appboot probe             Wait until the server accepts connections
  appboot config init       Write a default appboot.cue`,
		SilenceUsage: true,
	}
	rootCmd.SetOut(a.stdout)
	rootCmd.SetErr(a.stderr)

	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&a.configFile, "config", "", "config file (default is ./appboot.cue in the project directory)")

	rootCmd.AddCommand(
		newBuildCommand(a),
		newPlanCommand(a),
		newServeCommand(a),
		newProbeCommand(a),
		newConfigCommand(a),
	)
	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI and exits the process with the command's exit code.
func Execute() {
	rootCmd := NewRootCommand(NewApp(Dependencies{}))

	// fang overrides rootCmd.Version, so the version is passed as an option.
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM),
		fang.WithErrorHandler(errorHandler),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(int(exitErr.Code))
		}
		os.Exit(1)
	}
}

// errorHandler leaves ExitErrors alone; they were rendered by the command.
func errorHandler(w io.Writer, styles fang.Styles, err error) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return
	}
	fang.DefaultErrorHandler(w, styles, err)
}
