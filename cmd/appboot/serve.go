// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/appboot/appboot/internal/app"
	"github.com/appboot/appboot/internal/config"
	"github.com/appboot/appboot/internal/core/serverbase"
	"github.com/appboot/appboot/internal/identity"
	"github.com/appboot/appboot/internal/launch"
	"github.com/appboot/appboot/internal/server"
	"github.com/appboot/appboot/pkg/types"
)

type serveFlags struct {
	app                string
	host               string
	port               int
	workdir            string
	uid                int
	gid                int
	skipOwnershipCheck bool
	startupTimeout     time.Duration
	shutdownTimeout    time.Duration
}

func newServeCommand(a *App) *cobra.Command {
	var flags serveFlags
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the application as the unprivileged runtime identity",
		Long: `Serve the configured application. This is the image's startup command.

Before a socket is opened the application reference is resolved, root
privileges are dropped to the runtime identity and the working directory is
checked to belong to that identity. SIGINT and SIGTERM stop the server
gracefully.

Unset flags fall back to appboot.cue (when present) and APPBOOT_*
environment variables.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := serveOptions(cmd, a, flags)
			if err != nil {
				return a.fail(cmd, err)
			}
			if err := a.Launch(cmd.Context(), opts); err != nil {
				return a.fail(cmd, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.app, "app", defaults.App, "application reference (module:attribute)")
	cmd.Flags().StringVar(&flags.host, "host", defaults.Host, "listen host")
	cmd.Flags().IntVarP(&flags.port, "port", "p", int(defaults.Port), "listen port")
	cmd.Flags().StringVar(&flags.workdir, "workdir", string(defaults.Workdir), "working directory that must belong to the runtime identity")
	cmd.Flags().IntVar(&flags.uid, "uid", int(defaults.Identity.UID), "runtime user id")
	cmd.Flags().IntVar(&flags.gid, "gid", int(defaults.Identity.GID), "runtime group id")
	cmd.Flags().BoolVar(&flags.skipOwnershipCheck, "skip-ownership-check", false, "do not check workdir ownership (local runs)")
	cmd.Flags().DurationVar(&flags.startupTimeout, "startup-timeout", serverbase.DefaultStartupTimeout, "time allowed for the listener to come up")
	cmd.Flags().DurationVar(&flags.shutdownTimeout, "shutdown-timeout", serverbase.DefaultShutdownTimeout, "time allowed for in-flight requests on stop")
	return cmd
}

// serveOptions merges the configuration with explicitly set flags.
func serveOptions(cmd *cobra.Command, a *App, flags serveFlags) (launch.Options, error) {
	cfg, err := a.loadConfig(cmd.Context(), "")
	if err != nil {
		return launch.Options{}, err
	}

	changed := cmd.Flags().Changed
	if changed("app") {
		cfg.App = flags.app
	}
	if changed("host") {
		cfg.Host = flags.host
	}
	if changed("port") {
		cfg.Port = types.ListenPort(flags.port)
	}
	if changed("workdir") {
		cfg.Workdir = types.FilesystemPath(flags.workdir)
	}
	if changed("uid") {
		cfg.Identity.UID = types.NumericID(flags.uid)
	}
	if changed("gid") {
		cfg.Identity.GID = types.NumericID(flags.gid)
	}

	if err := cfg.Port.Validate(); err != nil {
		return launch.Options{}, err
	}
	target := identity.Identity{UID: cfg.Identity.UID, GID: cfg.Identity.GID}
	if err := target.Validate(); err != nil {
		return launch.Options{}, fmt.Errorf("runtime identity: %w", err)
	}

	srvCfg := server.DefaultConfig()
	srvCfg.Host = cfg.Host
	srvCfg.Port = cfg.Port
	srvCfg.StartupTimeout = flags.startupTimeout
	srvCfg.ShutdownTimeout = flags.shutdownTimeout

	env := app.Env{Name: cfg.Project}
	if Version != "dev" {
		env.Version = Version
	}

	logger := a.logger()
	return launch.Options{
		App:                cfg.App,
		Registry:           a.Registry,
		Env:                env,
		Server:             srvCfg,
		Workdir:            string(cfg.Workdir),
		Identity:           target,
		SkipOwnershipCheck: flags.skipOwnershipCheck,
		Logger:             logger,
		Ready: func(addr string) {
			logger.Debug("ready", "url", "http://"+addr)
		},
	}, nil
}

