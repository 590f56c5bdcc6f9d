// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/appboot/appboot/internal/config"
)

// newConfigCommand creates the `appboot config` command tree.
func newConfigCommand(a *App) *cobra.Command {
	var dir string

	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the project configuration",
		Long: `Manage the project configuration.

Configuration is read from appboot.cue in the project directory (or --config)
and overridden by APPBOOT_* environment variables.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cfgCmd.PersistentFlags().StringVarP(&dir, "dir", "C", ".", "project directory")

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := showConfig(cmd.Context(), a, dir); err != nil {
				return a.fail(cmd, err)
			}
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default appboot.cue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.WriteDefault(dir)
			if err != nil {
				return a.fail(cmd, err)
			}
			fmt.Fprintf(a.stdout, "%s Created default configuration at %s\n", SuccessStyle.Render("✓"), path)
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Output the effective configuration as CUE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd.Context(), dir)
			if err != nil {
				return a.fail(cmd, err)
			}
			fmt.Fprint(a.stdout, config.GenerateCUE(cfg))
			return nil
		},
	})

	return cfgCmd
}

func showConfig(ctx context.Context, a *App, dir string) error {
	cfg, err := a.loadConfig(ctx, dir)
	if err != nil {
		return err
	}

	keyStyle := CmdStyle
	valueStyle := SuccessStyle
	line := func(key string, value any) {
		fmt.Fprintf(a.stdout, "%s: %s\n", keyStyle.Render(key), valueStyle.Render(fmt.Sprint(value)))
	}

	fmt.Fprintln(a.stdout, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(a.stdout)
	if cfg.Source != "" {
		fmt.Fprintf(a.stdout, "%s: %s\n", keyStyle.Render("Config file"), cfg.Source)
	} else {
		fmt.Fprintf(a.stdout, "%s: %s\n", keyStyle.Render("Config file"), SubtitleStyle.Render("(using defaults)"))
	}
	fmt.Fprintln(a.stdout)

	line("project", cfg.Project)
	line("base_image", cfg.BaseImage)
	line("workdir", cfg.Workdir)
	line("os_packages", strings.Join(cfg.OSPackages, " "))
	line("manifest", cfg.Manifest)
	line("install_command", strings.Join(cfg.InstallCommand, " "))
	payload := make([]string, len(cfg.Payload))
	for i, p := range cfg.Payload {
		payload[i] = string(p)
	}
	line("payload", strings.Join(payload, " "))

	fmt.Fprintln(a.stdout)
	fmt.Fprintf(a.stdout, "%s:\n", keyStyle.Render("identity"))
	fmt.Fprintf(a.stdout, "  name: %s\n", valueStyle.Render(cfg.Identity.Name))
	fmt.Fprintf(a.stdout, "  uid: %s\n", valueStyle.Render(cfg.Identity.UID.String()))
	fmt.Fprintf(a.stdout, "  gid: %s\n", valueStyle.Render(cfg.Identity.GID.String()))
	fmt.Fprintln(a.stdout)

	line("host", cfg.Host)
	line("port", cfg.Port)
	line("app", cfg.App)
	line("launcher", cfg.Launcher)
	line("container_engine", cfg.ContainerEngine)
	line("cache_dir", cfg.CacheDir)
	return nil
}
