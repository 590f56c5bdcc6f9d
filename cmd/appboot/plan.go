// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/appboot/appboot/internal/provision"
	"github.com/appboot/appboot/internal/recipe"
	"github.com/appboot/appboot/pkg/types"
)

type planFlags struct {
	dir   string
	quiet bool
}

func newPlanCommand(a *App) *cobra.Command {
	var flags planFlags

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the Containerfile and which layers would rebuild",
		Long: `Show the rendered Containerfile and compare every layer key against the
last recorded build. No container engine is needed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runPlan(cmd.Context(), a, flags); err != nil {
				return a.fail(cmd, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&flags.dir, "dir", "C", ".", "project directory")
	cmd.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "print only the Containerfile")
	return cmd
}

func runPlan(ctx context.Context, a *App, flags planFlags) error {
	root, err := filepath.Abs(flags.dir)
	if err != nil {
		return fmt.Errorf("resolve project directory: %w", err)
	}

	cfg, err := a.loadConfig(ctx, root)
	if err != nil {
		return err
	}

	r, err := recipe.New(cfg)
	if err != nil {
		return err
	}

	plan, err := provision.NewBuilder(nil, r,
		provision.WithCacheDir(types.FilesystemPath(cfg.CacheDir)),
		provision.WithLogger(a.logger()),
	).Plan(ctx, root)
	if err != nil {
		return err
	}

	if flags.quiet {
		fmt.Fprint(a.stdout, plan.Containerfile)
		return nil
	}

	fmt.Fprintln(a.stdout, TitleStyle.Render("Containerfile"))
	fmt.Fprintln(a.stdout, containerfileStyle.Render(strings.TrimRight(plan.Containerfile, "\n")))
	fmt.Fprintln(a.stdout)

	fmt.Fprintln(a.stdout, TitleStyle.Render("Layers"))
	printLayers(a.stdout, plan.Layers)
	fmt.Fprintln(a.stdout)

	rebuild := 0
	for _, l := range plan.Layers {
		if l.Status == recipe.StatusRebuild {
			rebuild++
		}
	}
	switch {
	case plan.Previous == nil:
		fmt.Fprintf(a.stdout, "%s No recorded build; every layer builds. Tag: %s\n", WarningStyle.Render("!"), CmdStyle.Render(plan.Tag))
	case rebuild == 0:
		fmt.Fprintf(a.stdout, "%s Up to date with %s\n", SuccessStyle.Render("✓"), CmdStyle.Render(plan.Previous.Tag))
	default:
		fmt.Fprintf(a.stdout, "%s %d of %d layer(s) rebuild. Tag: %s\n", WarningStyle.Render("!"), rebuild, len(plan.Layers), CmdStyle.Render(plan.Tag))
	}
	return nil
}
