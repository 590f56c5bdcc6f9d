// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/appboot/appboot/internal/config"
	"github.com/appboot/appboot/internal/container"
	"github.com/appboot/appboot/internal/issue"
	"github.com/appboot/appboot/internal/provision"
	"github.com/appboot/appboot/internal/recipe"
	"github.com/appboot/appboot/pkg/types"
)

type buildFlags struct {
	dir       string
	tag       string
	engine    string
	buildRoot string
	noCache   bool
	force     bool
	verify    bool
}

func newBuildCommand(a *App) *cobra.Command {
	var flags buildFlags

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the project image",
		Long: `Build the project image.

The image is tagged with a key derived from every build layer. When an image
with that tag already exists the build is skipped unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runBuild(cmd.Context(), a, flags); err != nil {
				return a.fail(cmd, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&flags.dir, "dir", "C", ".", "project directory")
	cmd.Flags().StringVarP(&flags.tag, "tag", "t", "", "override the content-addressed image tag")
	cmd.Flags().StringVar(&flags.engine, "engine", "", "container engine to prefer (docker|podman)")
	cmd.Flags().StringVar(&flags.buildRoot, "build-root", "", "directory for staged build contexts (default ~/appboot-build)")
	cmd.Flags().BoolVar(&flags.noCache, "no-cache", false, "disable the engine's layer cache")
	cmd.Flags().BoolVar(&flags.force, "force", false, "rebuild even when the image exists")
	cmd.Flags().BoolVar(&flags.verify, "verify", false, "inspect the built image and check its user, port and command")
	return cmd
}

func runBuild(ctx context.Context, a *App, flags buildFlags) error {
	root, err := filepath.Abs(flags.dir)
	if err != nil {
		return fmt.Errorf("resolve project directory: %w", err)
	}

	cfg, err := a.loadConfig(ctx, root)
	if err != nil {
		return err
	}
	if flags.engine != "" {
		cfg.ContainerEngine = config.ContainerEngine(flags.engine)
		if err := cfg.ContainerEngine.Validate(); err != nil {
			return err
		}
	}

	r, err := recipe.New(cfg)
	if err != nil {
		return err
	}

	engine, err := a.Engines(container.EngineType(cfg.ContainerEngine))
	if err != nil {
		return issue.NewErrorContext().
			WithOperation("select container engine").
			WithResource(string(cfg.ContainerEngine)).
			WithKind(issue.ContainerEngineNotFoundId).
			WithSuggestion("Install Docker or Podman and make sure the daemon or socket is running").
			WithSuggestion("Set container_engine in appboot.cue or pass --engine").
			Wrap(err).
			BuildError()
	}

	logger := a.logger()
	var engineOut io.Writer = io.Discard
	if a.verbose {
		engineOut = a.stderr
	}

	opts := []provision.Option{
		provision.WithForceRebuild(flags.force),
		provision.WithNoCache(flags.noCache),
		provision.WithTag(flags.tag),
		provision.WithCacheDir(types.FilesystemPath(cfg.CacheDir)),
		provision.WithOutput(engineOut, engineOut),
		provision.WithLogger(logger),
	}
	if flags.buildRoot != "" {
		opts = append(opts, provision.WithBuildRoot(types.FilesystemPath(flags.buildRoot)))
	}
	b := provision.NewBuilder(engine, r, opts...)

	result, err := b.Build(ctx, root)
	if err != nil {
		return err
	}

	printLayers(a.stdout, result.Layers)
	fmt.Fprintln(a.stdout)
	if result.Cached {
		fmt.Fprintf(a.stdout, "%s Image %s is up to date\n", SuccessStyle.Render("✓"), CmdStyle.Render(result.Tag))
	} else {
		fmt.Fprintf(a.stdout, "%s Built %s in %s (%d attempt(s))\n",
			SuccessStyle.Render("✓"), CmdStyle.Render(result.Tag), result.Duration.Round(time.Millisecond), result.Attempts)
	}

	if !flags.verify {
		return nil
	}
	if err := b.Verify(ctx, result.Tag); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "%s Image runs as %s on port %s\n",
		SuccessStyle.Render("✓"), CmdStyle.Render(r.Identity().UID.String()), CmdStyle.Render(r.Launch().Port.String()))
	return nil
}

// printLayers writes one line per build step with its cache status.
func printLayers(w io.Writer, layers []recipe.LayerStatus) {
	for _, l := range layers {
		status := fmt.Sprintf("%-7s", l.Status)
		if l.Status == recipe.StatusCached {
			status = SuccessStyle.Render(status)
		} else {
			status = WarningStyle.Render(status)
		}
		fmt.Fprintf(w, "  %s %s %s\n", layerKindStyle.Render(string(l.Kind)), status, SubtitleStyle.Render(truncate(l.Instruction, 72)))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
