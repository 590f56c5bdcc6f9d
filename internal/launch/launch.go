// SPDX-License-Identifier: MPL-2.0

package launch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/appboot/appboot/internal/app"
	"github.com/appboot/appboot/internal/identity"
	"github.com/appboot/appboot/internal/issue"
	"github.com/appboot/appboot/internal/server"
)

type (
	// Options configures Run.
	Options struct {
		// App is the module:attribute reference of the application.
		App string
		// Registry resolves App. Nil selects app.Default().
		Registry *app.Registry
		// Env is passed to the application factory.
		Env app.Env
		// Server holds the listener settings.
		Server server.Config
		// Workdir is checked for ownership by Identity.
		Workdir string
		// Identity is the unprivileged runtime identity.
		Identity identity.Identity
		// SkipOwnershipCheck disables the workdir check for local runs.
		SkipOwnershipCheck bool
		// Logger receives lifecycle messages.
		Logger *log.Logger
		// Ready, when set, is called with the bound address once serving.
		Ready func(addr string)

		creds credentials
	}

	// credentials are the identity operations Run performs.
	credentials struct {
		current         func() identity.Identity
		drop            func(identity.Identity) error
		verifyOwnership func(ctx context.Context, dir string, target identity.Identity) error
	}
)

func hostCredentials() credentials {
	return credentials{
		current:         identity.Current,
		drop:            identity.Drop,
		verifyOwnership: identity.VerifyOwnership,
	}
}

// Run serves the configured application until ctx is cancelled. No listener
// is opened unless the application resolves, the process runs as the
// non-root target identity and the workdir belongs to it. Cancellation
// stops the server gracefully and returns nil.
func Run(ctx context.Context, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if opts.Registry == nil {
		opts.Registry = app.Default()
	}
	creds := opts.creds
	if creds.current == nil {
		creds = hostCredentials()
	}
	if opts.Env.Logger == nil {
		opts.Env.Logger = logger
	}

	handler, err := resolve(opts)
	if err != nil {
		return err
	}
	logger.Debug("application resolved", "app", opts.App)

	if err := settleIdentity(creds, opts.Identity, logger); err != nil {
		return err
	}

	if !opts.SkipOwnershipCheck && opts.Workdir != "" {
		if err := creds.verifyOwnership(ctx, opts.Workdir, opts.Identity); err != nil {
			return ownershipError(opts.Workdir, opts.Identity, err)
		}
	}

	srv, err := server.New(opts.Server, handler, logger)
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	logger.Info("serving", "app", opts.App, "addr", srv.Address(), "uid", opts.Identity.UID)
	if opts.Ready != nil {
		opts.Ready(srv.Address())
	}

	select {
	case <-ctx.Done():
		logger.Info("stop requested")
	case <-srv.Done():
	}

	stopErr := srv.Stop()
	if err := srv.Wait(); err != nil {
		return err
	}
	return stopErr
}

func resolve(opts Options) (http.Handler, error) {
	ref, err := app.ParseRef(opts.App)
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("resolve application").
			WithResource(opts.App).
			WithKind(issue.EntrypointNotFoundId).
			WithSuggestion("Use the module:attribute form, for example main:app").
			Wrap(err).
			BuildError()
	}

	handler, err := opts.Registry.Resolve(ref, opts.Env)
	if err != nil {
		ectx := issue.NewErrorContext().
			WithOperation("resolve application").
			WithResource(ref.String()).
			WithKind(issue.EntrypointNotFoundId).
			Wrap(err)
		if refs := opts.Registry.Refs(); len(refs) > 0 {
			names := make([]string, len(refs))
			for i, r := range refs {
				names[i] = r.String()
			}
			ectx.WithSuggestion("Registered applications: " + strings.Join(names, ", "))
		}
		return nil, ectx.BuildError()
	}
	return handler, nil
}

// settleIdentity drops root privileges or confirms the process already runs
// as target, then refuses an effective uid of 0.
func settleIdentity(creds credentials, target identity.Identity, logger *log.Logger) error {
	before := creds.current()

	err := creds.drop(target)
	switch {
	case err == nil:
		if before != target {
			logger.Info("dropped privileges", "from", before, "to", target)
		}
	case errors.Is(err, identity.ErrUnsupportedPlatform) && !before.UID.IsRoot():
		logger.Warn("privilege drop unsupported on this platform; continuing as current user", "uid", before.UID)
	default:
		return identityError(target, err)
	}

	if creds.current().UID.IsRoot() {
		return identityError(target, fmt.Errorf("refusing to serve: %w", identity.ErrRootIdentity))
	}
	return nil
}

func identityError(target identity.Identity, err error) error {
	ectx := issue.NewErrorContext().
		WithOperation("switch to runtime identity").
		WithResource(target.String()).
		Wrap(err)
	if errors.Is(err, identity.ErrRootIdentity) {
		ectx.WithKind(issue.PrivilegedIdentityId).
			WithSuggestion("Configure a non-root uid and gid (default 1000)")
	} else {
		ectx.WithKind(issue.PermissionDeniedId).
			WithSuggestion("Start the container as root so it can drop privileges, or run it as " + target.String())
	}
	return ectx.BuildError()
}

func ownershipError(dir string, target identity.Identity, err error) error {
	return issue.NewErrorContext().
		WithOperation("verify workdir ownership").
		WithResource(dir).
		WithKind(issue.PermissionDeniedId).
		WithSuggestion(fmt.Sprintf("Run chown -R %s %s in the image before the USER step", target, dir)).
		WithSuggestion("Pass --skip-ownership-check for local runs outside a container").
		Wrap(err).
		BuildError()
}
