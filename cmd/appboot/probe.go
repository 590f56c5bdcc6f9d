// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/appboot/appboot/internal/issue"
)

const (
	defaultProbeAddr    = "127.0.0.1:8000"
	defaultProbeTimeout = 30 * time.Second
)

func newProbeCommand(a *App) *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Wait until the server accepts TCP connections",
		Long: `Wait until the server accepts TCP connections.

Exits 0 as soon as a connection succeeds and 1 when the timeout elapses.
Suitable as a container health check.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, _, err := net.SplitHostPort(addr); err != nil {
				return a.fail(cmd, fmt.Errorf("invalid address %q: %w", addr, err))
			}
			if err := a.Probe(cmd.Context(), addr, timeout); err != nil {
				return a.fail(cmd, issue.NewErrorContext().
					WithOperation("probe server").
					WithResource(addr).
					WithKind(issue.PortUnavailableId).
					WithSuggestion("Check the server logs; it may have refused to start").
					WithSuggestion("Raise --timeout if the application starts slowly").
					Wrap(err).
					BuildError())
			}
			fmt.Fprintf(a.stdout, "%s %s is accepting connections\n", SuccessStyle.Render("✓"), CmdStyle.Render(addr))
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", defaultProbeAddr, "host:port to dial")
	cmd.Flags().DurationVar(&timeout, "timeout", defaultProbeTimeout, "give up after this long")
	return cmd
}
