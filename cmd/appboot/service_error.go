// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/appboot/appboot/internal/app"
	"github.com/appboot/appboot/internal/config"
	"github.com/appboot/appboot/internal/container"
	"github.com/appboot/appboot/internal/identity"
	"github.com/appboot/appboot/internal/issue"
	"github.com/appboot/appboot/internal/recipe"
)

// ServiceError is an error that carries optional rendering information for
// the CLI layer. Always create via newServiceError.
type ServiceError struct {
	// Err is the underlying error (must not be nil).
	Err error
	// IssueID is the optional issue catalog ID for rendering help text.
	IssueID issue.Id
	// StyledMessage is the optional pre-rendered styled error text.
	StyledMessage string
}

// newServiceError creates a ServiceError with a nil-Err panic guard.
func newServiceError(err error, issueID issue.Id, styledMessage string) *ServiceError {
	if err == nil {
		panic("ServiceError: Err must not be nil")
	}
	return &ServiceError{
		Err:           err,
		IssueID:       issueID,
		StyledMessage: styledMessage,
	}
}

// Error implements the error interface.
func (e *ServiceError) Error() string { return e.Err.Error() }

// Unwrap returns the underlying error for errors.Is/As chains.
func (e *ServiceError) Unwrap() error { return e.Err }

// classifyError maps a command failure to an issue catalog ID and returns a
// styled message for CLI rendering. Kinds attached by an ActionableError win
// over sentinel matching.
func classifyError(err error, verbose bool) (issueID issue.Id, styledMsg string) {
	styledMsg = fmt.Sprintf("%s %s\n", ErrorStyle.Render("Error:"), formatErrorForDisplay(err, verbose))

	if id, ok := issue.KindOf(err); ok {
		return id, styledMsg
	}

	var engineErr *container.ErrEngineNotAvailable
	switch {
	case errors.As(err, &engineErr):
		issueID = issue.ContainerEngineNotFoundId
	case errors.Is(err, recipe.ErrUnpinnedBaseImage):
		issueID = issue.UnpinnedBaseImageId
	case errors.Is(err, recipe.ErrPrivilegedIdentity), errors.Is(err, identity.ErrRootIdentity):
		issueID = issue.PrivilegedIdentityId
	case errors.Is(err, recipe.ErrPrivilegedPort):
		issueID = issue.PortUnavailableId
	case errors.Is(err, app.ErrInvalidRef), errors.Is(err, app.ErrModuleNotFound), errors.Is(err, app.ErrAttributeNotFound):
		issueID = issue.EntrypointNotFoundId
	case errors.Is(err, identity.ErrIdentityMismatch), errors.Is(err, identity.ErrOwnershipMismatch):
		issueID = issue.PermissionDeniedId
	case errors.Is(err, config.ErrInvalidConfig), errors.Is(err, config.ErrConfigExists):
		issueID = issue.ConfigLoadFailedId
	}
	return issueID, styledMsg
}

// formatErrorForDisplay formats an error for user display.
// ActionableErrors use their Format method; verbose mode shows the full chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}

// renderServiceError prints the styled message and, in verbose mode, the
// issue catalog entry. Otherwise a hint points at --verbose.
func renderServiceError(stderr io.Writer, svcErr *ServiceError, verbose bool) {
	if svcErr == nil {
		return
	}

	if svcErr.StyledMessage != "" {
		fmt.Fprint(stderr, svcErr.StyledMessage)
	}

	if svcErr.IssueID == 0 {
		return
	}

	catalogEntry := issue.Get(svcErr.IssueID)
	if catalogEntry == nil {
		return
	}
	if !verbose {
		fmt.Fprintln(stderr, SubtitleStyle.Render("Run with --verbose for troubleshooting steps ("+catalogEntry.Title()+")."))
		return
	}
	rendered, renderErr := catalogEntry.Render("dark")
	if renderErr != nil {
		fmt.Fprintln(stderr, WarningStyle.Render("Warning: ")+"failed to render troubleshooting guide: "+renderErr.Error())
		return
	}
	fmt.Fprint(stderr, rendered)
}
