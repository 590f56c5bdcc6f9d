// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
)

const (
	PackageInstallFailedId Id = iota + 1
	EntrypointNotFoundId
	PermissionDeniedId
	ConfigLoadFailedId
	ContainerEngineNotFoundId
	UnpinnedBaseImageId
	PrivilegedIdentityId
	PortUnavailableId
)

type (
	// Id identifies a catalog entry.
	Id int

	// MarkdownMsg is the Markdown body of a catalog entry.
	MarkdownMsg string

	// HttpLink is an external reference shown under "See also".
	HttpLink string

	// Issue is a catalog entry describing one failure kind and how to recover.
	Issue struct {
		id       Id
		title    string
		mdMsg    MarkdownMsg
		extLinks []HttpLink
	}
)

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) Title() string {
	return i.title
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

// Markdown returns the full Markdown document including the "See also" list.
func (i *Issue) Markdown() string {
	var sb strings.Builder
	sb.WriteString(string(i.mdMsg))
	if len(i.extLinks) > 0 {
		sb.WriteString("\n\n## See also\n")
		for _, link := range i.extLinks {
			sb.WriteString("- <" + string(link) + ">\n")
		}
	}
	return sb.String()
}

// Render renders the entry for a terminal using the given glamour style
// ("dark", "light", "notty", or a path to a JSON style file).
func (i *Issue) Render(stylePath string) (string, error) {
	return render(i.Markdown(), stylePath)
}

var (
	render = glamour.Render

	packageInstallFailedIssue = &Issue{
		id:    PackageInstallFailedId,
		title: "package installation failed",
		mdMsg: `
# Package installation failed

The image build stopped while installing OS packages or the dependency manifest.
The build is not retried and no partial image is kept.

## Things you can try
- Check the names listed in ` + "`os_packages`" + ` exist for the base image's distribution
- Run the install command from ` + "`install_command`" + ` locally against the manifest
- Re-run with ` + "`--verbose`" + ` to see the full engine output`,
		extLinks: []HttpLink{"https://docs.docker.com/build/cache/"},
	}

	entrypointNotFoundIssue = &Issue{
		id:    EntrypointNotFoundId,
		title: "application entrypoint not found",
		mdMsg: `
# Application entrypoint not found

The server could not resolve the configured ` + "`module:attribute`" + ` reference,
so no listening socket was opened.

## Things you can try
- Check the ` + "`app`" + ` setting (default ` + "`main:app`" + `)
- Make sure the module is registered in the binary that runs ` + "`appboot serve`" + ``,
	}

	permissionDeniedIssue = &Issue{
		id:    PermissionDeniedId,
		title: "permission denied",
		mdMsg: `
# Permission denied

The runtime identity does not own the working directory, or the process could not
switch to that identity.

## Things you can try
- Rebuild the image: the ownership transfer runs before ` + "`USER`" + `
- Avoid bind-mounting host directories owned by a different uid over the working directory
- Start the container as root or as uid 1000; any other uid is refused`,
		extLinks: []HttpLink{"https://docs.docker.com/reference/dockerfile/#user"},
	}

	configLoadFailedIssue = &Issue{
		id:    ConfigLoadFailedId,
		title: "configuration could not be loaded",
		mdMsg: `
# Configuration could not be loaded

The ` + "`appboot.cue`" + ` file is missing, is not valid CUE, or does not match the schema.

## Things you can try
- Run ` + "`appboot config init`" + ` to write a default file
- Run ` + "`appboot config show`" + ` to see the effective values`,
	}

	containerEngineNotFoundIssue = &Issue{
		id:    ContainerEngineNotFoundId,
		title: "no container engine available",
		mdMsg: `
# No container engine available

Neither Docker nor Podman could be reached.

## Things you can try
- Install Podman or Docker and make sure the daemon/socket is running
- Set ` + "`container_engine`" + ` to the engine you have installed`,
	}

	unpinnedBaseImageIssue = &Issue{
		id:    UnpinnedBaseImageId,
		title: "base image is not pinned",
		mdMsg: `
# Base image is not pinned

Floating tags (no tag, or ` + "`latest`" + `) break reproducible builds.

## Things you can try
- Use a versioned tag such as ` + "`python:3.11.9-slim`" + `
- Or pin by digest: ` + "`python@sha256:...`" + ``,
	}

	privilegedIdentityIssue = &Issue{
		id:    PrivilegedIdentityId,
		title: "runtime identity is privileged",
		mdMsg: `
# Runtime identity is privileged

The application must never run as uid or gid 0.

## Things you can try
- Set ` + "`identity.uid`" + ` and ` + "`identity.gid`" + ` to a non-zero id (default 1000)`,
	}

	portUnavailableIssue = &Issue{
		id:    PortUnavailableId,
		title: "port cannot be used",
		mdMsg: `
# Port cannot be used

The declared port is privileged (below 1024) or already in use. An unprivileged
identity cannot bind privileged ports.

## Things you can try
- Use a port from 1024 to 65535 (default 8000)
- Map the container port to a privileged host port in the orchestrator instead`,
	}

	issues = map[Id]*Issue{
		packageInstallFailedIssue.Id():    packageInstallFailedIssue,
		entrypointNotFoundIssue.Id():      entrypointNotFoundIssue,
		permissionDeniedIssue.Id():        permissionDeniedIssue,
		configLoadFailedIssue.Id():        configLoadFailedIssue,
		containerEngineNotFoundIssue.Id(): containerEngineNotFoundIssue,
		unpinnedBaseImageIssue.Id():       unpinnedBaseImageIssue,
		privilegedIdentityIssue.Id():      privilegedIdentityIssue,
		portUnavailableIssue.Id():         portUnavailableIssue,
	}
)

// Values returns every catalog entry ordered by id.
func Values() []*Issue {
	values := maps.Values(issues)
	slices.SortFunc(values, func(a, b *Issue) int { return int(a.id) - int(b.id) })
	return values
}

// Get returns the catalog entry for id, or nil.
func Get(id Id) *Issue {
	return issues[id]
}
