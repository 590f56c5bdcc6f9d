// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"context"
	"time"

	"github.com/appboot/appboot/internal/recipe"
)

type (
	// Provisioner turns a project directory into a runnable image.
	// Implementations skip the build when an image with the computed tag exists.
	Provisioner interface {
		Build(ctx context.Context, root string) (*Result, error)
	}

	// Result contains the output of a build.
	Result struct {
		// Tag is the image to run.
		Tag string
		// Keys is the layer key chain the image was built from.
		Keys []recipe.LayerKey
		// Layers compares Keys against the previously recorded build.
		Layers []recipe.LayerStatus
		// Cached is true when an existing image was reused.
		Cached bool
		// Attempts is the number of engine builds run (0 when cached).
		Attempts int
		// Duration is the wall time of the build.
		Duration time.Duration
	}

	// Plan describes what a build would do without running it.
	Plan struct {
		// Containerfile is the rendered build file.
		Containerfile string
		// Tag is the tag the build would produce.
		Tag string
		// Layers is the per-step cache outlook against the last recorded build.
		Layers []recipe.LayerStatus
		// Previous is the last recorded build, nil if none.
		Previous *Record
	}
)
