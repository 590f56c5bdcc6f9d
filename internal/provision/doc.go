// SPDX-License-Identifier: MPL-2.0

// Package provision builds application images from a recipe.
//
// A Builder stages the build context (dependency manifest, payload, launcher
// binary and the rendered Containerfile) in a temporary directory and hands it
// to a container engine. Images are tagged by the final layer key, so an
// unchanged project resolves to an existing image without invoking a build:
//
//	b := provision.NewBuilder(engine, r, provision.WithLogger(logger))
//	res, err := b.Build(ctx, projectDir)
//	// res.Tag is the image to run; res.Cached reports whether the build was skipped
//
// The key chain of every successful build is recorded under the cache
// directory so Plan can report which layers a later build will reuse.
package provision
