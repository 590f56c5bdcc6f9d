// SPDX-License-Identifier: MPL-2.0

// Package recipe turns a project configuration into the ordered build steps of a
// least-privilege application image.
//
// The step order is fixed: base image, working directory, OS packages, dependency
// manifest and install, application payload, launcher, runtime identity, USER,
// EXPOSE and CMD. Each step carries a layer cache key that chains over every step
// before it, so a change to the payload never invalidates the dependency layers.
package recipe
