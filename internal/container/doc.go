// SPDX-License-Identifier: MPL-2.0

// Package container provides an abstraction layer over the Docker and Podman CLIs.
//
// Engines build images from a generated Containerfile, run one-off containers,
// and inspect image configuration. All argument construction lives in
// BaseCLIEngine so Docker and Podman differ only where their CLIs do.
package container
