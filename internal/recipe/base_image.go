// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
)

const floatingTag = "latest"

// Rejection reasons reported in UnpinnedBaseImageError.
const (
	reasonUntagged = "no tag or digest; add an explicit version tag"
	reasonFloating = "the latest tag floats between builds"
)

// ErrUnpinnedBaseImage is returned when the base image has no explicit tag,
// uses the floating "latest" tag, or cannot be parsed as a reference.
var ErrUnpinnedBaseImage = errors.New("base image is not pinned")

type (
	// BaseImage is a pinned runtime base image reference.
	BaseImage struct {
		ref name.Reference
	}

	// UnpinnedBaseImageError reports why a base image reference was rejected.
	UnpinnedBaseImageError struct {
		Value  string
		Reason string
	}
)

// ParseBaseImage parses s and requires it to be pinned by an explicit version
// tag or by digest. Short Docker Hub names such as python:3.11 are accepted.
func ParseBaseImage(s string) (BaseImage, error) {
	ref, err := name.ParseReference(s)
	if err != nil {
		return BaseImage{}, &UnpinnedBaseImageError{Value: s, Reason: err.Error()}
	}
	tag, isTag := ref.(name.Tag)
	if !isTag {
		return BaseImage{ref: ref}, nil
	}
	// ParseReference defaults a missing tag to latest.
	if !hasExplicitTag(s) {
		return BaseImage{}, &UnpinnedBaseImageError{Value: s, Reason: reasonUntagged}
	}
	if tag.TagStr() == floatingTag {
		return BaseImage{}, &UnpinnedBaseImageError{Value: s, Reason: reasonFloating}
	}
	return BaseImage{ref: ref}, nil
}

// hasExplicitTag reports whether the last path element of s carries a tag.
// A colon before the last slash belongs to a registry port.
func hasExplicitTag(s string) bool {
	last := s[strings.LastIndex(s, "/")+1:]
	return strings.Contains(last, ":")
}

// String returns the reference as written in the configuration.
func (b BaseImage) String() string {
	if b.ref == nil {
		return ""
	}
	return b.ref.String()
}

// Repository returns the fully qualified repository, e.g. index.docker.io/library/python.
func (b BaseImage) Repository() string {
	if b.ref == nil {
		return ""
	}
	return b.ref.Context().Name()
}

// IsDigest reports whether the image is pinned by content digest.
func (b BaseImage) IsDigest() bool {
	_, ok := b.ref.(name.Digest)
	return ok
}

// Error implements the error interface for UnpinnedBaseImageError.
func (e *UnpinnedBaseImageError) Error() string {
	return fmt.Sprintf("base image %q is not pinned: %s", e.Value, e.Reason)
}

// Unwrap returns ErrUnpinnedBaseImage for errors.Is() compatibility.
func (e *UnpinnedBaseImageError) Unwrap() error { return ErrUnpinnedBaseImage }
