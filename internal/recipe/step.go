// SPDX-License-Identifier: MPL-2.0

package recipe

const (
	StepFrom       StepKind = "from"
	StepWorkdir    StepKind = "workdir"
	StepOSPackages StepKind = "os-packages"
	StepManifest   StepKind = "manifest"
	StepInstall    StepKind = "install"
	StepPayload    StepKind = "payload"
	StepLauncher   StepKind = "launcher"
	StepIdentity   StepKind = "identity"
	StepUser       StepKind = "user"
	StepExpose     StepKind = "expose"
	StepCmd        StepKind = "cmd"

	// StatusCached marks a layer whose key matches the previous build.
	StatusCached Status = "cached"
	// StatusRebuild marks a layer that must be rebuilt.
	StatusRebuild Status = "rebuild"
)

type (
	// StepKind names a build step.
	StepKind string

	// Step is one Containerfile instruction.
	Step struct {
		Kind StepKind
		// Instruction is the rendered Containerfile line.
		Instruction string
		// Inputs are the files or directories copied by the step. Relative
		// paths resolve against the project root.
		Inputs []string
	}

	// LayerKey is the chained cache key of a step.
	LayerKey struct {
		Kind        StepKind `json:"kind"`
		Instruction string   `json:"instruction"`
		Key         string   `json:"key"`
	}

	// Status is the outcome of comparing a layer against a previous build.
	Status string

	// LayerStatus pairs a layer with its comparison outcome.
	LayerStatus struct {
		LayerKey
		Status Status
	}
)

// Diff compares the keys of two builds position by position. Once a layer
// differs, it and every layer after it are reported as rebuild.
func Diff(prev, next []LayerKey) []LayerStatus {
	out := make([]LayerStatus, len(next))
	broken := false
	for i, k := range next {
		if !broken && (i >= len(prev) || prev[i].Key != k.Key) {
			broken = true
		}
		status := StatusCached
		if broken {
			status = StatusRebuild
		}
		out[i] = LayerStatus{LayerKey: k, Status: status}
	}
	return out
}
