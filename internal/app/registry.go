// SPDX-License-Identifier: MPL-2.0

package app

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

var (
	// ErrModuleNotFound is returned when no registration uses the requested module.
	ErrModuleNotFound = errors.New("module not found")
	// ErrAttributeNotFound is returned when the module exists but lacks the attribute.
	ErrAttributeNotFound = errors.New("attribute not found")
)

type (
	// Env carries the run-time context handed to application factories.
	Env struct {
		// Name is the project name reported by the application.
		Name string
		// Version is the application version reported by health checks.
		Version string
		// Logger receives request logs. A nil Logger disables them.
		Logger *log.Logger
	}

	// Factory constructs an application handler.
	Factory func(Env) (http.Handler, error)

	// Registry maps module:attribute references to factories.
	// It is safe for concurrent use.
	Registry struct {
		mu      sync.RWMutex
		modules map[string]map[string]Factory
	}
)

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]map[string]Factory)}
}

// Register adds a factory under ref. It panics on a duplicate reference or a
// nil factory, as both are programming errors.
func (r *Registry) Register(ref Ref, factory Factory) {
	if factory == nil {
		panic(fmt.Sprintf("app: nil factory for %s", ref))
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	attrs, ok := r.modules[ref.Module]
	if !ok {
		attrs = make(map[string]Factory)
		r.modules[ref.Module] = attrs
	}
	if _, dup := attrs[ref.Attr]; dup {
		panic(fmt.Sprintf("app: %s registered twice", ref))
	}
	attrs[ref.Attr] = factory
}

// Resolve constructs the handler registered under ref.
func (r *Registry) Resolve(ref Ref, env Env) (http.Handler, error) {
	r.mu.RLock()
	attrs, ok := r.modules[ref.Module]
	var factory Factory
	if ok {
		factory = attrs[ref.Attr]
	}
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("resolve %s: %w: %q (registered: %s)", ref, ErrModuleNotFound, ref.Module, r.describe())
	}
	if factory == nil {
		return nil, fmt.Errorf("resolve %s: %w: module %q has no attribute %q", ref, ErrAttributeNotFound, ref.Module, ref.Attr)
	}

	h, err := factory(env)
	if err != nil {
		return nil, fmt.Errorf("construct %s: %w", ref, err)
	}
	if h == nil {
		return nil, fmt.Errorf("construct %s: factory returned a nil handler", ref)
	}
	return h, nil
}

// Refs returns every registered reference in lexical order.
func (r *Registry) Refs() []Ref {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var refs []Ref
	for module, attrs := range r.modules {
		for attr := range attrs {
			refs = append(refs, Ref{Module: module, Attr: attr})
		}
	}
	slices.SortFunc(refs, func(a, b Ref) int { return strings.Compare(a.String(), b.String()) })
	return refs
}

func (r *Registry) describe() string {
	refs := r.Refs()
	if len(refs) == 0 {
		return "none"
	}
	names := make([]string, len(refs))
	for i, ref := range refs {
		names[i] = ref.String()
	}
	return strings.Join(names, ", ")
}
