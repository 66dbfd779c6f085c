package bridge

import (
	"context"
	"fmt"
	"sort"

	"github.com/morezero/analytics-bridge/pkg/semver"
)

const registryLogPrefix = "bridge:registry"

// Handler invokes one operation with a validated bag and returns its pending outcome.
type Handler func(ctx context.Context, bag Bag) *Future

// Entry pairs a method name with its handler.
type Entry struct {
	Name    string
	Handler Handler
}

// Registry is an immutable method table. It is safe for concurrent lookups.
type Registry struct {
	version  string
	handlers map[string]Handler
	names    []string
}

// NewRegistry builds a registry serving API version from a fixed list of entries.
// Empty or duplicate names, nil handlers and invalid versions are rejected.
func NewRegistry(version string, entries ...Entry) (*Registry, error) {
	if err := semver.ValidateVersion(version); err != nil {
		return nil, fmt.Errorf("%s - %w", registryLogPrefix, err)
	}

	handlers := make(map[string]Handler, len(entries))
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Name == "" {
			return nil, fmt.Errorf("%s - entry with empty method name", registryLogPrefix)
		}
		if e.Handler == nil {
			return nil, fmt.Errorf("%s - method %q has no handler", registryLogPrefix, e.Name)
		}
		if _, dup := handlers[e.Name]; dup {
			return nil, fmt.Errorf("%s - duplicate method %q", registryLogPrefix, e.Name)
		}
		handlers[e.Name] = e.Handler
		names = append(names, e.Name)
	}
	sort.Strings(names)

	return &Registry{version: version, handlers: handlers, names: names}, nil
}

// MustRegistry is like NewRegistry but panics on error. Use it for compile-time tables.
func MustRegistry(version string, entries ...Entry) *Registry {
	r, err := NewRegistry(version, entries...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup resolves a method name to its handler.
func (r *Registry) Lookup(method string) (Handler, bool) {
	h, ok := r.handlers[method]
	return h, ok
}

// Methods returns the registered method names, sorted.
func (r *Registry) Methods() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Version returns the API version the registry serves.
func (r *Registry) Version() string {
	return r.version
}

// Len returns the number of registered methods.
func (r *Registry) Len() int {
	return len(r.names)
}
