package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/reglet-dev/netgate/internal/application/dto"
	"github.com/reglet-dev/netgate/internal/domain/manifest"
	"github.com/reglet-dev/netgate/internal/domain/permission"
)

// Handler runs one call. Streaming handlers deliver intermediate results with
// Call.Emit and return the final result.
type Handler func(ctx context.Context, c *Call) (any, error)

// DestinationFunc derives the endpoint a call would reach from its params.
type DestinationFunc func(p dto.Params) (permission.DestinationQuery, error)

// Method describes one callable method.
type Method struct {
	Handler Handler
	// Destination is nil for methods that reach no remote endpoint.
	Destination DestinationFunc
	// Streaming methods must be called with multiresponse set.
	Streaming bool
}

// Registry maps module.submodule.method to its Method.
type Registry struct {
	methods map[string]Method
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{methods: make(map[string]Method)}
}

// Register adds a method. It panics on names outside the module namespace and
// on duplicates, both of which are wiring bugs.
func (r *Registry) Register(module, submodule, method string, m Method) {
	if !manifest.IsKnownSubmodule(module, submodule) {
		panic(fmt.Sprintf("services: register %s.%s.%s: unknown submodule", module, submodule, method))
	}
	if m.Handler == nil {
		panic(fmt.Sprintf("services: register %s.%s.%s: nil handler", module, submodule, method))
	}
	name := module + "." + submodule + "." + method
	if _, dup := r.methods[name]; dup {
		panic("services: duplicate registration of " + name)
	}
	r.methods[name] = m
}

// Lookup finds a registered method.
func (r *Registry) Lookup(module, submodule, method string) (Method, bool) {
	m, ok := r.methods[module+"."+submodule+"."+method]
	return m, ok
}

// Names returns every registered method name, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
