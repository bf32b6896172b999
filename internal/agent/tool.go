// Package agent drives the generative-model call loop, dispatching tool
// invocations against registered capabilities and tracking the sources each
// query's tool executions produce.
package agent

import (
	"context"

	"github.com/lectern/lectern/internal/ollama"
)

// Tool is a capability the model can invoke by name. Execute returns the
// result text fed back to the model plus the source labels the execution
// drew on; both are scoped to the single invocation.
type Tool interface {
	Name() string
	Definition() ollama.Tool
	Execute(ctx context.Context, args map[string]any) (resultText string, sources []string, err error)
}

// Registry resolves tool names to capabilities. Adding a tool means
// registering a new entry, not branching on type.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry creates a Registry with the given tools pre-registered.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds or replaces a tool under its name.
func (r *Registry) Register(t Tool) {
	name := t.Name()
	if _, ok := r.tools[name]; !ok {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns the tool definitions in registration order, for
// inclusion in a model call.
func (r *Registry) Definitions() []ollama.Tool {
	defs := make([]ollama.Tool, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}
