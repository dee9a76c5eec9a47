// Package registry holds the tool table: the named, schema-described
// capabilities a gateway exposes for discovery and invocation.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/marketgate/pkg/domain"
)

// Registry manages the available tools. Discovery preserves registration
// order; registration and lookup may interleave freely.
type Registry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]domain.Tool
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]domain.Tool),
	}
}

// Register adds a tool to the registry.
// If a tool with the same name exists, it is overwritten in place and
// keeps its original position in the discovery order.
func (r *Registry) Register(tool domain.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name]; !exists {
		r.order = append(r.order, tool.Name)
	}
	r.tools[tool.Name] = tool
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (domain.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns every registered tool in registration order.
func (r *Registry) List() []domain.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Execute looks up a tool by name and runs its handler.
// Returns domain.ErrToolNotFound if the name is not registered; any other
// error is the handler's own failure.
// The handler runs outside the registry lock.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrToolNotFound, name)
	}
	return tool.Handler(ctx, args)
}
