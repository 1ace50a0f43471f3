// Package tool defines the tool-calling collaborator the react package's
// Tools node consumes: a descriptor advertised to the model plus an
// invoker that executes the call, grounded on this codebase's
// BraveSearch (Name/Description/Call) shape generalized from a single
// hardcoded string-in-string-out tool to arbitrary JSON arguments/results,
// and on the ToolExecutor/ToolInvocation usage pattern the prebuilt ReAct
// agent drives (that type's own definition was not available to read, so
// Registry/Invoke below is reconstructed from how callers use it).
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Descriptor advertises a tool to the model: its name, a natural-language
// description, and a JSON Schema-shaped argument document.
type Descriptor struct {
	Name        string
	Description string
	Schema      map[string]any
}

// Invoker executes a single tool call given its raw JSON arguments and
// returns a raw JSON result or a typed error.
type Invoker func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// NotFoundError reports a call naming an unregistered tool.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("tool: %q not registered", e.Name)
}

// DuplicateError reports a second registration under the same name.
type DuplicateError struct {
	Name string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("tool: %q already registered", e.Name)
}

type entry struct {
	desc    Descriptor
	invoker Invoker
}

// Registry holds a set of descriptor+invoker pairs keyed by name. Names
// must be unique within a registration, matching the assumption the
// react Tools node relies on when routing a call by name.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a tool. It is an error to register the same name twice.
func (r *Registry) Register(desc Descriptor, invoker Invoker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[desc.Name]; exists {
		return &DuplicateError{Name: desc.Name}
	}
	r.entries[desc.Name] = entry{desc: desc, invoker: invoker}
	return nil
}

// Descriptors returns every registered tool's descriptor, in no
// particular order; callers that need a stable order should sort by
// Name themselves.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.desc)
	}
	return out
}

// Invoke runs the named tool. Returns *NotFoundError if name isn't
// registered.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return e.invoker(ctx, args)
}
