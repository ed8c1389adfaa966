// Package tools implements the Tool Registry (spec.md §4.8/C2): a catalog
// of callable tools, native and fallback, dispatched from model tool calls.
// Grounded on the teacher's internal/tools package (Tool interface,
// Registry, and most of the native tool implementations), generalized to
// report koerrors.Kind-typed errors instead of bare error strings and to
// accept tool sources beyond statically registered Go structs (MCP-backed
// tools, the goja sandbox_code_interpreter fallback).
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/example/agent-orchestrator/internal/koerrors"
)

// Tool is a callable unit the model can invoke by name.
type Tool interface {
	Name() string
	Description() string
	// Execute runs the tool. A non-nil error should be a *koerrors.Error
	// of KindToolHandlerError so the Sub-Agent can surface it to the model
	// as a tool result rather than failing the step (spec.md §7).
	Execute(ctx context.Context, inputs map[string]any) (output any, logs string, err error)
}

// Registry is the Tool Registry: a name-keyed catalog, safe for concurrent
// registration and lookup from multiple in-flight Sub-Agents.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: map[string]Tool{}}
}

// Register adds or replaces a tool under its own Name().
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Unregister removes a tool by name. Reports whether it was present.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tools[name]
	delete(r.tools, name)
	return ok
}

// Get looks up a tool by exact name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns every registered tool name, sorted, for register_tool/
// list_tools (spec.md §6 Library API).
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute dispatches to a registered tool, wrapping an unknown-tool lookup
// miss and any tool-local error into a koerrors.KindToolHandlerError so
// callers never need to distinguish "not found" from "handler returned an
// error" at the error-taxonomy level (spec.md §7: tool_handler_error is
// "surfaced to model as tool-result; not fatal").
func (r *Registry) Execute(ctx context.Context, name string, inputs map[string]any) (any, string, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, "", koerrors.New(koerrors.KindToolHandlerError, fmt.Sprintf("unknown tool: %s", name))
	}
	out, logs, err := t.Execute(ctx, inputs)
	if err != nil {
		if _, ok := koerrors.KindOf(err); ok {
			return out, logs, err
		}
		return out, logs, koerrors.Wrap(koerrors.KindToolHandlerError, "tool "+name+" failed", err)
	}
	return out, logs, nil
}
