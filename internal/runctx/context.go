// Package runctx holds the layered variable context of one action run and
// builds it from a document and submitted form values.
package runctx

import (
	"sort"
	"strings"

	"github.com/meow-stack/actiondeck/internal/types"
)

// Scope names visible to expressions.
const (
	ScopeVars  = "vars"
	ScopeForm  = "form"
	ScopeEnv   = "env"
	ScopeStep  = "step"
	ScopeError = "error"
	ScopeLoop  = "loop"
)

// Context is the variable environment of one run. It is owned by a single
// flow and is not safe for concurrent use.
type Context struct {
	vars  *types.Map
	form  *types.Map
	env   *types.Map
	steps *types.Map
	facts *types.Map

	results map[string]*types.StepResult
	frames  []frame
	errInfo *types.Map
}

type frame struct {
	name  string
	item  types.Value
	index int
}

// New creates a Context with empty scopes.
func New() *Context {
	return &Context{
		vars:    types.NewMap(),
		form:    types.NewMap(),
		env:     types.NewMap(),
		steps:   types.NewMap(),
		facts:   types.NewMap(),
		results: make(map[string]*types.StepResult),
	}
}

// Lookup resolves a top-level name. Foreach bindings shadow everything else,
// innermost first. Scopes are returned as snapshots; a value captured from
// one never sees later bindings.
func (c *Context) Lookup(name string) (types.Value, bool) {
	for i := len(c.frames) - 1; i >= 0; i-- {
		f := c.frames[i]
		if f.name == name {
			return f.item, true
		}
		if name == ScopeLoop {
			return types.Mapping(types.MapOf("index", f.index)), true
		}
	}

	switch name {
	case ScopeVars:
		return types.Mapping(c.vars.Clone()), true
	case ScopeForm:
		return types.Mapping(c.form.Clone()), true
	case ScopeEnv:
		return types.Mapping(c.env.Clone()), true
	case ScopeStep:
		return types.Mapping(c.steps.Clone()), true
	case ScopeError:
		if c.errInfo != nil {
			return types.Mapping(c.errInfo.Clone()), true
		}
		return types.Null(), false
	}
	return c.facts.Get(name)
}

// Vars returns the vars scope.
func (c *Context) Vars() *types.Map { return c.vars }

// Form returns the form scope.
func (c *Context) Form() *types.Map { return c.form }

// Fact returns a process fact such as "cwd" as a string.
func (c *Context) Fact(name string) string {
	v, _ := c.facts.Get(name)
	return v.String()
}

// SetVar binds a variable.
func (c *Context) SetVar(name string, v types.Value) { c.vars.Set(name, v) }

// SetFact binds a process fact.
func (c *Context) SetFact(name string, v types.Value) { c.facts.Set(name, v) }

// SetEnv replaces the env scope.
func (c *Context) SetEnv(env map[string]string) {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	m := types.NewMap()
	for _, k := range keys {
		m.Set(k, types.String(env[k]))
	}
	c.env = m
}

// Environ returns the env scope as "KEY=value" pairs.
func (c *Context) Environ() []string {
	out := make([]string, 0, c.env.Len())
	c.env.Range(func(k string, v types.Value) bool {
		out = append(out, k+"="+v.String())
		return true
	})
	return out
}

// SetStepResult records the result of step id. A later run of the same id
// rebinds it.
func (c *Context) SetStepResult(id string, r *types.StepResult) {
	c.results[id] = r
	c.steps.Set(id, r.Value())
}

// StepResult returns the recorded result for id.
func (c *Context) StepResult(id string) (*types.StepResult, bool) {
	r, ok := c.results[id]
	return r, ok
}

// Results returns a copy of all recorded step results.
func (c *Context) Results() map[string]*types.StepResult {
	out := make(map[string]*types.StepResult, len(c.results))
	for k, v := range c.results {
		out[k] = v
	}
	return out
}

// Push enters a foreach iteration binding name to item.
func (c *Context) Push(name string, item types.Value, index int) {
	c.frames = append(c.frames, frame{name: name, item: item, index: index})
}

// Pop leaves the innermost foreach iteration.
func (c *Context) Pop() {
	if len(c.frames) > 0 {
		c.frames = c.frames[:len(c.frames)-1]
	}
}

// Depth returns the number of active foreach frames.
func (c *Context) Depth() int { return len(c.frames) }

// SetError exposes a failure to on_error steps.
func (c *Context) SetError(step, typ, message string) {
	c.errInfo = types.MapOf("step", step, "type", typ, "message", message)
}

// ClearError removes the error scope.
func (c *Context) ClearError() { c.errInfo = nil }

// splitEnv turns "KEY=value" pairs into a map; later keys win.
func splitEnv(pairs []string) map[string]string {
	out := make(map[string]string, len(pairs))
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		out[k] = v
	}
	return out
}
