// Package expr implements the sandboxed expression language used inside
// ${...} templates: names, attribute and index access, comparisons,
// and/or/not, sequence and mapping literals and the len, empty and exists
// functions. Nothing else parses.
package expr

import (
	"os"
	"sync"

	"github.com/meow-stack/actiondeck/internal/types"
)

// FS answers exists() calls.
type FS interface {
	Exists(path string) bool
}

// OSFS checks paths against the local filesystem.
type OSFS struct{}

// Exists implements FS.
func (OSFS) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Evaluator parses and evaluates expressions. Parsed ASTs are cached by
// source text; an Evaluator is safe for concurrent use.
type Evaluator struct {
	fs FS

	mu    sync.RWMutex
	cache map[string]Node
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithFS replaces the filesystem used by exists().
func WithFS(fs FS) Option {
	return func(e *Evaluator) { e.fs = fs }
}

// New creates an Evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		fs:    OSFS{},
		cache: make(map[string]Node),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compile parses src, reusing a cached AST when available.
func (e *Evaluator) Compile(src string) (Node, error) {
	e.mu.RLock()
	n, ok := e.cache[src]
	e.mu.RUnlock()
	if ok {
		return n, nil
	}

	n, err := Parse(src)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[src] = n
	e.mu.Unlock()
	return n, nil
}

// Eval evaluates src against scope.
func (e *Evaluator) Eval(src string, scope Scope) (types.Value, error) {
	n, err := e.Compile(src)
	if err != nil {
		return types.Null(), err
	}
	return e.EvalNode(src, n, scope)
}

// EvalNode evaluates an already parsed expression. src is only used for
// error messages.
func (e *Evaluator) EvalNode(src string, n Node, scope Scope) (types.Value, error) {
	ev := &evaluator{src: src, scope: scope, fs: e.fs}
	return ev.eval(n)
}
