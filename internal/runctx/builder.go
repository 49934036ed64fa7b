package runctx

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/meow-stack/actiondeck/internal/logging"
	"github.com/meow-stack/actiondeck/internal/template"
	"github.com/meow-stack/actiondeck/internal/types"
)

// Facts are the process-derived names available at the top level.
type Facts struct {
	Cwd  string
	Home string
	Temp string
	OS   string // "nt" on Windows, "posix" elsewhere
}

// DetectFacts reads the facts of the current process.
func DetectFacts() Facts {
	f := Facts{Temp: os.TempDir(), OS: "posix"}
	if runtime.GOOS == "windows" {
		f.OS = "nt"
	}
	if wd, err := os.Getwd(); err == nil {
		f.Cwd = wd
	}
	if home, err := os.UserHomeDir(); err == nil {
		f.Home = home
	}
	return f
}

// Builder creates run contexts.
type Builder struct {
	renderer *template.Renderer
	facts    Facts
	environ  func() []string
	logger   *slog.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithFacts overrides the detected process facts.
func WithFacts(f Facts) BuilderOption {
	return func(b *Builder) { b.facts = f }
}

// WithEnviron overrides the process environment source.
func WithEnviron(fn func() []string) BuilderOption {
	return func(b *Builder) { b.environ = fn }
}

// WithLogger sets the diagnostics logger.
func WithLogger(l *slog.Logger) BuilderOption {
	return func(b *Builder) { b.logger = l }
}

// NewBuilder creates a Builder rendering with r.
func NewBuilder(r *template.Renderer, opts ...BuilderOption) *Builder {
	b := &Builder{
		renderer: r,
		facts:    DetectFacts(),
		environ:  os.Environ,
		logger:   logging.NewForTest(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Renderer returns the template renderer used for variables.
func (b *Builder) Renderer() *template.Renderer { return b.renderer }

// Build creates the context for one run of an action in doc.
//
// Variables are resolved in a single pass in declaration order: every
// variable starts as its raw value, and each rendered value replaces the raw
// one before the next variable renders. A reference to a later variable
// therefore sees its raw, unrendered value.
func (b *Builder) Build(doc *types.Document, form *types.Map) (*Context, error) {
	c := New()
	c.SetFact("cwd", types.String(b.facts.Cwd))
	c.SetFact("home", types.String(b.facts.Home))
	c.SetFact("temp", types.String(b.facts.Temp))
	c.SetFact("os", types.String(b.facts.OS))
	c.SetEnv(splitEnv(b.environ()))
	if form != nil {
		c.form = form.Clone()
	}

	for _, v := range doc.Vars {
		c.SetVar(v.Name, v.Raw)
	}
	for _, v := range doc.Vars {
		rendered, err := b.renderer.Render(v.Raw, c)
		if err != nil {
			return nil, fmt.Errorf("vars.%s: %w", v.Name, err)
		}
		c.SetVar(v.Name, rendered)
	}

	b.logger.Debug("context built", "vars", c.vars.Len(), "form", c.form.Len())
	return c, nil
}
