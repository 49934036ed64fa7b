// Package template renders ${...} placeholders in document values.
//
// A string that is exactly one placeholder evaluates to the native value of
// the expression (a list stays a list, null stays null). Placeholders
// embedded in other text are stringified and spliced in, null as "".
package template

import (
	"strings"

	deckerr "github.com/meow-stack/actiondeck/internal/errors"
	"github.com/meow-stack/actiondeck/internal/expr"
	"github.com/meow-stack/actiondeck/internal/types"
)

// Renderer evaluates placeholders with an expression evaluator.
type Renderer struct {
	ev *expr.Evaluator
}

// New creates a Renderer. A nil evaluator gets a default one.
func New(ev *expr.Evaluator) *Renderer {
	if ev == nil {
		ev = expr.New()
	}
	return &Renderer{ev: ev}
}

// Evaluator returns the underlying expression evaluator.
func (r *Renderer) Evaluator() *expr.Evaluator { return r.ev }

// Render renders v. Non-string values are returned unchanged.
func (r *Renderer) Render(v types.Value, scope expr.Scope) (types.Value, error) {
	s, ok := v.AsString()
	if !ok {
		return v, nil
	}
	return r.RenderString(s, scope)
}

// RenderString renders s, returning the native value for a full match.
func (r *Renderer) RenderString(s string, scope expr.Scope) (types.Value, error) {
	parts, err := split(s)
	if err != nil {
		return types.Null(), err
	}
	if len(parts) == 0 {
		return types.String(s), nil
	}

	if whole, ok := fullMatch(s, parts); ok {
		return r.ev.Eval(whole, scope)
	}

	var sb strings.Builder
	last := 0
	for _, p := range parts {
		sb.WriteString(s[last:p.start])
		v, err := r.ev.Eval(p.expr, scope)
		if err != nil {
			return types.Null(), err
		}
		sb.WriteString(v.String())
		last = p.end
	}
	sb.WriteString(s[last:])
	return types.String(sb.String()), nil
}

// RenderText renders v and stringifies the result.
func (r *Renderer) RenderText(v types.Value, scope expr.Scope) (string, error) {
	out, err := r.Render(v, scope)
	if err != nil {
		return "", err
	}
	return out.String(), nil
}

// HasPlaceholder reports whether s contains "${".
func HasPlaceholder(s string) bool {
	return strings.Contains(s, "${")
}

// Check parses every placeholder in s without evaluating it.
func (r *Renderer) Check(s string) error {
	parts, err := split(s)
	if err != nil {
		return err
	}
	for _, p := range parts {
		if _, err := r.ev.Compile(p.expr); err != nil {
			return err
		}
	}
	return nil
}

type placeholder struct {
	start, end int // byte offsets of "${" and one past "}"
	expr       string
}

// fullMatch reports whether the trimmed string is a single placeholder.
func fullMatch(s string, parts []placeholder) (string, bool) {
	if len(parts) != 1 {
		return "", false
	}
	p := parts[0]
	if strings.TrimSpace(s[:p.start]) != "" || strings.TrimSpace(s[p.end:]) != "" {
		return "", false
	}
	return p.expr, true
}

// split finds the placeholders in s. Braces inside quoted strings and nested
// mapping literals are balanced so "${ {'a': 1} }" is one placeholder.
func split(s string) ([]placeholder, error) {
	var parts []placeholder
	i := 0
	for {
		idx := strings.Index(s[i:], "${")
		if idx < 0 {
			return parts, nil
		}
		start := i + idx
		end, err := closing(s, start+2)
		if err != nil {
			return nil, err
		}
		parts = append(parts, placeholder{
			start: start,
			end:   end + 1,
			expr:  strings.TrimSpace(s[start+2 : end]),
		})
		i = end + 1
	}
}

// closing returns the index of the brace closing the placeholder body that
// begins at from.
func closing(s string, from int) (int, error) {
	depth := 0
	var quote byte
	for i := from; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '{':
			depth++
		case '}':
			if depth == 0 {
				return i, nil
			}
			depth--
		}
	}
	return 0, deckerr.ExprSyntax(s, "unclosed ${")
}
