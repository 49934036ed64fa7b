package argv

import (
	"fmt"
	"strings"

	deckerr "github.com/meow-stack/actiondeck/internal/errors"
	"github.com/meow-stack/actiondeck/internal/expr"
	"github.com/meow-stack/actiondeck/internal/template"
	"github.com/meow-stack/actiondeck/internal/types"
)

// Serializer renders argv items against a scope.
type Serializer struct {
	r *template.Renderer
}

// New creates a Serializer.
func New(r *template.Renderer) *Serializer {
	return &Serializer{r: r}
}

// Serialize produces the argument tokens for items, in declared order.
func (s *Serializer) Serialize(items []types.ArgItem, scope expr.Scope) ([]string, error) {
	if err := Validate(items); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		var err error
		switch item.Kind {
		case types.ArgString:
			out, err = s.appendString(out, item, scope)
		case types.ArgShort:
			out, err = s.appendShort(out, item, scope)
		case types.ArgOption:
			out, err = s.appendOption(out, i, item.Option, scope)
		}
		if err != nil {
			return nil, fmt.Errorf("argv[%d]: %w", i, err)
		}
	}
	return out, nil
}

func (s *Serializer) appendString(out []string, item types.ArgItem, scope expr.Scope) ([]string, error) {
	v, err := s.r.Render(item.Text, scope)
	if err != nil {
		return nil, err
	}
	return append(out, v.String()), nil
}

func (s *Serializer) appendShort(out []string, item types.ArgItem, scope expr.Scope) ([]string, error) {
	v, err := s.r.Render(item.Value, scope)
	if err != nil {
		return nil, err
	}
	if b, ok := v.AsBool(); ok {
		if b {
			out = append(out, item.Flag)
		}
		return out, nil
	}
	if v.IsNull() {
		return out, nil
	}
	if str, ok := v.AsString(); ok && str == "" {
		return out, nil
	}
	if v.Kind() == types.KindSequence {
		for _, el := range v.Items() {
			out = append(out, item.Flag, el.String())
		}
		return out, nil
	}
	return append(out, item.Flag, v.String()), nil
}

func (s *Serializer) appendOption(out []string, idx int, o *types.OptionSpec, scope expr.Scope) ([]string, error) {
	if o.HasWhen {
		w, err := s.r.Render(o.When, scope)
		if err != nil {
			return nil, err
		}
		if !w.Truthy() {
			return out, nil
		}
	}

	value, err := s.r.Render(o.From, scope)
	if err != nil {
		return nil, err
	}

	mode := o.Mode
	if mode == ModeAuto {
		switch value.Kind() {
		case types.KindBool:
			mode = ModeFlag
		case types.KindSequence:
			mode = ModeRepeat
		default:
			mode = ModeValue
		}
	}

	// Tri-state strings from tri_bool form fields.
	if str, ok := value.AsString(); ok {
		switch str {
		case "auto":
			return out, nil
		case "true":
			return append(out, o.Opt), nil
		case "false":
			if o.FalseOpt != "" {
				out = append(out, o.FalseOpt)
			}
			return out, nil
		}
	}

	if o.OmitIfEmpty && value.IsEmpty() {
		return out, nil
	}

	var tmpl entryTemplate
	if o.Template != "" {
		if tmpl, err = compileTemplate(o.Template); err != nil {
			return nil, deckerr.ArgSpecInvalid(idx, err.Error())
		}
	}
	format := func(entry types.Value) (string, error) {
		if tmpl == nil {
			return entry.String(), nil
		}
		str, err := tmpl.apply(entry)
		if err != nil {
			return "", deckerr.Wrap(deckerr.CodeArgSpecTemplate, "applying template", err).
				WithDetail("index", idx)
		}
		return str, nil
	}

	switch mode {
	case ModeFlag:
		if value.Truthy() {
			out = append(out, o.Opt)
		} else if o.FalseOpt != "" {
			out = append(out, o.FalseOpt)
		}
	case ModeValue:
		out = withValue(out, o, value.String())
	case ModeRepeat:
		for _, entry := range entries(value) {
			str, err := format(entry)
			if err != nil {
				return nil, err
			}
			out = withValue(out, o, str)
		}
	case ModeJoin:
		list := entries(value)
		parts := make([]string, 0, len(list))
		for _, entry := range list {
			str, err := format(entry)
			if err != nil {
				return nil, err
			}
			parts = append(parts, str)
		}
		out = withValue(out, o, strings.Join(parts, o.Joiner))
	}
	return out, nil
}

// entries wraps a scalar into a one-element list.
func entries(v types.Value) []types.Value {
	if v.Kind() == types.KindSequence {
		return v.Items()
	}
	return []types.Value{v}
}

func withValue(out []string, o *types.OptionSpec, val string) []string {
	if o.Style == StyleEquals {
		return append(out, o.Opt+"="+val)
	}
	return append(out, o.Opt, val)
}
