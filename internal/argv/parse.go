// Package argv turns declared argv items into the argument vector of a
// process invocation.
//
// Three item forms exist: a plain string (template), a single-key short map
// {flag: value} and the extended option form carrying an `opt` key. The
// produced tokens keep the declared item order.
package argv

import (
	"fmt"
	"sort"

	deckerr "github.com/meow-stack/actiondeck/internal/errors"
	"github.com/meow-stack/actiondeck/internal/types"
)

// Modes and styles of the extended option form.
const (
	ModeAuto   = "auto"
	ModeFlag   = "flag"
	ModeValue  = "value"
	ModeRepeat = "repeat"
	ModeJoin   = "join"

	StyleSeparate = "separate"
	StyleEquals   = "equals"
)

var extendedKeys = map[string]bool{
	"opt": true, "from": true, "mode": true, "style": true, "joiner": true,
	"omit_if_empty": true, "template": true, "false_opt": true, "when": true,
}

// Parse converts the raw argv list of a run step into items. Only the
// structure is checked here; Validate checks modes, styles and keys.
func Parse(raw types.Value) ([]types.ArgItem, error) {
	if raw.IsNull() {
		return nil, nil
	}
	if raw.Kind() != types.KindSequence {
		return nil, deckerr.ArgSpecInvalid(0, fmt.Sprintf("argv must be a list, got %s", raw.Kind()))
	}
	items := make([]types.ArgItem, 0, len(raw.Items()))
	for i, v := range raw.Items() {
		item, err := parseItem(i, v)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func parseItem(i int, v types.Value) (types.ArgItem, error) {
	switch v.Kind() {
	case types.KindString, types.KindNumber, types.KindBool:
		return types.ArgItem{Kind: types.ArgString, Text: v}, nil
	case types.KindMapping:
	default:
		return types.ArgItem{}, deckerr.ArgSpecInvalid(i, fmt.Sprintf("unsupported argv item of type %s", v.Kind()))
	}

	m := v.Map()
	if m.Len() == 0 {
		return types.ArgItem{}, deckerr.ArgSpecInvalid(i, "empty mapping")
	}
	if !m.Has("opt") {
		if m.Len() == 1 {
			flag := m.Keys()[0]
			val, _ := m.Get(flag)
			return types.ArgItem{Kind: types.ArgShort, Flag: flag, Value: val}, nil
		}
		for _, k := range m.Keys() {
			if extendedKeys[k] {
				return types.ArgItem{}, deckerr.ArgSpecMissingOpt(i)
			}
		}
		return types.ArgItem{}, deckerr.ArgSpecInvalid(i, "mapping is neither a single-key short form nor an option with opt")
	}

	spec := &types.OptionSpec{
		Mode:        ModeAuto,
		Style:       StyleSeparate,
		Joiner:      ",",
		OmitIfEmpty: true,
	}
	var err error
	m.Range(func(k string, val types.Value) bool {
		switch k {
		case "opt":
			spec.Opt, err = scalarString(i, k, val)
			spec.HasOpt = spec.Opt != ""
		case "from":
			spec.From = val
		case "mode":
			spec.Mode, err = scalarString(i, k, val)
		case "style":
			spec.Style, err = scalarString(i, k, val)
		case "joiner":
			spec.Joiner, err = scalarString(i, k, val)
		case "template":
			spec.Template, err = scalarString(i, k, val)
		case "false_opt":
			if !val.IsNull() {
				spec.FalseOpt, err = scalarString(i, k, val)
			}
		case "omit_if_empty":
			b, ok := val.AsBool()
			if !ok {
				err = deckerr.ArgSpecInvalid(i, "omit_if_empty must be a boolean")
			}
			spec.OmitIfEmpty = b
		case "when":
			spec.When = val
			spec.HasWhen = true
		default:
			spec.Unknown = append(spec.Unknown, k)
		}
		return err == nil
	})
	if err != nil {
		return types.ArgItem{}, err
	}
	sort.Strings(spec.Unknown)
	return types.ArgItem{Kind: types.ArgOption, Option: spec}, nil
}

func scalarString(i int, key string, v types.Value) (string, error) {
	switch v.Kind() {
	case types.KindString, types.KindNumber, types.KindBool:
		return v.String(), nil
	}
	return "", deckerr.ArgSpecInvalid(i, fmt.Sprintf("%s must be a string, got %s", key, v.Kind()))
}

// Validate checks items before any process starts.
func Validate(items []types.ArgItem) error {
	for i, item := range items {
		switch item.Kind {
		case types.ArgString:
		case types.ArgShort:
			if item.Flag == "" {
				return deckerr.ArgSpecInvalid(i, "short form needs a flag name")
			}
		case types.ArgOption:
			o := item.Option
			if o == nil || !o.HasOpt {
				return deckerr.ArgSpecMissingOpt(i)
			}
			switch o.Mode {
			case ModeAuto, ModeFlag, ModeValue, ModeRepeat, ModeJoin:
			default:
				return deckerr.ArgSpecInvalid(i, fmt.Sprintf("unknown mode %q", o.Mode))
			}
			switch o.Style {
			case StyleSeparate, StyleEquals:
			default:
				return deckerr.ArgSpecInvalid(i, fmt.Sprintf("unknown style %q", o.Style))
			}
			if len(o.Unknown) > 0 {
				return deckerr.ArgSpecInvalid(i, fmt.Sprintf("unknown keys %v", o.Unknown))
			}
			if o.Template != "" {
				if _, err := compileTemplate(o.Template); err != nil {
					return deckerr.ArgSpecInvalid(i, err.Error())
				}
			}
		default:
			return deckerr.ArgSpecInvalid(i, "unknown item kind")
		}
	}
	return nil
}
