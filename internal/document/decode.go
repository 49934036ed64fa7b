package document

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/meow-stack/actiondeck/internal/types"
)

// nodeValue converts a YAML node into a Value, keeping mapping key order.
func nodeValue(n *yaml.Node) (types.Value, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return types.Null(), nil
		}
		return nodeValue(n.Content[0])

	case yaml.AliasNode:
		return nodeValue(n.Alias)

	case yaml.ScalarNode:
		return scalarValue(n)

	case yaml.SequenceNode:
		items := make([]types.Value, 0, len(n.Content))
		for i, c := range n.Content {
			v, err := nodeValue(c)
			if err != nil {
				return types.Null(), fmt.Errorf("[%d]: %w", i, err)
			}
			items = append(items, v)
		}
		return types.Sequence(items...), nil

	case yaml.MappingNode:
		m := types.NewMap()
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			if k.Tag == "!!merge" {
				if err := mergeInto(m, v); err != nil {
					return types.Null(), err
				}
				continue
			}
			if k.Kind != yaml.ScalarNode {
				return types.Null(), fmt.Errorf("line %d: mapping keys must be scalars", k.Line)
			}
			val, err := nodeValue(v)
			if err != nil {
				return types.Null(), fmt.Errorf("%s: %w", k.Value, err)
			}
			m.Set(k.Value, val)
		}
		return types.Mapping(m), nil
	}
	return types.Null(), fmt.Errorf("line %d: unsupported YAML node", n.Line)
}

// mergeInto applies a `<<` merge key; explicit keys set later win.
func mergeInto(m *types.Map, n *yaml.Node) error {
	v, err := nodeValue(n)
	if err != nil {
		return err
	}
	var sources []types.Value
	switch v.Kind() {
	case types.KindMapping:
		sources = []types.Value{v}
	case types.KindSequence:
		sources = v.Items()
	default:
		return fmt.Errorf("line %d: merge value must be a mapping", n.Line)
	}
	for _, src := range sources {
		if src.Kind() != types.KindMapping {
			return fmt.Errorf("line %d: merge value must be a mapping", n.Line)
		}
		src.Map().Range(func(k string, val types.Value) bool {
			if !m.Has(k) {
				m.Set(k, val)
			}
			return true
		})
	}
	return nil
}

func scalarValue(n *yaml.Node) (types.Value, error) {
	switch n.ShortTag() {
	case "!!null":
		return types.Null(), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return types.Null(), fmt.Errorf("line %d: %w", n.Line, err)
		}
		return types.Bool(b), nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			return types.Null(), fmt.Errorf("line %d: %w", n.Line, err)
		}
		return types.Number(float64(i)), nil
	case "!!float":
		f, err := strconv.ParseFloat(strings.ReplaceAll(n.Value, "_", ""), 64)
		if err != nil {
			var d float64
			if derr := n.Decode(&d); derr != nil {
				return types.Null(), fmt.Errorf("line %d: %w", n.Line, derr)
			}
			f = d
		}
		return types.Number(f), nil
	}
	return types.String(n.Value), nil
}
