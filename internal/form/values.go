package form

import (
	"fmt"
	"strings"

	"github.com/meow-stack/actiondeck/internal/types"
)

// Partition splits stored values into those matching a current field and
// stale ones the form no longer declares.
func Partition(form *types.Form, values *types.Map) (current, stale *types.Map) {
	current, stale = types.NewMap(), types.NewMap()
	if values == nil {
		return current, stale
	}
	values.Range(func(k string, v types.Value) bool {
		if form.Field(k) != nil {
			current.Set(k, v)
		} else {
			stale.Set(k, v)
		}
		return true
	})
	return current, stale
}

// Persistable drops secret fields from values.
func Persistable(form *types.Form, values *types.Map) *types.Map {
	out := types.NewMap()
	if values == nil {
		return out
	}
	values.Range(func(k string, v types.Value) bool {
		if f := form.Field(k); f != nil && f.Type == types.FieldSecret {
			return true
		}
		out.Set(k, v)
		return true
	})
	return out
}

// ParseSet turns "key=value" pairs into string values. Later pairs win.
func ParseSet(pairs []string) (*types.Map, error) {
	out := types.NewMap()
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --set %q: expected key=value", pair)
		}
		out.Set(k, types.String(v))
	}
	return out, nil
}

// Merge overlays layers left to right.
func Merge(layers ...*types.Map) *types.Map {
	out := types.NewMap()
	for _, l := range layers {
		if l == nil {
			continue
		}
		l.Range(func(k string, v types.Value) bool {
			out.Set(k, v)
			return true
		})
	}
	return out
}
