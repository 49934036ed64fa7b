package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	deckerr "github.com/meow-stack/actiondeck/internal/errors"
	"github.com/meow-stack/actiondeck/internal/expr"
	"github.com/meow-stack/actiondeck/internal/types"
)

func scope() expr.Scope {
	return expr.MapScope{Map: types.MapOf(
		"vars", map[string]any{
			"items": []any{1, 2, 3},
			"name":  "demo",
			"none":  nil,
			"on":    true,
			"ratio": 0.5,
			"meta":  map[string]any{"k": "v"},
		},
	)}
}

func TestRender_FullMatchKeepsType(t *testing.T) {
	r := New(nil)

	tests := []struct {
		in   string
		want types.Value
	}{
		{"${vars.items}", types.Sequence(types.Int(1), types.Int(2), types.Int(3))},
		{"  ${ vars.items }  ", types.Sequence(types.Int(1), types.Int(2), types.Int(3))},
		{"${vars.on}", types.Bool(true)},
		{"${vars.none}", types.Null()},
		{"${vars.ratio}", types.Number(0.5)},
		{"${ {'a': vars.name} }", types.Mapping(types.MapOf("a", "demo"))},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := r.Render(types.String(tt.in), scope())
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s (%s)", got, got.Kind())
		})
	}
}

func TestRender_Embedded(t *testing.T) {
	r := New(nil)

	tests := []struct {
		in   string
		want string
	}{
		{"items=${vars.items}", "items=[1, 2, 3]"},
		{"x${vars.none}y", "xy"},
		{"${vars.name}-${vars.on}", "demo-true"},
		{"ratio ${vars.ratio}", "ratio 0.5"},
		{"meta ${vars.meta}", `meta {"k": "v"}`},
		{"brace ${ 'a}b' }!", "brace a}b!"},
		{"no placeholders {here}", "no placeholders {here}"},
		{"$ {not} $x", "$ {not} $x"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := r.Render(types.String(tt.in), scope())
			require.NoError(t, err)
			s, ok := got.AsString()
			require.True(t, ok)
			assert.Equal(t, tt.want, s)
		})
	}
}

func TestRender_NonStringUnchanged(t *testing.T) {
	r := New(nil)
	in := types.Sequence(types.String("${vars.name}"))
	got, err := r.Render(in, scope())
	require.NoError(t, err)
	assert.True(t, in.Equal(got))
}

func TestRender_Errors(t *testing.T) {
	r := New(nil)

	_, err := r.Render(types.String("oops ${vars.name"), scope())
	assert.True(t, deckerr.HasCode(err, deckerr.CodeExprSyntax), "unclosed: %v", err)

	_, err = r.Render(types.String("${vars.missing}"), scope())
	assert.True(t, deckerr.HasCode(err, deckerr.CodeExprUnresolved), "unresolved: %v", err)

	_, err = r.Render(types.String("a ${vars.items + 1} b"), scope())
	assert.True(t, deckerr.HasCode(err, deckerr.CodeExprDisallowed), "disallowed: %v", err)
}

func TestRenderText(t *testing.T) {
	r := New(nil)
	s, err := r.RenderText(types.String("${vars.none}"), scope())
	require.NoError(t, err)
	assert.Equal(t, "", s)

	s, err = r.RenderText(types.Int(7), scope())
	require.NoError(t, err)
	assert.Equal(t, "7", s)
}

func TestCheck(t *testing.T) {
	r := New(nil)
	assert.NoError(t, r.Check("plain"))
	assert.NoError(t, r.Check("${vars.whatever} and ${len(x)}"))
	assert.Error(t, r.Check("${vars.a = 1}"))
	assert.Error(t, r.Check("${unclosed"))
}
