package argv

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	deckerr "github.com/meow-stack/actiondeck/internal/errors"
	"github.com/meow-stack/actiondeck/internal/expr"
	"github.com/meow-stack/actiondeck/internal/template"
	"github.com/meow-stack/actiondeck/internal/types"
)

func parseGo(t *testing.T, raw []any) []types.ArgItem {
	t.Helper()
	v, err := types.FromGo(raw)
	require.NoError(t, err)
	items, err := Parse(v)
	require.NoError(t, err)
	return items
}

func formScope(pairs ...any) expr.Scope {
	return expr.MapScope{Map: types.MapOf("form", types.Mapping(types.MapOf(pairs...)))}
}

func serialize(t *testing.T, raw []any, scope expr.Scope) []string {
	t.Helper()
	out, err := New(template.New(nil)).Serialize(parseGo(t, raw), scope)
	require.NoError(t, err)
	return out
}

func TestSerialize(t *testing.T) {
	tests := []struct {
		name  string
		raw   []any
		scope expr.Scope
		want  []string
	}{
		{
			name:  "plain strings and scalars",
			raw:   []any{"build", 5, true, "${form.target}"},
			scope: formScope("target", "all"),
			want:  []string{"build", "5", "true", "all"},
		},
		{
			name:  "short map true",
			raw:   []any{map[string]any{"--verbose": "${form.v}"}},
			scope: formScope("v", true),
			want:  []string{"--verbose"},
		},
		{
			name:  "short map false",
			raw:   []any{map[string]any{"--verbose": "${form.v}"}},
			scope: formScope("v", false),
			want:  []string{},
		},
		{
			name:  "short map string false is a value",
			raw:   []any{map[string]any{"--mode": "${form.v}"}},
			scope: formScope("v", "false"),
			want:  []string{"--mode", "false"},
		},
		{
			name:  "short map empty and null",
			raw:   []any{map[string]any{"-a": ""}, map[string]any{"-b": nil}},
			scope: formScope(),
			want:  []string{},
		},
		{
			name:  "short map list",
			raw:   []any{map[string]any{"-I": "${form.dirs}"}},
			scope: formScope("dirs", []any{"a", "b"}),
			want:  []string{"-I", "a", "-I", "b"},
		},
		{
			name:  "short map number",
			raw:   []any{map[string]any{"-j": 4}},
			scope: formScope(),
			want:  []string{"-j", "4"},
		},
		{
			name: "tri-state auto omitted",
			raw: []any{map[string]any{
				"opt": "--color", "from": "${form.color}", "false_opt": "--no-color",
			}},
			scope: formScope("color", "auto"),
			want:  []string{},
		},
		{
			name: "tri-state true",
			raw: []any{map[string]any{
				"opt": "--color", "from": "${form.color}", "false_opt": "--no-color",
			}},
			scope: formScope("color", "true"),
			want:  []string{"--color"},
		},
		{
			name: "tri-state false uses false_opt",
			raw: []any{map[string]any{
				"opt": "--color", "from": "${form.color}", "false_opt": "--no-color",
			}},
			scope: formScope("color", "false"),
			want:  []string{"--no-color"},
		},
		{
			name: "tri-state false without false_opt",
			raw: []any{map[string]any{
				"opt": "--color", "from": "${form.color}",
			}},
			scope: formScope("color", "false"),
			want:  []string{},
		},
		{
			name: "auto bool is flag",
			raw: []any{map[string]any{
				"opt": "--dry-run", "from": "${form.dry}", "false_opt": "--apply",
			}},
			scope: formScope("dry", false),
			want:  []string{"--apply"},
		},
		{
			name: "flag uses truthiness",
			raw: []any{map[string]any{
				"opt": "--force", "from": "${form.n}", "mode": "flag",
			}},
			scope: formScope("n", 2),
			want:  []string{"--force"},
		},
		{
			name: "join",
			raw: []any{map[string]any{
				"opt": "--langs", "from": "${form.langs}", "mode": "join",
			}},
			scope: formScope("langs", []any{"en", "fr"}),
			want:  []string{"--langs", "en,fr"},
		},
		{
			name: "join equals with joiner and scalar",
			raw: []any{map[string]any{
				"opt": "--langs", "from": "${form.langs}", "mode": "join", "style": "equals", "joiner": ";",
			}},
			scope: formScope("langs", "en"),
			want:  []string{"--langs=en"},
		},
		{
			name: "repeat with template",
			raw: []any{map[string]any{
				"opt": "--header", "from": "${form.headers}", "mode": "repeat", "template": "{k}: {v}",
			}},
			scope: formScope("headers", []any{map[string]any{"k": "A", "v": 1}}),
			want:  []string{"--header", "A: 1"},
		},
		{
			name: "auto list is repeat",
			raw: []any{map[string]any{
				"opt": "-t", "from": "${form.tags}", "style": "equals",
			}},
			scope: formScope("tags", []any{"x", "y"}),
			want:  []string{"-t=x", "-t=y"},
		},
		{
			name: "repeat element template with escapes",
			raw: []any{map[string]any{
				"opt": "--set", "from": "${form.vals}", "mode": "repeat", "template": "{{{}}}",
			}},
			scope: formScope("vals", []any{1, 2}),
			want:  []string{"--set", "{1}", "--set", "{2}"},
		},
		{
			name: "value mode",
			raw: []any{map[string]any{
				"opt": "--out", "from": "${form.out}",
			}},
			scope: formScope("out", "dist"),
			want:  []string{"--out", "dist"},
		},
		{
			name: "empty value omitted by default",
			raw: []any{map[string]any{
				"opt": "--out", "from": "${form.out}",
			}},
			scope: formScope("out", ""),
			want:  []string{},
		},
		{
			name: "empty value kept when omit_if_empty false",
			raw: []any{map[string]any{
				"opt": "--out", "from": "${form.out}", "mode": "value", "omit_if_empty": false,
			}},
			scope: formScope("out", ""),
			want:  []string{"--out", ""},
		},
		{
			name: "when false skips",
			raw: []any{map[string]any{
				"opt": "--out", "from": "dist", "when": "${form.enabled}",
			}},
			scope: formScope("enabled", false),
			want:  []string{},
		},
		{
			name: "numbers stringify canonically",
			raw: []any{map[string]any{
				"opt": "--ratio", "from": "${form.r}", "style": "equals",
			}},
			scope: formScope("r", 2.0),
			want:  []string{"--ratio=2"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := serialize(t, tt.raw, tt.scope)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Serialize() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		code string
	}{
		{"not a list", "x", deckerr.CodeArgSpecInvalid},
		{"null item", []any{nil}, deckerr.CodeArgSpecInvalid},
		{"nested list", []any{[]any{"a"}}, deckerr.CodeArgSpecInvalid},
		{"empty map", []any{map[string]any{}}, deckerr.CodeArgSpecInvalid},
		{"extended without opt", []any{map[string]any{"from": "x", "mode": "flag"}}, deckerr.CodeArgSpecMissingOpt},
		{"two short keys", []any{map[string]any{"-a": 1, "-b": 2}}, deckerr.CodeArgSpecInvalid},
		{"omit_if_empty not bool", []any{map[string]any{"opt": "-a", "omit_if_empty": "yes"}}, deckerr.CodeArgSpecInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := types.FromGo(tt.raw)
			require.NoError(t, err)
			_, err = Parse(v)
			require.Error(t, err)
			assert.Equal(t, tt.code, deckerr.Code(err))
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		raw  []any
		code string
	}{
		{"bad mode", []any{map[string]any{"opt": "-a", "mode": "sometimes"}}, deckerr.CodeArgSpecInvalid},
		{"bad style", []any{map[string]any{"opt": "-a", "style": "colon"}}, deckerr.CodeArgSpecInvalid},
		{"unknown key", []any{map[string]any{"opt": "-a", "frm": "x"}}, deckerr.CodeArgSpecInvalid},
		{"empty opt", []any{map[string]any{"opt": "", "from": "x"}}, deckerr.CodeArgSpecMissingOpt},
		{"bad template", []any{map[string]any{"opt": "-a", "template": "{unclosed"}}, deckerr.CodeArgSpecInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(parseGo(t, tt.raw))
			require.Error(t, err)
			assert.Equal(t, tt.code, deckerr.Code(err))
			assert.False(t, deckerr.IsRecoverable(err))
		})
	}

	assert.NoError(t, Validate(parseGo(t, []any{"a", map[string]any{"-b": 1}, map[string]any{"opt": "-c"}})))
}

func TestSerialize_TemplateFieldMissing(t *testing.T) {
	items := parseGo(t, []any{map[string]any{
		"opt": "--header", "from": "${form.h}", "mode": "repeat", "template": "{k}",
	}})
	_, err := New(template.New(nil)).Serialize(items, formScope("h", []any{"plain"}))
	require.Error(t, err)
	assert.Equal(t, deckerr.CodeArgSpecTemplate, deckerr.Code(err))
}

func TestSerialize_ExpressionErrorPropagates(t *testing.T) {
	items := parseGo(t, []any{"${form.missing}"})
	_, err := New(template.New(nil)).Serialize(items, formScope())
	require.Error(t, err)
	assert.Equal(t, deckerr.CodeExprUnresolved, deckerr.Code(err))
	assert.Contains(t, err.Error(), "argv[0]")
}
