package form

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	deckerr "github.com/meow-stack/actiondeck/internal/errors"
	"github.com/meow-stack/actiondeck/internal/types"
)

func ptr(f float64) *float64 { return &f }

func fields(fs ...*types.Field) *types.Form { return &types.Form{Fields: fs} }

func coerceOne(t *testing.T, f *types.Field, raw any) (types.Value, error) {
	t.Helper()
	c := &Coercer{LookupEnv: func(string) (string, bool) { return "", false }}
	in := types.NewMap()
	if raw != nil {
		in = types.MapOf(f.ID, raw)
	}
	out, err := c.Coerce("act", fields(f), in)
	if err != nil {
		return types.Null(), err
	}
	v, _ := out.Get(f.ID)
	return v, nil
}

func TestCoerce_Scalars(t *testing.T) {
	tests := []struct {
		name  string
		field *types.Field
		raw   any
		want  types.Value
	}{
		{"string", &types.Field{ID: "x", Type: types.FieldString}, "hi", types.String("hi")},
		{"string from number", &types.Field{ID: "x", Type: types.FieldString}, 5, types.String("5")},
		{"string default", &types.Field{ID: "x", Type: types.FieldString, Default: types.String("d")}, nil, types.String("d")},
		{"text empty", &types.Field{ID: "x", Type: types.FieldText}, nil, types.String("")},
		{"bool yes", &types.Field{ID: "x", Type: types.FieldBool}, "yes", types.Bool(true)},
		{"bool typed", &types.Field{ID: "x", Type: types.FieldBool}, false, types.Bool(false)},
		{"bool missing", &types.Field{ID: "x", Type: types.FieldBool}, nil, types.Bool(false)},
		{"tri_bool default", &types.Field{ID: "x", Type: types.FieldTriBool}, nil, types.String("auto")},
		{"tri_bool from bool", &types.Field{ID: "x", Type: types.FieldTriBool}, false, types.String("false")},
		{"int", &types.Field{ID: "x", Type: types.FieldInt}, "42", types.Int(42)},
		{"int empty is null", &types.Field{ID: "x", Type: types.FieldInt}, "", types.Null()},
		{"float", &types.Field{ID: "x", Type: types.FieldFloat}, "0.5", types.Number(0.5)},
		{"choice", &types.Field{ID: "x", Type: types.FieldChoice, Options: []string{"a", "b"}}, "b", types.String("b")},
		{"multichoice csv", &types.Field{ID: "x", Type: types.FieldMultiChoice, Options: []string{"en", "fr"}}, "en, fr", types.Strings("en", "fr")},
		{"multichoice list", &types.Field{ID: "x", Type: types.FieldMultiChoice, Options: []string{"en", "fr"}}, []any{"fr"}, types.Strings("fr")},
		{"multichoice empty", &types.Field{ID: "x", Type: types.FieldMultiChoice, Options: []string{"en"}}, nil, types.Strings()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := coerceOne(t, tt.field, tt.raw)
			if err != nil {
				t.Fatalf("Coerce() error = %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Coerce() = %v (%s), want %v (%s)", got, got.Kind(), tt.want, tt.want.Kind())
			}
		})
	}
}

func TestCoerce_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		field *types.Field
		raw   any
	}{
		{"bool garbage", &types.Field{ID: "x", Type: types.FieldBool}, "maybe"},
		{"tri_bool garbage", &types.Field{ID: "x", Type: types.FieldTriBool}, "sometimes"},
		{"int garbage", &types.Field{ID: "x", Type: types.FieldInt}, "4.5"},
		{"int below min", &types.Field{ID: "x", Type: types.FieldInt, Min: ptr(10)}, "3"},
		{"float above max", &types.Field{ID: "x", Type: types.FieldFloat, Max: ptr(1)}, 1.5},
		{"choice not an option", &types.Field{ID: "x", Type: types.FieldChoice, Options: []string{"a"}}, "z"},
		{"multichoice not an option", &types.Field{ID: "x", Type: types.FieldMultiChoice, Options: []string{"a"}}, "a,z"},
		{"string from list", &types.Field{ID: "x", Type: types.FieldString}, []any{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := coerceOne(t, tt.field, tt.raw)
			var valErr *ValidationError
			if !errors.As(err, &valErr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if _, ok := valErr.Invalid["x"]; !ok {
				t.Errorf("Invalid = %v, want entry for x", valErr.Invalid)
			}
			if deckerr.Code(err) != deckerr.CodeFormInvalid {
				t.Errorf("Code = %q, want %q", deckerr.Code(err), deckerr.CodeFormInvalid)
			}
		})
	}
}

func TestCoerce_RequiredAndUnknown(t *testing.T) {
	form := fields(
		&types.Field{ID: "name", Type: types.FieldString, Required: true},
		&types.Field{ID: "tags", Type: types.FieldMultiChoice, Required: true, Options: []string{"a"}},
	)

	_, err := Coerce("act", form, types.MapOf("nmae", "typo"))
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if len(valErr.Missing) != 2 {
		t.Errorf("Missing = %v, want [name tags]", valErr.Missing)
	}
	if len(valErr.Unknown) != 1 || valErr.Unknown[0] != "nmae" {
		t.Errorf("Unknown = %v, want [nmae]", valErr.Unknown)
	}
	if len(valErr.Problems()) != 3 {
		t.Errorf("Problems() = %v", valErr.Problems())
	}

	_, err = Coerce("act", fields(), types.MapOf("extra", 1))
	if deckerr.Code(err) != deckerr.CodeFormUnknown {
		t.Errorf("Code = %q, want %q", deckerr.Code(err), deckerr.CodeFormUnknown)
	}
}

func TestCoerce_KeepsFieldOrder(t *testing.T) {
	form := fields(
		&types.Field{ID: "b", Type: types.FieldString},
		&types.Field{ID: "a", Type: types.FieldString},
	)
	out, err := Coerce("act", form, types.MapOf("a", "1", "b", "2"))
	if err != nil {
		t.Fatalf("Coerce() error = %v", err)
	}
	keys := out.Keys()
	if len(keys) != 2 || keys[0] != "b" || keys[1] != "a" {
		t.Errorf("Keys() = %v, want [b a]", keys)
	}
}

func TestCoerce_SecretFromEnv(t *testing.T) {
	c := &Coercer{LookupEnv: func(name string) (string, bool) {
		if name == "API_TOKEN" {
			return "s3cret", true
		}
		return "", false
	}}
	form := fields(&types.Field{ID: "token", Type: types.FieldSecret, Source: "env", EnvVar: "API_TOKEN"})

	out, err := c.Coerce("act", form, nil)
	if err != nil {
		t.Fatalf("Coerce() error = %v", err)
	}
	if v, _ := out.Get("token"); v.String() != "s3cret" {
		t.Errorf("token = %q, want s3cret", v.String())
	}
}

func TestCoerce_Path(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "in.txt")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	c := &Coercer{BaseDir: dir}

	tests := []struct {
		name    string
		field   *types.Field
		raw     string
		wantErr bool
	}{
		{"existing file", &types.Field{ID: "p", Type: types.FieldPath, MustExist: true, Kind: "file"}, file, false},
		{"relative to base dir", &types.Field{ID: "p", Type: types.FieldPath, MustExist: true}, "in.txt", false},
		{"missing", &types.Field{ID: "p", Type: types.FieldPath, MustExist: true}, "nope.txt", true},
		{"missing allowed", &types.Field{ID: "p", Type: types.FieldPath}, "nope.txt", false},
		{"file where dir expected", &types.Field{ID: "p", Type: types.FieldPath, Kind: "dir"}, file, true},
		{"dir where file expected", &types.Field{ID: "p", Type: types.FieldPath, Kind: "file"}, dir, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Coerce("act", fields(tt.field), types.MapOf("p", tt.raw))
			if (err != nil) != tt.wantErr {
				t.Errorf("Coerce() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCoerce_KVList(t *testing.T) {
	f := &types.Field{ID: "headers", Type: types.FieldKVList}

	for _, raw := range []any{
		[]any{"A=1", map[string]any{"k": "B", "v": "2"}},
		"- k: A\n  v: '1'\n- B=2\n",
		`[{"k": "A", "v": "1"}, "B=2"]`,
	} {
		got, err := coerceOne(t, f, raw)
		if err != nil {
			t.Fatalf("Coerce(%v) error = %v", raw, err)
		}
		want := `[{"k": "A", "v": "1"}, {"k": "B", "v": "2"}]`
		if got.String() != want {
			t.Errorf("Coerce(%v) = %s, want %s", raw, got, want)
		}
	}

	if _, err := coerceOne(t, f, []any{"no-equals"}); err == nil {
		t.Error("expected error for entry without =")
	}
}

func TestCoerce_StructList(t *testing.T) {
	f := &types.Field{ID: "jobs", Type: types.FieldStructList, ItemSchema: []*types.Field{
		{ID: "name", Type: types.FieldString, Required: true},
		{ID: "count", Type: types.FieldInt, Default: types.Int(1)},
	}}

	got, err := coerceOne(t, f, "- name: a\n- name: b\n  count: 3\n")
	if err != nil {
		t.Fatalf("Coerce() error = %v", err)
	}
	want := `[{"name": "a", "count": 1}, {"name": "b", "count": 3}]`
	if got.String() != want {
		t.Errorf("Coerce() = %s, want %s", got, want)
	}

	if _, err := coerceOne(t, f, []any{map[string]any{"count": 2}}); err == nil {
		t.Error("expected error for missing required name")
	}
	if _, err := coerceOne(t, f, []any{map[string]any{"name": "a", "bogus": 1}}); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestPartitionAndPersistable(t *testing.T) {
	form := fields(
		&types.Field{ID: "user", Type: types.FieldString},
		&types.Field{ID: "pass", Type: types.FieldSecret},
	)
	values := types.MapOf("user", "bob", "pass", "pw", "old", 1)

	current, stale := Partition(form, values)
	if current.Len() != 2 || !stale.Has("old") || stale.Len() != 1 {
		t.Errorf("Partition() = %v / %v", current.Keys(), stale.Keys())
	}

	kept := Persistable(form, values)
	if kept.Has("pass") {
		t.Error("Persistable() kept a secret field")
	}
	if !kept.Has("user") {
		t.Error("Persistable() dropped a plain field")
	}
}

func TestParseSet(t *testing.T) {
	m, err := ParseSet([]string{"a=1", "b=x=y", "a=2"})
	if err != nil {
		t.Fatalf("ParseSet() error = %v", err)
	}
	if v, _ := m.Get("a"); v.String() != "2" {
		t.Errorf("a = %q, want 2", v.String())
	}
	if v, _ := m.Get("b"); v.String() != "x=y" {
		t.Errorf("b = %q, want x=y", v.String())
	}
	if _, err := ParseSet([]string{"novalue"}); err == nil {
		t.Error("expected error for pair without =")
	}
}
