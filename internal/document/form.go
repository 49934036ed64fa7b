package document

import (
	"fmt"

	deckerr "github.com/meow-stack/actiondeck/internal/errors"
	"github.com/meow-stack/actiondeck/internal/types"
)

func buildForm(raw types.Value, path string) (*types.Form, error) {
	if raw.Kind() != types.KindMapping {
		return nil, deckerr.ConfigInvalidValue(path, raw.Kind().String(), "form must be a mapping")
	}
	fields, ok := raw.Map().Get("fields")
	if !ok || fields.IsNull() {
		return &types.Form{}, nil
	}
	if fields.Kind() != types.KindSequence {
		return nil, deckerr.ConfigInvalidValue(path+".fields", fields.Kind().String(), "fields must be a list")
	}
	list, err := buildFields(fields.Items(), path+".fields")
	if err != nil {
		return nil, err
	}
	return &types.Form{Fields: list}, nil
}

func buildFields(items []types.Value, path string) ([]*types.Field, error) {
	seen := make(map[string]bool, len(items))
	out := make([]*types.Field, 0, len(items))
	for i, item := range items {
		fpath := fmt.Sprintf("%s[%d]", path, i)
		f, err := buildField(item, fpath)
		if err != nil {
			return nil, err
		}
		if seen[f.ID] {
			return nil, deckerr.ConfigInvalidValue(fpath+".id", f.ID, "duplicate field id")
		}
		seen[f.ID] = true
		out = append(out, f)
	}
	return out, nil
}

func buildField(raw types.Value, path string) (*types.Field, error) {
	if raw.Kind() != types.KindMapping {
		return nil, deckerr.ConfigInvalidValue(path, raw.Kind().String(), "field must be a mapping")
	}
	m := raw.Map()

	id, err := optString(m, "id", path+".id")
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, deckerr.ConfigMissingField(path + ".id")
	}
	typ, err := optString(m, "type", path+".type")
	if err != nil {
		return nil, err
	}
	if typ == "" {
		return nil, deckerr.ConfigMissingField(path + ".type")
	}

	f := &types.Field{ID: id, Type: types.FieldType(typ)}
	if !f.Type.Valid() {
		return nil, deckerr.ConfigInvalidValue(path+".type", typ, "unknown field type")
	}
	if f.Label, err = optString(m, "label", path+".label"); err != nil {
		return nil, err
	}
	if f.Label == "" {
		f.Label = id
	}
	if f.Required, err = optBool(m, "required", path+".required"); err != nil {
		return nil, err
	}
	f.Default, _ = m.Get("default")

	if opts, ok := m.Get("options"); ok && !opts.IsNull() {
		if opts.Kind() != types.KindSequence {
			return nil, deckerr.ConfigInvalidValue(path+".options", opts.Kind().String(), "options must be a list")
		}
		for _, o := range opts.Items() {
			f.Options = append(f.Options, o.String())
		}
	}
	if (f.Type == types.FieldChoice || f.Type == types.FieldMultiChoice) && len(f.Options) == 0 {
		return nil, deckerr.ConfigInvalidValue(path+".options", nil, "choice fields need options")
	}

	if f.Min, err = optNumber(m, "min", path+".min"); err != nil {
		return nil, err
	}
	if f.Max, err = optNumber(m, "max", path+".max"); err != nil {
		return nil, err
	}
	if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
		return nil, deckerr.ConfigInvalidValue(path+".min", *f.Min, "min is greater than max")
	}

	if f.MustExist, err = optBool(m, "must_exist", path+".must_exist"); err != nil {
		return nil, err
	}
	if f.Kind, err = optString(m, "kind", path+".kind"); err != nil {
		return nil, err
	}
	switch f.Kind {
	case "", "file", "dir":
	default:
		return nil, deckerr.ConfigInvalidValue(path+".kind", f.Kind, "kind must be file or dir")
	}

	if f.Source, err = optString(m, "source", path+".source"); err != nil {
		return nil, err
	}
	switch f.Source {
	case "":
		if f.Type == types.FieldSecret {
			f.Source = "inline"
		}
	case "inline", "env":
	default:
		return nil, deckerr.ConfigInvalidValue(path+".source", f.Source, "source must be inline or env")
	}
	if f.EnvVar, err = optString(m, "env", path+".env"); err != nil {
		return nil, err
	}

	if schema, ok := m.Get("item_schema"); ok && !schema.IsNull() {
		if schema.Kind() != types.KindSequence {
			return nil, deckerr.ConfigInvalidValue(path+".item_schema", schema.Kind().String(), "item_schema must be a list")
		}
		if f.ItemSchema, err = buildFields(schema.Items(), path+".item_schema"); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func optNumber(m *types.Map, key, path string) (*float64, error) {
	v, ok := m.Get(key)
	if !ok || v.IsNull() {
		return nil, nil
	}
	n, isNum := v.AsNumber()
	if !isNum {
		return nil, deckerr.ConfigInvalidValue(path, v.String(), "must be a number")
	}
	return &n, nil
}
