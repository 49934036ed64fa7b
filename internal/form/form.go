// Package form coerces and validates the values submitted for an action's
// form fields, from CLI strings or from typed values (presets, YAML files).
package form

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	deckerr "github.com/meow-stack/actiondeck/internal/errors"
	"github.com/meow-stack/actiondeck/internal/types"
)

// ValidationError lists every field that failed coercion.
type ValidationError struct {
	ActionID string
	Missing  []string          // required fields without a value
	Invalid  map[string]string // field id -> problem
	Unknown  []string          // submitted keys the form does not declare
}

func (e *ValidationError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "invalid form values for %s", e.ActionID)
	for _, p := range e.Problems() {
		sb.WriteString("\n  - ")
		sb.WriteString(p)
	}
	return sb.String()
}

// Problems returns one line per failure, in a stable order.
func (e *ValidationError) Problems() []string {
	var out []string
	for _, id := range e.Unknown {
		out = append(out, fmt.Sprintf("%s: unknown field", id))
	}
	for _, id := range e.Missing {
		out = append(out, fmt.Sprintf("%s is required", id))
	}
	ids := make([]string, 0, len(e.Invalid))
	for id := range e.Invalid {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		out = append(out, fmt.Sprintf("%s: %s", id, e.Invalid[id]))
	}
	return out
}

// Unwrap exposes the coded error so errors.Code works on it.
func (e *ValidationError) Unwrap() error {
	if len(e.Unknown) > 0 && len(e.Missing) == 0 && len(e.Invalid) == 0 {
		return deckerr.Newf(deckerr.CodeFormUnknown, "unknown fields: %s", strings.Join(e.Unknown, ", "))
	}
	return deckerr.FormInvalid(e.Problems())
}

func (e *ValidationError) empty() bool {
	return len(e.Missing) == 0 && len(e.Invalid) == 0 && len(e.Unknown) == 0
}

// Coercer converts submitted values into typed form values.
type Coercer struct {
	// LookupEnv reads secret fields with source env.
	LookupEnv func(string) (string, bool)
	// BaseDir resolves relative paths for must_exist/kind checks.
	BaseDir string
}

// NewCoercer returns a Coercer reading the process environment.
func NewCoercer(baseDir string) *Coercer {
	return &Coercer{LookupEnv: os.LookupEnv, BaseDir: baseDir}
}

// Coerce validates input against form and returns the values in field
// order. Missing fields take their default. All failures are collected into
// one *ValidationError.
func (c *Coercer) Coerce(actionID string, form *types.Form, input *types.Map) (*types.Map, error) {
	if input == nil {
		input = types.NewMap()
	}
	valErr := &ValidationError{ActionID: actionID, Invalid: make(map[string]string)}

	for _, key := range input.Keys() {
		if form.Field(key) == nil {
			valErr.Unknown = append(valErr.Unknown, key)
		}
	}

	out := types.NewMap()
	if form != nil {
		for _, f := range form.Fields {
			raw, ok := input.Get(f.ID)
			if !ok {
				raw = f.Default
			}
			v, err := c.field(f, raw)
			if err != nil {
				valErr.Invalid[f.ID] = err.Error()
				continue
			}
			if f.Required && isBlank(v) {
				valErr.Missing = append(valErr.Missing, f.ID)
				continue
			}
			out.Set(f.ID, v)
		}
	}

	if !valErr.empty() {
		return nil, valErr
	}
	return out, nil
}

// Coerce validates input using the process environment.
func Coerce(actionID string, form *types.Form, input *types.Map) (*types.Map, error) {
	return NewCoercer("").Coerce(actionID, form, input)
}

func isBlank(v types.Value) bool {
	switch v.Kind() {
	case types.KindNull:
		return true
	case types.KindString, types.KindSequence:
		return v.IsEmpty()
	}
	return false
}

func (c *Coercer) field(f *types.Field, raw types.Value) (types.Value, error) {
	switch f.Type {
	case types.FieldString, types.FieldText, "":
		return scalarString(raw)

	case types.FieldSecret:
		if f.Source == "env" {
			if f.EnvVar == "" {
				return types.String(""), nil
			}
			val, _ := c.LookupEnv(f.EnvVar)
			return types.String(val), nil
		}
		return scalarString(raw)

	case types.FieldPath:
		v, err := scalarString(raw)
		if err != nil {
			return v, err
		}
		return v, c.checkPath(f, v)

	case types.FieldBool:
		if raw.IsNull() {
			return types.Bool(false), nil
		}
		return parseBool(raw)

	case types.FieldTriBool:
		return parseTriBool(raw)

	case types.FieldInt, types.FieldFloat:
		return parseNumber(f, raw)

	case types.FieldChoice:
		v, err := scalarString(raw)
		if err != nil || v.IsEmpty() {
			return v, err
		}
		s, _ := v.AsString()
		if !contains(f.Options, s) {
			return v, fmt.Errorf("%q is not one of %s", s, strings.Join(f.Options, ", "))
		}
		return v, nil

	case types.FieldMultiChoice:
		return parseMultiChoice(f, raw)

	case types.FieldKVList:
		return parseKVList(raw)

	case types.FieldStructList:
		return c.parseStructList(f, raw)
	}
	return types.Null(), fmt.Errorf("unsupported field type %q", f.Type)
}

func scalarString(raw types.Value) (types.Value, error) {
	switch raw.Kind() {
	case types.KindNull:
		return types.String(""), nil
	case types.KindString:
		return raw, nil
	case types.KindNumber, types.KindBool:
		return types.String(raw.String()), nil
	}
	return types.Null(), fmt.Errorf("expected a scalar, got %s", raw.Kind())
}

func parseBool(raw types.Value) (types.Value, error) {
	switch raw.Kind() {
	case types.KindBool:
		return raw, nil
	case types.KindNumber:
		n, _ := raw.AsNumber()
		return types.Bool(n != 0), nil
	case types.KindString:
		s, _ := raw.AsString()
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "yes", "on", "1":
			return types.Bool(true), nil
		case "false", "no", "off", "0", "":
			return types.Bool(false), nil
		}
		return types.Null(), fmt.Errorf("invalid boolean: %s (expected true/false)", s)
	}
	return types.Null(), fmt.Errorf("invalid boolean of kind %s", raw.Kind())
}

// parseTriBool yields the strings "auto", "true" or "false".
func parseTriBool(raw types.Value) (types.Value, error) {
	switch raw.Kind() {
	case types.KindNull:
		return types.String("auto"), nil
	case types.KindBool:
		b, _ := raw.AsBool()
		return types.String(strconv.FormatBool(b)), nil
	case types.KindString:
		s, _ := raw.AsString()
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "", "auto":
			return types.String("auto"), nil
		case "true":
			return types.String("true"), nil
		case "false":
			return types.String("false"), nil
		}
		return types.Null(), fmt.Errorf("invalid tri-state %q (expected auto/true/false)", s)
	}
	return types.Null(), fmt.Errorf("invalid tri-state of kind %s", raw.Kind())
}

func parseNumber(f *types.Field, raw types.Value) (types.Value, error) {
	var n float64
	switch raw.Kind() {
	case types.KindNull:
		return types.Null(), nil
	case types.KindNumber:
		n, _ = raw.AsNumber()
	case types.KindString:
		s, _ := raw.AsString()
		s = strings.TrimSpace(s)
		if s == "" {
			return types.Null(), nil
		}
		var err error
		if f.Type == types.FieldInt {
			var i int64
			i, err = strconv.ParseInt(s, 10, 64)
			n = float64(i)
		} else {
			n, err = strconv.ParseFloat(s, 64)
		}
		if err != nil {
			return types.Null(), fmt.Errorf("invalid %s: %s", f.Type, s)
		}
	default:
		return types.Null(), fmt.Errorf("invalid %s of kind %s", f.Type, raw.Kind())
	}

	if f.Type == types.FieldInt && n != float64(int64(n)) {
		return types.Null(), fmt.Errorf("invalid int: %s", types.FormatNumber(n))
	}
	if f.Min != nil && n < *f.Min {
		return types.Null(), fmt.Errorf("%s is below the minimum %s", types.FormatNumber(n), types.FormatNumber(*f.Min))
	}
	if f.Max != nil && n > *f.Max {
		return types.Null(), fmt.Errorf("%s is above the maximum %s", types.FormatNumber(n), types.FormatNumber(*f.Max))
	}
	return types.Number(n), nil
}

func parseMultiChoice(f *types.Field, raw types.Value) (types.Value, error) {
	var picked []string
	switch raw.Kind() {
	case types.KindNull:
	case types.KindSequence:
		for _, item := range raw.Items() {
			s, err := scalarString(item)
			if err != nil {
				return types.Null(), err
			}
			str, _ := s.AsString()
			picked = append(picked, str)
		}
	case types.KindString:
		s, _ := raw.AsString()
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				picked = append(picked, part)
			}
		}
	default:
		return types.Null(), fmt.Errorf("expected a list, got %s", raw.Kind())
	}

	for _, p := range picked {
		if !contains(f.Options, p) {
			return types.Null(), fmt.Errorf("%q is not one of %s", p, strings.Join(f.Options, ", "))
		}
	}
	return types.Strings(picked...), nil
}

// parseKVList accepts a list of {k, v} mappings, "k=v" strings, or YAML
// (or JSON) text holding such a list.
func parseKVList(raw types.Value) (types.Value, error) {
	list, err := listOf(raw)
	if err != nil {
		return types.Null(), err
	}

	items := make([]types.Value, 0, len(list))
	for i, item := range list {
		switch item.Kind() {
		case types.KindMapping:
			m := item.Map()
			if !m.Has("k") {
				return types.Null(), fmt.Errorf("[%d]: missing key k", i)
			}
			items = append(items, item)
		case types.KindString:
			s, _ := item.AsString()
			k, v, ok := strings.Cut(s, "=")
			if !ok {
				return types.Null(), fmt.Errorf("[%d]: expected k=v, got %q", i, s)
			}
			items = append(items, types.Mapping(types.MapOf("k", strings.TrimSpace(k), "v", v)))
		default:
			return types.Null(), fmt.Errorf("[%d]: expected a mapping or k=v, got %s", i, item.Kind())
		}
	}
	return types.Sequence(items...), nil
}

func (c *Coercer) parseStructList(f *types.Field, raw types.Value) (types.Value, error) {
	list, err := listOf(raw)
	if err != nil {
		return types.Null(), err
	}

	items := make([]types.Value, 0, len(list))
	for i, item := range list {
		if item.Kind() != types.KindMapping {
			return types.Null(), fmt.Errorf("[%d]: expected a mapping, got %s", i, item.Kind())
		}
		if len(f.ItemSchema) == 0 {
			items = append(items, item)
			continue
		}

		src := item.Map()
		entry := types.NewMap()
		for _, sub := range f.ItemSchema {
			v, ok := src.Get(sub.ID)
			if !ok {
				v = sub.Default
			}
			cv, err := c.field(sub, v)
			if err != nil {
				return types.Null(), fmt.Errorf("[%d].%s: %w", i, sub.ID, err)
			}
			if sub.Required && isBlank(cv) {
				return types.Null(), fmt.Errorf("[%d].%s is required", i, sub.ID)
			}
			entry.Set(sub.ID, cv)
		}
		for _, k := range src.Keys() {
			if !entry.Has(k) {
				return types.Null(), fmt.Errorf("[%d]: unknown key %s", i, k)
			}
		}
		items = append(items, types.Mapping(entry))
	}
	return types.Sequence(items...), nil
}

// listOf returns the items of a sequence, decoding YAML text if needed.
func listOf(raw types.Value) ([]types.Value, error) {
	switch raw.Kind() {
	case types.KindNull:
		return nil, nil
	case types.KindSequence:
		return raw.Items(), nil
	case types.KindString:
		s, _ := raw.AsString()
		if strings.TrimSpace(s) == "" {
			return nil, nil
		}
		var decoded any
		if err := yaml.Unmarshal([]byte(s), &decoded); err != nil {
			return nil, fmt.Errorf("invalid YAML list: %w", err)
		}
		v, err := types.FromGo(decoded)
		if err != nil {
			return nil, err
		}
		if v.Kind() == types.KindString {
			// A single k=v string.
			return []types.Value{v}, nil
		}
		if v.Kind() != types.KindSequence {
			return nil, fmt.Errorf("must be a list, got %s", v.Kind())
		}
		return v.Items(), nil
	}
	return nil, fmt.Errorf("must be a list, got %s", raw.Kind())
}

func (c *Coercer) checkPath(f *types.Field, v types.Value) error {
	s, _ := v.AsString()
	if s == "" {
		return nil
	}
	p := s
	if !filepath.IsAbs(p) && c.BaseDir != "" {
		p = filepath.Join(c.BaseDir, p)
	}
	info, err := os.Stat(p)
	if err != nil {
		if f.MustExist {
			return fmt.Errorf("path does not exist: %s", s)
		}
		return nil
	}
	switch f.Kind {
	case "file":
		if info.IsDir() {
			return fmt.Errorf("must be a file: %s", s)
		}
	case "dir":
		if !info.IsDir() {
			return fmt.Errorf("must be a directory: %s", s)
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
