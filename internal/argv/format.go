package argv

import (
	"fmt"
	"strings"

	"github.com/meow-stack/actiondeck/internal/types"
)

// A repeat/join template: literal text with {} / {0} for the element,
// {key} for a key of a mapping element and {{ / }} for literal braces.
type entryTemplate []templatePart

type templatePart struct {
	literal string
	field   string // "" for the element itself
	isField bool
}

func compileTemplate(s string) (entryTemplate, error) {
	var parts entryTemplate
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			parts = append(parts, templatePart{literal: lit.String()})
			lit.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '{' && i+1 < len(s) && s[i+1] == '{':
			lit.WriteByte('{')
			i++
		case c == '}' && i+1 < len(s) && s[i+1] == '}':
			lit.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(s[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("template %q: unclosed '{'", s)
			}
			name := strings.TrimSpace(s[i+1 : i+1+end])
			if name == "0" {
				name = ""
			}
			flush()
			parts = append(parts, templatePart{field: name, isField: true})
			i += end + 1
		case c == '}':
			return nil, fmt.Errorf("template %q: single '}' encountered", s)
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return parts, nil
}

func (t entryTemplate) apply(entry types.Value) (string, error) {
	var sb strings.Builder
	for _, p := range t {
		if !p.isField {
			sb.WriteString(p.literal)
			continue
		}
		if p.field == "" {
			sb.WriteString(entry.String())
			continue
		}
		m := entry.Map()
		if m == nil {
			return "", fmt.Errorf("template field {%s} needs a mapping element, got %s", p.field, entry.Kind())
		}
		v, ok := m.Get(p.field)
		if !ok {
			return "", fmt.Errorf("template field {%s} missing from element %s", p.field, entry)
		}
		sb.WriteString(v.String())
	}
	return sb.String(), nil
}
