package pipeline

import (
	"fmt"
	"regexp"

	"github.com/meow-stack/actiondeck/internal/argv"
	deckerr "github.com/meow-stack/actiondeck/internal/errors"
	"github.com/meow-stack/actiondeck/internal/template"
	"github.com/meow-stack/actiondeck/internal/types"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate statically checks an action before it is launched: step shape,
// sibling id uniqueness, argv declarations and template syntax. It returns
// a CONFIG_* error describing the first problem.
func Validate(action *types.Action, r *template.Renderer) error {
	if r == nil {
		r = template.New(nil)
	}
	v := &validator{r: r}
	if err := v.steps(action.Pipeline, action.ID); err != nil {
		return err
	}
	return v.steps(action.OnError, action.ID+".on_error")
}

type validator struct {
	r *template.Renderer
}

func (v *validator) steps(steps []*types.Step, prefix string) error {
	seen := make(map[string]bool, len(steps))
	for _, s := range steps {
		path := prefix + "." + s.ID
		if s.ID == "" {
			return deckerr.ConfigMissingField(prefix + ".id")
		}
		if seen[s.ID] {
			return deckerr.New(deckerr.CodeConfigDuplicateID, fmt.Sprintf("duplicate step id %q in %s", s.ID, prefix)).
				WithDetail("id", s.ID)
		}
		seen[s.ID] = true

		if s.HasWhen {
			if err := v.template(path+".when", s.When); err != nil {
				return err
			}
		}
		if err := v.body(s, path); err != nil {
			return err
		}
	}
	return nil
}

func (v *validator) body(s *types.Step, path string) error {
	switch s.Kind {
	case types.StepRun:
		if s.Run == nil || s.Run.Program.IsNull() {
			return deckerr.ConfigMissingField(path + ".run.program")
		}
		if err := v.template(path+".run.program", s.Run.Program); err != nil {
			return err
		}
		if err := argv.Validate(s.Run.Argv); err != nil {
			return deckerr.Wrapf(deckerr.CodeConfigInvalidValue, err, "%s.run.argv: invalid", path)
		}
		for _, item := range s.Run.Argv {
			vals := []types.Value{item.Text, item.Value}
			if item.Option != nil {
				vals = append(vals, item.Option.From, item.Option.When)
			}
			for _, t := range vals {
				if err := v.template(path+".run.argv", t); err != nil {
					return err
				}
			}
		}
		return nil
	case types.StepPipeline:
		return v.steps(s.Pipeline, path)
	case types.StepForeach:
		if s.Foreach == nil {
			return deckerr.ConfigMissingField(path + ".foreach")
		}
		if s.Foreach.As != "" && !identRe.MatchString(s.Foreach.As) {
			return deckerr.ConfigInvalidValue(path+".foreach.as", s.Foreach.As, "must be an identifier")
		}
		if err := v.template(path+".foreach.in", s.Foreach.In); err != nil {
			return err
		}
		return v.steps(s.Foreach.Steps, path)
	}
	return deckerr.ConfigInvalidValue(path, string(s.Kind), "step needs exactly one of run, pipeline, foreach")
}

func (v *validator) template(field string, val types.Value) error {
	s, ok := val.AsString()
	if !ok || !template.HasPlaceholder(s) {
		return nil
	}
	if err := v.r.Check(s); err != nil {
		return deckerr.Wrapf(deckerr.CodeConfigInvalidValue, err, "%s: bad template", field)
	}
	return nil
}
