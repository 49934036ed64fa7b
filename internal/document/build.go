package document

import (
	"fmt"
	"strings"

	"github.com/meow-stack/actiondeck/internal/argv"
	deckerr "github.com/meow-stack/actiondeck/internal/errors"
	"github.com/meow-stack/actiondeck/internal/types"
)

// filePrefix marks a stream routed to a file.
const filePrefix = "file:"

func buildDocument(root *types.Map) (*types.Document, error) {
	version, _ := root.Get("version")
	if n, ok := version.AsInt(); !ok || n != SupportedVersion {
		return nil, deckerr.Newf(deckerr.CodeConfigVersion, "unsupported document version %s (only %d is supported)",
			describe(version), SupportedVersion).WithDetail("version", version.ToGo())
	}

	doc := &types.Document{Version: SupportedVersion}

	app, err := optMap(root, "app", "app")
	if err != nil {
		return nil, err
	}
	if app != nil {
		if doc.App, err = buildApp(app); err != nil {
			return nil, err
		}
	}

	runtime, err := optMap(root, "runtime", "runtime")
	if err != nil {
		return nil, err
	}
	if runtime != nil {
		python, err := optMap(runtime, "python", "runtime.python")
		if err != nil {
			return nil, err
		}
		if python != nil {
			doc.Runtime.PythonExecutable, _ = python.Get("executable")
		}
	}

	vars, err := optMap(root, "vars", "vars")
	if err != nil {
		return nil, err
	}
	if vars != nil {
		doc.Vars = buildVars(vars)
	}

	actions, err := optMap(root, "actions", "actions")
	if err != nil {
		return nil, err
	}
	if actions == nil || actions.Len() == 0 {
		return nil, deckerr.ConfigInvalidValue("actions", nil, "actions must be a non-empty mapping")
	}
	for _, id := range actions.Keys() {
		raw, _ := actions.Get(id)
		action, err := buildAction(id, raw)
		if err != nil {
			return nil, err
		}
		doc.Actions = append(doc.Actions, action)
	}
	return doc, nil
}

func buildApp(m *types.Map) (types.App, error) {
	var app types.App
	var err error
	if app.Title, err = optString(m, "title", "app.title"); err != nil {
		return app, err
	}
	if app.Shell, err = optBool(m, "shell", "app.shell"); err != nil {
		return app, err
	}
	app.Workdir, _ = m.Get("workdir")
	if app.Env, err = optMap(m, "env", "app.env"); err != nil {
		return app, err
	}
	return app, nil
}

// buildVars keeps declaration order. A mapping with a `default` key is the
// extended form; any other value is a literal.
func buildVars(m *types.Map) []types.Variable {
	vars := make([]types.Variable, 0, m.Len())
	m.Range(func(name string, v types.Value) bool {
		variable := types.Variable{Name: name, Raw: v}
		if v.Kind() == types.KindMapping && v.Map().Has("default") {
			meta := v.Map()
			variable.Raw, _ = meta.Get("default")
			if t, ok := meta.Get("type"); ok {
				variable.Type = t.String()
			}
			variable.Meta = meta
		}
		vars = append(vars, variable)
		return true
	})
	return vars
}

func buildAction(id string, raw types.Value) (*types.Action, error) {
	path := "actions." + id
	if raw.Kind() != types.KindMapping {
		return nil, deckerr.ConfigInvalidValue(path, raw.Kind().String(), "action must be a mapping")
	}
	m := raw.Map()

	title, err := optString(m, "title", path+".title")
	if err != nil {
		return nil, err
	}
	if title == "" {
		return nil, deckerr.ConfigMissingField(path + ".title")
	}

	action := &types.Action{ID: id, Title: title}
	if action.Info, err = optString(m, "info", path+".info"); err != nil {
		return nil, err
	}
	action.Workdir, _ = m.Get("workdir")
	if action.Env, err = optMap(m, "env", path+".env"); err != nil {
		return nil, err
	}

	if f, ok := m.Get("form"); ok && !f.IsNull() {
		if action.Form, err = buildForm(f, path+".form"); err != nil {
			return nil, err
		}
	}

	pipeline, hasPipeline := m.Get("pipeline")
	run, hasRun := m.Get("run")
	switch {
	case hasPipeline:
		if pipeline.Kind() != types.KindSequence {
			return nil, deckerr.ConfigInvalidValue(path+".pipeline", pipeline.Kind().String(), "pipeline must be a list")
		}
		if action.Pipeline, err = buildSteps(pipeline.Items(), path+".pipeline"); err != nil {
			return nil, err
		}
	case hasRun:
		spec, err := buildRun(run, path+".run")
		if err != nil {
			return nil, err
		}
		action.Pipeline = []*types.Step{{ID: id + "_run", Kind: types.StepRun, Run: spec}}
	default:
		return nil, deckerr.ConfigInvalidValue(path, nil, "action requires pipeline or run")
	}

	if onErr, ok := m.Get("on_error"); ok && !onErr.IsNull() {
		if onErr.Kind() != types.KindSequence {
			return nil, deckerr.ConfigInvalidValue(path+".on_error", onErr.Kind().String(), "on_error must be a list")
		}
		if action.OnError, err = buildSteps(onErr.Items(), path+".on_error"); err != nil {
			return nil, err
		}
	}
	return action, nil
}

// buildSteps converts sibling steps. Missing ids become step_<n>, n being
// the 1-based position, bumped past ids already taken.
func buildSteps(items []types.Value, path string) ([]*types.Step, error) {
	taken := make(map[string]bool, len(items))
	for i, item := range items {
		if item.Kind() != types.KindMapping {
			return nil, deckerr.ConfigInvalidValue(fmt.Sprintf("%s[%d]", path, i), item.Kind().String(), "step must be a mapping")
		}
		id, err := optString(item.Map(), "id", fmt.Sprintf("%s[%d].id", path, i))
		if err != nil {
			return nil, err
		}
		if id == "" {
			continue
		}
		if taken[id] {
			return nil, deckerr.New(deckerr.CodeConfigDuplicateID, fmt.Sprintf("duplicate step id %q in %s", id, path)).
				WithDetail("id", id)
		}
		taken[id] = true
	}

	steps := make([]*types.Step, 0, len(items))
	for i, item := range items {
		id, _ := optString(item.Map(), "id", "")
		if id == "" {
			n := i + 1
			for taken[fmt.Sprintf("step_%d", n)] {
				n++
			}
			id = fmt.Sprintf("step_%d", n)
			taken[id] = true
		}
		step, err := buildStep(id, item.Map(), fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func buildStep(id string, m *types.Map, path string) (*types.Step, error) {
	step := &types.Step{ID: id}
	var err error
	step.When, step.HasWhen = m.Get("when")
	if step.ContinueOnError, err = optBool(m, "continue_on_error", path+".continue_on_error"); err != nil {
		return nil, err
	}

	var bodies []string
	for _, k := range []string{"run", "pipeline", "foreach"} {
		if m.Has(k) {
			bodies = append(bodies, k)
		}
	}
	if len(bodies) != 1 {
		return nil, deckerr.ConfigInvalidValue(path, strings.Join(bodies, ","),
			"step needs exactly one of run, pipeline, foreach")
	}

	body, _ := m.Get(bodies[0])
	switch bodies[0] {
	case "run":
		step.Kind = types.StepRun
		step.Run, err = buildRun(body, path+".run")
	case "pipeline":
		step.Kind = types.StepPipeline
		if body.Kind() != types.KindSequence {
			return nil, deckerr.ConfigInvalidValue(path+".pipeline", body.Kind().String(), "pipeline must be a list")
		}
		step.Pipeline, err = buildSteps(body.Items(), path+".pipeline")
	case "foreach":
		step.Kind = types.StepForeach
		step.Foreach, err = buildForeach(body, path+".foreach")
	}
	if err != nil {
		return nil, err
	}
	return step, nil
}

func buildForeach(raw types.Value, path string) (*types.ForeachSpec, error) {
	if raw.Kind() != types.KindMapping {
		return nil, deckerr.ConfigInvalidValue(path, raw.Kind().String(), "foreach must be a mapping")
	}
	m := raw.Map()
	in, ok := m.Get("in")
	if !ok {
		return nil, deckerr.ConfigMissingField(path + ".in")
	}
	as, err := optString(m, "as", path+".as")
	if err != nil {
		return nil, err
	}
	if as == "" {
		as = "item"
	}

	spec := &types.ForeachSpec{In: in, As: as}
	if steps, ok := m.Get("steps"); ok && !steps.IsNull() {
		if steps.Kind() != types.KindSequence {
			return nil, deckerr.ConfigInvalidValue(path+".steps", steps.Kind().String(), "steps must be a list")
		}
		if spec.Steps, err = buildSteps(steps.Items(), path+".steps"); err != nil {
			return nil, err
		}
	}
	return spec, nil
}

func buildRun(raw types.Value, path string) (*types.RunSpec, error) {
	if raw.Kind() != types.KindMapping {
		return nil, deckerr.ConfigInvalidValue(path, raw.Kind().String(), "run must be a mapping")
	}
	m := raw.Map()

	program, ok := m.Get("program")
	if !ok || program.IsNull() {
		return nil, deckerr.ConfigMissingField(path + ".program")
	}
	switch program.Kind() {
	case types.KindSequence, types.KindMapping:
		return nil, deckerr.ConfigInvalidValue(path+".program", program.Kind().String(), "program must be a string")
	}

	spec := &types.RunSpec{Program: program}
	var err error

	if rawArgv, ok := m.Get("argv"); ok && !rawArgv.IsNull() {
		if spec.Argv, err = argv.Parse(rawArgv); err != nil {
			return nil, deckerr.Wrapf(deckerr.CodeConfigInvalidValue, err, "%s.argv: invalid", path)
		}
		if err = argv.Validate(spec.Argv); err != nil {
			return nil, deckerr.Wrapf(deckerr.CodeConfigInvalidValue, err, "%s.argv: invalid", path)
		}
	}

	spec.Workdir, _ = m.Get("workdir")
	if spec.Env, err = optMap(m, "env", path+".env"); err != nil {
		return nil, err
	}
	if sh, ok := m.Get("shell"); ok && !sh.IsNull() {
		b, isBool := sh.AsBool()
		if !isBool {
			return nil, deckerr.ConfigInvalidValue(path+".shell", sh.String(), "shell must be a boolean")
		}
		spec.Shell = &b
	}
	if t, ok := m.Get("timeout_ms"); ok && !t.IsNull() {
		ms, isInt := t.AsInt()
		if !isInt || ms < 0 {
			return nil, deckerr.ConfigInvalidValue(path+".timeout_ms", t.String(), "timeout_ms must be a non-negative integer")
		}
		spec.TimeoutMS = ms
	}

	capture := true
	if c, ok := m.Get("capture"); ok && !c.IsNull() {
		b, isBool := c.AsBool()
		if !isBool {
			return nil, deckerr.ConfigInvalidValue(path+".capture", c.String(), "capture must be a boolean")
		}
		capture = b
	}
	if spec.Stdout, err = buildStream(m, "stdout", capture, path); err != nil {
		return nil, err
	}
	if spec.Stderr, err = buildStream(m, "stderr", capture, path); err != nil {
		return nil, err
	}
	return spec, nil
}

// buildStream parses inherit | capture | file:<path> | bool. The legacy
// `capture` flag picks the default.
func buildStream(m *types.Map, key string, capture bool, path string) (types.StreamTarget, error) {
	def := types.StreamTarget{Mode: types.StreamCapture}
	if !capture {
		def.Mode = types.StreamInherit
	}

	v, ok := m.Get(key)
	if !ok || v.IsNull() {
		return def, nil
	}
	if b, isBool := v.AsBool(); isBool {
		if b {
			return types.StreamTarget{Mode: types.StreamCapture}, nil
		}
		return types.StreamTarget{Mode: types.StreamInherit}, nil
	}

	s, _ := v.AsString()
	switch {
	case s == string(types.StreamCapture):
		return types.StreamTarget{Mode: types.StreamCapture}, nil
	case s == string(types.StreamInherit):
		return types.StreamTarget{Mode: types.StreamInherit}, nil
	case strings.HasPrefix(s, filePrefix) && len(s) > len(filePrefix):
		return types.StreamTarget{Mode: types.StreamCapture, Path: s[len(filePrefix):]}, nil
	}
	return def, deckerr.ConfigInvalidValue(path+"."+key, v.String(), "expected inherit, capture or file:<path>")
}

// --- helpers ---

func optString(m *types.Map, key, path string) (string, error) {
	v, ok := m.Get(key)
	if !ok || v.IsNull() {
		return "", nil
	}
	switch v.Kind() {
	case types.KindString, types.KindNumber, types.KindBool:
		return v.String(), nil
	}
	return "", deckerr.ConfigInvalidValue(path, v.Kind().String(), "must be a string")
}

func optBool(m *types.Map, key, path string) (bool, error) {
	v, ok := m.Get(key)
	if !ok || v.IsNull() {
		return false, nil
	}
	b, isBool := v.AsBool()
	if !isBool {
		return false, deckerr.ConfigInvalidValue(path, v.String(), "must be a boolean")
	}
	return b, nil
}

func optMap(m *types.Map, key, path string) (*types.Map, error) {
	v, ok := m.Get(key)
	if !ok || v.IsNull() {
		return nil, nil
	}
	if v.Kind() != types.KindMapping {
		return nil, deckerr.ConfigInvalidValue(path, v.Kind().String(), "must be a mapping")
	}
	return v.Map(), nil
}

func describe(v types.Value) string {
	if v.IsNull() {
		return "<missing>"
	}
	return v.String()
}
