package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	deckerr "github.com/meow-stack/actiondeck/internal/errors"
	"github.com/meow-stack/actiondeck/internal/executor"
	"github.com/meow-stack/actiondeck/internal/runctx"
	"github.com/meow-stack/actiondeck/internal/types"
)

// pythonProgram is replaced by runtime.python.executable when configured.
const pythonProgram = "python"

// Resolve renders a run step into a launchable invocation.
func (in *Interpreter) Resolve(action *types.Action, step *types.Step, rc *runctx.Context) (*executor.Invocation, error) {
	rs := step.Run
	if rs == nil {
		return nil, deckerr.ConfigMissingField(step.ID + ".run")
	}

	program, err := in.renderer.RenderText(rs.Program, rc)
	if err != nil {
		return nil, fmt.Errorf("%s: program: %w", step.ID, err)
	}
	if program == pythonProgram && !in.doc.Runtime.PythonExecutable.IsNull() {
		program, err = in.renderer.RenderText(in.doc.Runtime.PythonExecutable, rc)
		if err != nil {
			return nil, fmt.Errorf("runtime.python.executable: %w", err)
		}
	}
	if program == "" {
		return nil, deckerr.ConfigInvalidValue(step.ID+".program", "", "program renders to an empty string")
	}

	args, err := in.serializer.Serialize(rs.Argv, rc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", step.ID, err)
	}

	dir, err := in.workdir(action, rs, rc)
	if err != nil {
		return nil, fmt.Errorf("%s: workdir: %w", step.ID, err)
	}

	env, err := in.environ(action, rs, rc)
	if err != nil {
		return nil, fmt.Errorf("%s: env: %w", step.ID, err)
	}

	shell := in.doc.App.Shell
	if rs.Shell != nil {
		shell = *rs.Shell
	}

	timeout := in.defaultTimeout
	if rs.TimeoutMS > 0 {
		timeout = time.Duration(rs.TimeoutMS) * time.Millisecond
	}

	return &executor.Invocation{
		Program: program,
		Args:    args,
		Dir:     dir,
		Env:     env,
		Shell:   shell,
		Timeout: timeout,
		Stdout:  rs.Stdout,
		Stderr:  rs.Stderr,
	}, nil
}

// workdir picks the first declared of step, action and app workdir. An
// empty result means the process working directory.
func (in *Interpreter) workdir(action *types.Action, rs *types.RunSpec, rc *runctx.Context) (string, error) {
	for _, v := range []types.Value{rs.Workdir, action.Workdir, in.doc.App.Workdir} {
		if v.IsNull() {
			continue
		}
		return in.renderer.RenderText(v, rc)
	}
	return "", nil
}

// environ layers process env < app.env < action.env < step.env.
func (in *Interpreter) environ(action *types.Action, rs *types.RunSpec, rc *runctx.Context) ([]string, error) {
	merged := make(map[string]string)
	for _, kv := range rc.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			merged[k] = v
		}
	}

	for _, layer := range []*types.Map{in.doc.App.Env, action.Env, rs.Env} {
		if layer == nil {
			continue
		}
		var rerr error
		layer.Range(func(k string, v types.Value) bool {
			s, err := in.renderer.RenderText(v, rc)
			if err != nil {
				rerr = fmt.Errorf("%s: %w", k, err)
				return false
			}
			merged[k] = s
			return true
		})
		if rerr != nil {
			return nil, rerr
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+merged[k])
	}
	return out, nil
}

// runProcess executes a run step and records its StepResult.
func (f *flow) runProcess(ctx context.Context, step *types.Step, path string) error {
	inv, err := f.in.Resolve(f.action, step, f.rc)
	if err != nil {
		return err
	}
	inv.OnLine = func(stream, line string) {
		f.log(fmt.Sprintf("[%s] %s", stream, line))
	}

	f.log(fmt.Sprintf("[run] %s: %s", step.ID, executor.CommandLine(inv)))
	res, err := f.in.runner.Run(ctx, inv)
	if res != nil {
		f.rc.SetStepResult(step.ID, &types.StepResult{
			ExitCode:   res.ExitCode,
			Stdout:     res.Stdout,
			Stderr:     res.Stderr,
			DurationMS: res.Duration.Milliseconds(),
		})
	}
	if err != nil {
		return fmt.Errorf("%s: %w", step.ID, err)
	}
	if res.ExitCode != 0 {
		return deckerr.ProcessExit(step.ID, res.ExitCode).WithDetail("path", path)
	}
	return nil
}
