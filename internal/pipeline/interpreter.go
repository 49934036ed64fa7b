// Package pipeline interprets the step tree of an action: run steps,
// nested pipelines and foreach loops, with `when` skipping,
// continue_on_error and on_error recovery.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meow-stack/actiondeck/internal/argv"
	deckerr "github.com/meow-stack/actiondeck/internal/errors"
	"github.com/meow-stack/actiondeck/internal/executor"
	"github.com/meow-stack/actiondeck/internal/logging"
	"github.com/meow-stack/actiondeck/internal/runctx"
	"github.com/meow-stack/actiondeck/internal/template"
	"github.com/meow-stack/actiondeck/internal/types"
)

// LogFunc receives user-facing run log lines. It is called concurrently
// for the stdout and stderr of a running process.
type LogFunc func(line string)

// Report is the outcome of one action run.
type Report struct {
	Status types.ActionStatus
	// Steps lists every visited step in visit order.
	Steps   []types.StepOutcome
	Results map[string]*types.StepResult
	// Err is the error that aborted the run, nil if it ran to completion.
	Err error
	// FailedStep is the path of the step Err originated from.
	FailedStep string
}

// Failed reports whether any visited step failed.
func (r *Report) Failed() bool {
	for _, s := range r.Steps {
		if s.State == types.StepFailed {
			return true
		}
	}
	return r.Err != nil
}

// Interpreter runs action pipelines of one document.
type Interpreter struct {
	doc            *types.Document
	renderer       *template.Renderer
	serializer     *argv.Serializer
	runner         executor.Runner
	logger         *slog.Logger
	defaultTimeout time.Duration
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithLogger sets the diagnostics logger.
func WithLogger(l *slog.Logger) Option {
	return func(in *Interpreter) { in.logger = l }
}

// WithRenderer shares a template renderer (and its expression cache).
func WithRenderer(r *template.Renderer) Option {
	return func(in *Interpreter) { in.renderer = r }
}

// WithDefaultTimeout applies to run steps without timeout_ms.
func WithDefaultTimeout(d time.Duration) Option {
	return func(in *Interpreter) { in.defaultTimeout = d }
}

// New creates an Interpreter launching processes through runner.
func New(doc *types.Document, runner executor.Runner, opts ...Option) *Interpreter {
	in := &Interpreter{
		doc:    doc,
		runner: runner,
		logger: logging.NewForTest(),
	}
	for _, opt := range opts {
		opt(in)
	}
	if in.renderer == nil {
		in.renderer = template.New(nil)
	}
	in.serializer = argv.New(in.renderer)
	return in
}

// Document returns the interpreted document.
func (in *Interpreter) Document() *types.Document { return in.doc }

// Run executes the pipeline of action against rc. It never panics on step
// failures; the outcome is described by the returned Report.
func (in *Interpreter) Run(ctx context.Context, action *types.Action, rc *runctx.Context, log LogFunc) *Report {
	if log == nil {
		log = func(string) {}
	}
	f := &flow{in: in, action: action, rc: rc, log: log, logger: logging.WithAction(in.logger, action.ID)}

	err := f.runSteps(ctx, action.Pipeline, "")
	report := &Report{Err: err}
	if err != nil {
		report.FailedStep = f.originPath
		log(fmt.Sprintf("[error] %s", err))
		if len(action.OnError) > 0 && ctx.Err() == nil {
			f.recover(ctx, err)
		}
	}

	report.Steps = f.outcomes
	report.Results = rc.Results()
	report.Status = types.ActionSuccess
	if report.Failed() {
		report.Status = types.ActionFailed
	}
	return report
}

// flow is the state of one run.
type flow struct {
	in     *Interpreter
	action *types.Action
	rc     *runctx.Context
	log    LogFunc
	logger *slog.Logger

	outcomes []types.StepOutcome

	originErr  error
	originPath string
}

// recover runs the on_error steps with the error scope bound. Failures are
// logged and recorded but do not change the action outcome.
func (f *flow) recover(ctx context.Context, cause error) {
	f.rc.SetError(f.originPath, deckerr.TypeName(cause), cause.Error())
	defer f.rc.ClearError()

	f.log("[on_error] running recovery steps")
	if err := f.runSteps(ctx, f.action.OnError, "on_error."); err != nil {
		f.log(fmt.Sprintf("[error] on_error: %s", err))
	}
}

func (f *flow) runSteps(ctx context.Context, steps []*types.Step, prefix string) error {
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return deckerr.ProcessCancelled(err)
		}
		if err := f.runStep(ctx, step, prefix+step.ID); err != nil {
			return err
		}
	}
	return nil
}

func (f *flow) runStep(ctx context.Context, step *types.Step, path string) error {
	idx := len(f.outcomes)
	f.outcomes = append(f.outcomes, types.StepOutcome{Path: path, ID: step.ID, State: types.StepPending})
	logger := logging.WithStep(f.logger, path, string(step.Kind))

	if step.HasWhen {
		cond, err := f.in.renderer.Render(step.When, f.rc)
		if err != nil {
			f.setState(idx, types.StepRunning)
			return f.fail(idx, path, fmt.Errorf("%s: when: %w", step.ID, err), false)
		}
		if !cond.Truthy() {
			f.setState(idx, types.StepSkipped)
			f.log(fmt.Sprintf("[skip] %s (when=false)", step.ID))
			logger.Debug("step skipped")
			return nil
		}
	}

	f.setState(idx, types.StepRunning)
	logger.Debug("step started")

	var err error
	switch step.Kind {
	case types.StepRun:
		err = f.runProcess(ctx, step, path)
	case types.StepPipeline:
		err = f.runSteps(ctx, step.Pipeline, path+".")
	case types.StepForeach:
		err = f.runForeach(ctx, step, path)
	default:
		err = deckerr.ConfigInvalidValue(path, string(step.Kind), "unknown step type")
	}

	if err != nil {
		return f.fail(idx, path, err, step.ContinueOnError)
	}
	f.setState(idx, types.StepSucceeded)
	logger.Debug("step succeeded")
	return nil
}

func (f *flow) setState(idx int, state types.StepState) {
	o := &f.outcomes[idx]
	if !o.State.CanTransitionTo(state) {
		f.logger.Warn("invalid step transition", "step", o.Path, "from", o.State, "to", state)
	}
	o.State = state
}

// fail records a failed step. Recoverable errors are swallowed when the
// step continues on error; cancellation always aborts.
func (f *flow) fail(idx int, path string, err error, continueOnError bool) error {
	f.setState(idx, types.StepFailed)
	f.outcomes[idx].Error = err.Error()
	if f.originErr != err {
		f.originErr = err
		f.originPath = path
	}

	if continueOnError && deckerr.IsRecoverable(err) && !deckerr.HasCode(err, deckerr.CodeProcessCancelled) {
		f.log(fmt.Sprintf("[warn] %s: %s", f.outcomes[idx].ID, err))
		return nil
	}
	return err
}

func (f *flow) runForeach(ctx context.Context, step *types.Step, path string) error {
	spec := step.Foreach
	items, err := f.in.renderer.Render(spec.In, f.rc)
	if err != nil {
		return fmt.Errorf("%s: foreach.in: %w", step.ID, err)
	}
	if items.Kind() != types.KindSequence {
		return deckerr.TypeMismatch(step.ID+": foreach.in", "a sequence", items.Kind().String()).
			WithDetail("step", path)
	}

	as := spec.As
	if as == "" {
		as = "item"
	}
	for i, item := range items.Items() {
		f.rc.Push(as, item, i)
		err := f.runSteps(ctx, spec.Steps, fmt.Sprintf("%s[%d].", path, i))
		f.rc.Pop()
		if err != nil {
			return err
		}
	}
	return nil
}
