package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/meow-stack/actiondeck/internal/cli"
	deckerr "github.com/meow-stack/actiondeck/internal/errors"
	"github.com/meow-stack/actiondeck/internal/executor"
	"github.com/meow-stack/actiondeck/internal/form"
	"github.com/meow-stack/actiondeck/internal/pipeline"
	"github.com/meow-stack/actiondeck/internal/presets"
	"github.com/meow-stack/actiondeck/internal/runctx"
	"github.com/meow-stack/actiondeck/internal/scheduler"
	"github.com/meow-stack/actiondeck/internal/status"
	"github.com/meow-stack/actiondeck/internal/types"
)

var runCmd = &cobra.Command{
	Use:   "run [action]...",
	Short: "Run one or more actions",
	Long: `Run actions of the document. Several actions run concurrently; the steps
of each action run in order.

Form values are layered: --last, then --preset, then --values, then --set.
Fields not given take their defaults. Unless --no-save is given the values
are remembered as the action's last run. Without arguments an action is
picked interactively.`,
	RunE: runRun,
}

var (
	runInput  inputFlags
	runNoSave bool
)

func init() {
	addInputFlags(runCmd, &runInput)
	runCmd.Flags().BoolVar(&runNoSave, "no-save", false, "do not remember values as the last run")
	rootCmd.AddCommand(runCmd)
}

func addInputFlags(cmd *cobra.Command, in *inputFlags) {
	cmd.Flags().StringArrayVar(&in.set, "set", nil, "form value (format: field=value)")
	cmd.Flags().StringVar(&in.valuesFile, "values", "", "YAML file of form values")
	cmd.Flags().StringVar(&in.preset, "preset", "", "use a saved preset")
	cmd.Flags().BoolVar(&in.last, "last", false, "start from the values of the last run")
}

func runRun(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	if len(args) == 0 {
		id, err := pickAction(cmd, s.doc)
		if err != nil || id == "" {
			return err
		}
		args = []string{id}
	}
	for _, id := range args {
		if s.doc.Action(id) == nil {
			return deckerr.UnknownAction(id)
		}
	}

	store := presets.OpenPresetStore(s.doc.Path)
	builder := runctx.NewBuilder(nil, runctx.WithLogger(s.logger))
	coercer := form.NewCoercer(filepath.Dir(s.doc.Path))
	runs, err := prepareRuns(cmd, s, store, args, builder, coercer)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := executor.NewProcessRunner(s.logger)
	runner.KillGrace = s.cfg.Runner.KillGracePeriod.Duration
	if runner.KillGrace <= 0 {
		runner.KillGrace = executor.NewProcessRunner(nil).KillGrace
	}
	interp := pipeline.New(s.doc, runner,
		pipeline.WithLogger(s.logger),
		pipeline.WithDefaultTimeout(s.cfg.Runner.DefaultTimeout.Duration))
	sched := scheduler.New(interp,
		scheduler.WithLogger(s.logger),
		scheduler.WithBuilder(builder),
		scheduler.WithCoercer(coercer),
		scheduler.WithValueStore(presets.NewStateStore(s.cfg.StatePath(s.dir))))
	defer sched.Close()

	events, unsubscribe := sched.Subscribe(64)
	defer unsubscribe()

	pending := make(map[string]bool, len(runs))
	for _, r := range runs {
		runID, err := sched.Trigger(r.action.ID, r.input)
		if err != nil {
			return fmt.Errorf("%s: %w", r.action.ID, err)
		}
		pending[runID] = true
		if !runNoSave {
			saveLastRun(store, r.action, r.input, s)
		}
	}

	out := cmd.OutOrStdout()
	opts := formatOptions()
	records := make(map[string]*types.RunRecord, len(args))

loop:
	for len(pending) > 0 {
		select {
		case e, ok := <-events:
			if !ok {
				break loop
			}
			switch e.Kind {
			case scheduler.EventLog:
				fmt.Fprintf(out, "[%s] %s\n", e.ActionID, e.Line)
			case scheduler.EventFinished:
				if pending[e.RunID] {
					delete(pending, e.RunID)
					records[e.ActionID] = e.Record
				}
			}
		case <-ctx.Done():
			fmt.Fprintln(out, "\nReceived shutdown signal, stopping...")
			for _, id := range args {
				sched.Stop(id)
			}
			ctx = context.Background()
		}
	}

	failed := 0
	fmt.Fprintln(out)
	for _, id := range args {
		rec := records[id]
		if rec == nil {
			continue
		}
		fmt.Fprintln(out, status.FormatRun(status.NewRunSummary(rec), opts))
		if rec.Status == types.ActionFailed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d action(s) failed", failed)
	}
	return nil
}

type plannedRun struct {
	action *types.Action
	input  *types.Map
}

// prepareRuns collects and checks the input of every requested action so
// that nothing launches unless all of them can.
func prepareRuns(cmd *cobra.Command, s *session, store *presets.PresetStore, ids []string, builder *runctx.Builder, coercer *form.Coercer) ([]plannedRun, error) {
	runs := make([]plannedRun, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return nil, deckerr.AlreadyRunning(id)
		}
		seen[id] = true

		action := s.doc.Action(id)
		input, err := collectInput(store, action, runInput, s.logger)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", id, err)
		}
		values, err := coercer.Coerce(id, action.Form, input)
		if err != nil {
			var verr *form.ValidationError
			if errors.As(err, &verr) {
				for _, p := range verr.Problems() {
					fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s\n", id, p)
				}
			}
			return nil, fmt.Errorf("%s: %w", id, err)
		}
		if err := pipeline.Validate(action, builder.Renderer()); err != nil {
			return nil, fmt.Errorf("%s: %w", id, err)
		}
		if _, err := builder.Build(s.doc, values); err != nil {
			return nil, fmt.Errorf("%s: %w", id, err)
		}
		runs = append(runs, plannedRun{action: action, input: input})
	}
	return runs, nil
}

func pickAction(cmd *cobra.Command, doc *types.Document) (string, error) {
	options := make([]cli.SelectOption, 0, len(doc.Actions))
	for _, a := range doc.Actions {
		options = append(options, cli.SelectOption{Value: a.ID, Label: fmt.Sprintf("%s (%s)", a.Title, a.ID)})
	}
	return cli.Select(cmd.InOrStdin(), cmd.OutOrStdout(), "Select an action to run:", options)
}

// saveLastRun remembers what an action ran with: a preset reference when
// the preset was used unchanged, a snapshot otherwise.
func saveLastRun(store *presets.PresetStore, action *types.Action, input *types.Map, s *session) {
	var err error
	if runInput.preset != "" && !runInput.last && runInput.valuesFile == "" && len(runInput.set) == 0 {
		err = store.SaveLastRunRef(action.ID, runInput.preset)
	} else {
		err = store.SaveLastRunSnapshot(action.ID, form.Persistable(action.Form, input))
	}
	if err != nil {
		s.logger.Warn("saving last run failed", "action", action.ID, "error", err)
	}
}

