package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	deckerr "github.com/meow-stack/actiondeck/internal/errors"
	"github.com/meow-stack/actiondeck/internal/executor"
	"github.com/meow-stack/actiondeck/internal/form"
	"github.com/meow-stack/actiondeck/internal/pipeline"
	"github.com/meow-stack/actiondeck/internal/presets"
	"github.com/meow-stack/actiondeck/internal/runctx"
	"github.com/meow-stack/actiondeck/internal/status"
)

var planCmd = &cobra.Command{
	Use:   "plan <action>",
	Short: "Show the commands an action would run",
	Long: `Dry-run an action: every run step is resolved (program, arguments,
working directory) and printed instead of executed. Steps behave as if
every command succeeded with empty output.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

var planInput inputFlags

func init() {
	addInputFlags(planCmd, &planInput)
	rootCmd.AddCommand(planCmd)
}

// planLog collects the step ids announced by "[run] <id>: ..." lines.
type planLog struct {
	mu  sync.Mutex
	ids []string
}

func (l *planLog) add(line string) {
	rest, ok := strings.CutPrefix(line, "[run] ")
	if !ok {
		return
	}
	id, _, _ := strings.Cut(rest, ": ")
	l.mu.Lock()
	l.ids = append(l.ids, id)
	l.mu.Unlock()
}

func runPlan(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	action := s.doc.Action(args[0])
	if action == nil {
		return deckerr.UnknownAction(args[0])
	}

	store := presets.OpenPresetStore(s.doc.Path)
	input, err := collectInput(store, action, planInput, s.logger)
	if err != nil {
		return err
	}
	values, err := form.NewCoercer(filepath.Dir(s.doc.Path)).Coerce(action.ID, action.Form, input)
	if err != nil {
		return err
	}

	builder := runctx.NewBuilder(nil, runctx.WithLogger(s.logger))
	if err := pipeline.Validate(action, builder.Renderer()); err != nil {
		return err
	}
	rc, err := builder.Build(s.doc, values)
	if err != nil {
		return err
	}

	rec := &executor.Recorder{}
	log := &planLog{}
	report := pipeline.New(s.doc, rec, pipeline.WithLogger(s.logger)).Run(context.Background(), action, rc, log.add)

	out := cmd.OutOrStdout()
	opts := formatOptions()
	calls := rec.Calls()
	for i := range calls {
		label := fmt.Sprintf("#%d", i+1)
		if i < len(log.ids) {
			label = log.ids[i]
		}
		fmt.Fprintln(out, status.FormatArgv(label, &calls[i], opts))
	}
	if len(calls) == 0 {
		fmt.Fprintln(out, "No commands would run.")
	}
	if report.Err != nil {
		return fmt.Errorf("plan stopped: %w", report.Err)
	}
	return nil
}
