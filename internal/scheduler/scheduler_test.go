package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meow-stack/actiondeck/internal/document"
	deckerr "github.com/meow-stack/actiondeck/internal/errors"
	"github.com/meow-stack/actiondeck/internal/executor"
	"github.com/meow-stack/actiondeck/internal/pipeline"
	"github.com/meow-stack/actiondeck/internal/runctx"
	"github.com/meow-stack/actiondeck/internal/testutil"
	"github.com/meow-stack/actiondeck/internal/types"
)

const deckYAML = `
version: 1
app:
  title: Test deck
actions:
  build:
    title: Build
    form:
      fields:
        - id: target
          type: choice
          options: [debug, release]
          default: debug
        - id: token
          type: secret
    pipeline:
      - id: compile
        run:
          program: make
          argv: ["${form.target}"]
      - id: package
        run:
          program: tar
  lint:
    title: Lint
    run:
      program: golint
`

// gate is a Runner whose invocations block until released or cancelled.
type gate struct {
	started chan string
	release chan struct{}
	fail    map[string]int
	calls   atomic.Int32
}

func newGate() *gate {
	return &gate{started: make(chan string, 16), release: make(chan struct{})}
}

func (g *gate) Run(ctx context.Context, inv *executor.Invocation) (*executor.Result, error) {
	g.calls.Add(1)
	g.started <- inv.Program
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, deckerr.ProcessCancelled(ctx.Err())
	}
	if inv.OnLine != nil {
		inv.OnLine(executor.Stdout, "out "+inv.Program)
	}
	out := ""
	return &executor.Result{ExitCode: g.fail[inv.Program], Stdout: &out}, nil
}

type memStore struct {
	mu   sync.Mutex
	puts map[string]*types.Map
}

func (m *memStore) Get(docKey, actionID string) (*types.Map, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.puts[docKey+"/"+actionID]; ok {
		return v, nil
	}
	return types.NewMap(), nil
}

func (m *memStore) Put(docKey, actionID string, values *types.Map) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.puts == nil {
		m.puts = make(map[string]*types.Map)
	}
	m.puts[docKey+"/"+actionID] = values
	return nil
}

func newScheduler(t *testing.T, runner executor.Runner, opts ...Option) *Scheduler {
	t.Helper()
	doc, err := document.Parse([]byte(deckYAML))
	require.NoError(t, err)

	var n atomic.Int32
	opts = append([]Option{
		WithBuilder(runctx.NewBuilder(nil, runctx.WithEnviron(func() []string { return nil }))),
		WithIDGenerator(func() string { return fmt.Sprintf("run-%d", n.Add(1)) }),
	}, opts...)
	s := New(pipeline.New(doc, runner), opts...)
	t.Cleanup(s.Close)
	return s
}

func TestTrigger_RunsToSuccess(t *testing.T) {
	rec := &executor.Recorder{}
	store := &memStore{}
	s := newScheduler(t, rec, WithValueStore(store))

	runID, err := s.Trigger("build", types.MapOf("target", "release", "token", "hunter2"))
	require.NoError(t, err)
	assert.Equal(t, "run-1", runID)
	s.Wait()

	assert.Equal(t, types.ActionSuccess, s.Status("build"))
	assert.Equal(t, types.ActionIdle, s.Status("lint"))

	calls := rec.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "make", calls[0].Program)
	assert.Equal(t, []string{"release"}, calls[0].Args)
	assert.Equal(t, "tar", calls[1].Program)

	history := s.History("build")
	require.Len(t, history, 1)
	assert.Equal(t, "run-1", history[0].RunID)
	assert.Equal(t, types.ActionSuccess, history[0].Status)
	assert.Contains(t, history[0].Log, "[run] compile: make release")
	assert.False(t, history[0].FinishedAt.Before(history[0].StartedAt))

	saved, _ := store.Get("<memory>", "build")
	assert.True(t, saved.Has("target"))
	assert.False(t, saved.Has("token"), "secrets must not be persisted")
}

func TestTrigger_LogsRunLifecycle(t *testing.T) {
	tl := testutil.NewTestLogger(t)
	s := newScheduler(t, &executor.Recorder{}, WithLogger(tl.Logger))

	runID, err := s.Trigger("lint", nil)
	require.NoError(t, err)
	s.Wait()

	tl.AssertContains(t, "action started")
	tl.AssertContains(t, "action finished")
	tl.AssertNoErrors(t)
	assert.Len(t, tl.EntriesWithAttrValue("run_id", runID), 2)
}

func TestTrigger_ValidationLeavesStateUnchanged(t *testing.T) {
	s := newScheduler(t, &executor.Recorder{})

	_, err := s.Trigger("build", types.MapOf("target", "nightly"))
	assert.True(t, deckerr.HasCode(err, deckerr.CodeFormInvalid), "got %v", err)

	_, err = s.Trigger("build", types.MapOf("bogus", 1))
	assert.True(t, deckerr.HasCode(err, deckerr.CodeFormUnknown), "got %v", err)

	_, err = s.Trigger("deploy", nil)
	assert.True(t, deckerr.HasCode(err, deckerr.CodeSchedUnknownAction), "got %v", err)

	assert.Equal(t, types.ActionIdle, s.Status("build"))
	assert.Empty(t, s.History("build"))
}

func TestTrigger_RejectsWhileRunning(t *testing.T) {
	g := newGate()
	s := newScheduler(t, g)

	_, err := s.Trigger("lint", nil)
	require.NoError(t, err)
	<-g.started

	_, err = s.Trigger("lint", nil)
	assert.True(t, deckerr.HasCode(err, deckerr.CodeSchedAlreadyRunning), "got %v", err)
	assert.Equal(t, types.ActionRunning, s.Status("lint"))

	close(g.release)
	s.Wait()
	assert.Equal(t, types.ActionSuccess, s.Status("lint"))

	_, err = s.Trigger("lint", nil)
	require.NoError(t, err)
	s.Wait()
	assert.Len(t, s.History("lint"), 2)
}

func TestTrigger_ActionsRunConcurrently(t *testing.T) {
	g := newGate()
	s := newScheduler(t, g)

	_, err := s.Trigger("build", nil)
	require.NoError(t, err)
	_, err = s.Trigger("lint", nil)
	require.NoError(t, err)

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case p := <-g.started:
			got[p] = true
		case <-time.After(5 * time.Second):
			t.Fatal("actions did not start concurrently")
		}
	}
	assert.Equal(t, map[string]bool{"make": true, "golint": true}, got)

	close(g.release)
	s.Wait()
	assert.Equal(t, types.ActionSuccess, s.Status("build"))
	assert.Equal(t, types.ActionSuccess, s.Status("lint"))
}

func TestStop_CancelsFlow(t *testing.T) {
	g := newGate()
	s := newScheduler(t, g)

	assert.False(t, s.Stop("build"), "nothing to stop")

	_, err := s.Trigger("build", nil)
	require.NoError(t, err)
	<-g.started

	assert.True(t, s.Stop("build"))
	s.Wait()

	assert.Equal(t, types.ActionFailed, s.Status("build"))
	assert.Equal(t, int32(1), g.calls.Load(), "package must not run after cancellation")
	history := s.History("build")
	require.Len(t, history, 1)
	assert.NotEmpty(t, history[0].Error)
	assert.Contains(t, s.ActionLog("build"), "[stop] cancellation requested")
}

func TestFailedStepMarksActionFailed(t *testing.T) {
	g := newGate()
	g.fail = map[string]int{"golint": 3}
	close(g.release)
	s := newScheduler(t, g)

	_, err := s.Trigger("lint", nil)
	require.NoError(t, err)
	s.Wait()

	assert.Equal(t, types.ActionFailed, s.Status("lint"))
	rec := s.History("lint")[0]
	assert.True(t, len(rec.Steps) > 0)
	assert.Equal(t, types.StepFailed, rec.Steps[0].State)
}

func TestSubscribe_EventOrder(t *testing.T) {
	g := newGate()
	close(g.release)
	s := newScheduler(t, g)

	events, unsubscribe := s.Subscribe(0)
	_, err := s.Trigger("lint", nil)
	require.NoError(t, err)

	var kinds []EventKind
	var finished *types.RunRecord
	timeout := time.After(5 * time.Second)
	for finished == nil {
		select {
		case e := <-events:
			kinds = append(kinds, e.Kind)
			if e.Kind == EventFinished {
				finished = e.Record
			}
		case <-timeout:
			t.Fatalf("no finished event; got %v", kinds)
		}
	}
	unsubscribe()
	for range events {
	}

	require.NotEmpty(t, kinds)
	assert.Equal(t, EventStatus, kinds[0])
	assert.Equal(t, EventStatus, kinds[len(kinds)-2])
	assert.Contains(t, kinds, EventLog)
	assert.Equal(t, types.ActionSuccess, finished.Status)
	assert.Contains(t, finished.Log, "[stdout] out golint")
}

func TestAggregateLogPrefixesAction(t *testing.T) {
	s := newScheduler(t, &executor.Recorder{})

	_, err := s.Trigger("lint", nil)
	require.NoError(t, err)
	s.Wait()

	assert.Contains(t, s.Log(), "[lint] [run] lint_run: golint")
}

func TestClose(t *testing.T) {
	g := newGate()
	s := newScheduler(t, g)
	events, _ := s.Subscribe(1)

	_, err := s.Trigger("build", nil)
	require.NoError(t, err)
	<-g.started

	s.Close()
	for range events {
	}

	_, err = s.Trigger("lint", nil)
	assert.True(t, deckerr.HasCode(err, deckerr.CodeSchedClosed), "got %v", err)
	assert.False(t, s.Stop("build"))
	s.Close()
}

func TestClose_RacesTrigger(t *testing.T) {
	s := newScheduler(t, &executor.Recorder{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, err := s.Trigger("lint", nil)
				if err != nil && !deckerr.HasCode(err, deckerr.CodeSchedAlreadyRunning) {
					assert.True(t, deckerr.HasCode(err, deckerr.CodeSchedClosed), "got %v", err)
					return
				}
			}
		}()
	}
	s.Close()
	wg.Wait()

	_, err := s.Trigger("lint", nil)
	assert.True(t, deckerr.HasCode(err, deckerr.CodeSchedClosed), "got %v", err)
	s.Wait()
}
