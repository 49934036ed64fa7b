// Package scheduler triggers actions: each triggered action runs in its own
// goroutine, steps within a run stay strictly ordered, and a single sink
// goroutine owns all run state, logs and history.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meow-stack/actiondeck/internal/document"
	deckerr "github.com/meow-stack/actiondeck/internal/errors"
	"github.com/meow-stack/actiondeck/internal/form"
	"github.com/meow-stack/actiondeck/internal/logging"
	"github.com/meow-stack/actiondeck/internal/pipeline"
	"github.com/meow-stack/actiondeck/internal/runctx"
	"github.com/meow-stack/actiondeck/internal/template"
	"github.com/meow-stack/actiondeck/internal/types"
)

// ValueStore persists the last submitted form values of an action.
type ValueStore interface {
	Get(docKey, actionID string) (*types.Map, error)
	Put(docKey, actionID string, values *types.Map) error
}

// Scheduler runs the actions of one document.
type Scheduler struct {
	doc      *types.Document
	docKey   string
	interp   *pipeline.Interpreter
	builder  *runctx.Builder
	renderer *template.Renderer
	coercer  *form.Coercer
	store    ValueStore
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string

	// Base context of every flow; cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	msgs chan message
	quit chan struct{}
	done chan struct{}

	// mu orders flows.Add against Close.
	mu        sync.Mutex
	closed    bool
	flows     sync.WaitGroup
	closeOnce sync.Once
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithValueStore persists submitted values (secrets excluded) after each
// successful launch.
func WithValueStore(s ValueStore) Option {
	return func(sc *Scheduler) { sc.store = s }
}

// WithLogger sets the diagnostics logger.
func WithLogger(l *slog.Logger) Option {
	return func(sc *Scheduler) { sc.logger = l }
}

// WithBuilder sets the context builder.
func WithBuilder(b *runctx.Builder) Option {
	return func(sc *Scheduler) { sc.builder = b }
}

// WithCoercer sets the form coercer.
func WithCoercer(c *form.Coercer) Option {
	return func(sc *Scheduler) { sc.coercer = c }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(sc *Scheduler) { sc.now = now }
}

// WithIDGenerator overrides the run id generator.
func WithIDGenerator(fn func() string) Option {
	return func(sc *Scheduler) { sc.newID = fn }
}

// New creates a Scheduler and starts its sink goroutine. Close releases it.
func New(interp *pipeline.Interpreter, opts ...Option) *Scheduler {
	s := &Scheduler{
		doc:    interp.Document(),
		docKey: document.Key(interp.Document()),
		interp: interp,
		logger: logging.NewForTest(),
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
		msgs:   make(chan message, 256),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.builder == nil {
		s.builder = runctx.NewBuilder(nil, runctx.WithLogger(s.logger))
	}
	if s.coercer == nil {
		s.coercer = form.NewCoercer("")
	}
	s.renderer = s.builder.Renderer()
	s.ctx, s.cancel = context.WithCancel(context.Background())

	go s.sink(newSinkState(s))
	return s
}

// Document returns the scheduled document.
func (s *Scheduler) Document() *types.Document { return s.doc }

// Trigger validates input and launches a run of actionID. It returns the
// run id. Validation failures leave the action state unchanged; a running
// action rejects the trigger with SCHED_002.
func (s *Scheduler) Trigger(actionID string, input *types.Map) (string, error) {
	action := s.doc.Action(actionID)
	if action == nil {
		return "", deckerr.UnknownAction(actionID)
	}

	values, err := s.coercer.Coerce(actionID, action.Form, input)
	if err != nil {
		return "", err
	}
	if err := pipeline.Validate(action, s.renderer); err != nil {
		return "", err
	}
	rc, err := s.builder.Build(s.doc, values)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", errClosed()
	}
	s.flows.Add(1)
	s.mu.Unlock()

	reply := make(chan launchReply, 1)
	if !s.send(&launchMsg{actionID: actionID, reply: reply}) {
		s.flows.Done()
		return "", errClosed()
	}
	var launched launchReply
	select {
	case launched = <-reply:
	case <-s.done:
		s.flows.Done()
		return "", errClosed()
	}
	if launched.err != nil {
		s.flows.Done()
		return "", launched.err
	}

	logger := logging.WithRun(s.logger, actionID, launched.runID)
	logger.Info("action started")

	if s.store != nil {
		if err := s.store.Put(s.docKey, actionID, form.Persistable(action.Form, values)); err != nil {
			logger.Warn("saving form values failed", "error", err)
		}
	}

	go s.run(launched.ctx, action, launched.runID, rc, logger)
	return launched.runID, nil
}

func (s *Scheduler) run(ctx context.Context, action *types.Action, runID string, rc *runctx.Context, logger *slog.Logger) {
	defer s.flows.Done()

	log := func(line string) {
		s.send(&logMsg{actionID: action.ID, runID: runID, line: line})
	}
	report := s.interp.Run(ctx, action, rc, log)

	if report.Err != nil {
		logger.Info("action failed", "error", report.Err, "step", report.FailedStep)
	} else {
		logger.Info("action finished", "status", report.Status)
	}

	done := make(chan struct{})
	if s.send(&finishMsg{actionID: action.ID, runID: runID, report: report, done: done}) {
		s.await(done)
	}
}

// Stop cancels the running flow of actionID. It reports whether a flow was
// running.
func (s *Scheduler) Stop(actionID string) bool {
	reply := make(chan bool, 1)
	if !s.send(&stopMsg{actionID: actionID, reply: reply}) {
		return false
	}
	select {
	case stopped := <-reply:
		return stopped
	case <-s.done:
		return false
	}
}

// Wait blocks until no flow is running.
func (s *Scheduler) Wait() {
	s.flows.Wait()
}

// Close cancels running flows, waits for them and stops the sink.
// Subscriber channels are closed.
func (s *Scheduler) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.cancel()
		s.flows.Wait()
		close(s.quit)
		<-s.done
	})
}

// Status returns the current status of an action.
func (s *Scheduler) Status(actionID string) types.ActionStatus {
	status := types.ActionIdle
	s.query(func(st *sinkState) {
		if a := st.actions[actionID]; a != nil {
			status = a.status
		}
	})
	return status
}

// Statuses returns the status of every action keyed by action id.
func (s *Scheduler) Statuses() map[string]types.ActionStatus {
	out := make(map[string]types.ActionStatus, len(s.doc.Actions))
	s.query(func(st *sinkState) {
		for id, a := range st.actions {
			out[id] = a.status
		}
	})
	return out
}

// History returns completed runs of an action, oldest first.
func (s *Scheduler) History(actionID string) []*types.RunRecord {
	var out []*types.RunRecord
	s.query(func(st *sinkState) {
		if a := st.actions[actionID]; a != nil {
			out = append(out, a.history...)
		}
	})
	return out
}

// ActionLog returns every log line of an action across its runs.
func (s *Scheduler) ActionLog(actionID string) []string {
	var out []string
	s.query(func(st *sinkState) {
		if a := st.actions[actionID]; a != nil {
			out = append(out, a.log...)
		}
	})
	return out
}

// Log returns the aggregate log of all actions.
func (s *Scheduler) Log() []string {
	var out []string
	s.query(func(st *sinkState) {
		out = append(out, st.aggregate...)
	})
	return out
}

// Subscribe returns a channel of events produced from now on, and a
// function ending the subscription. The channel is closed after
// cancellation or Close; readers must drain it.
func (s *Scheduler) Subscribe(buffer int) (<-chan Event, func()) {
	sub := newSubscriber(buffer)
	if !s.send(&subscribeMsg{sub: sub}) {
		sub.close()
		return sub.out, func() {}
	}
	var once sync.Once
	return sub.out, func() {
		once.Do(func() {
			if !s.send(&unsubscribeMsg{sub: sub}) {
				sub.close()
			}
		})
	}
}

func errClosed() error {
	return deckerr.New(deckerr.CodeSchedClosed, "scheduler is closed")
}

// send delivers a message to the sink unless it has stopped.
func (s *Scheduler) send(m message) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.msgs <- m:
		return true
	case <-s.done:
		return false
	}
}

// query runs fn on the sink goroutine and waits for it.
func (s *Scheduler) query(fn func(*sinkState)) {
	done := make(chan struct{})
	if s.send(&queryMsg{fn: fn, done: done}) {
		s.await(done)
	}
}

// await waits for the sink to handle a message; a message queued after the
// sink stopped is never handled.
func (s *Scheduler) await(done <-chan struct{}) {
	select {
	case <-done:
	case <-s.done:
	}
}
