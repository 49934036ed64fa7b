package scheduler

import (
	"context"
	"fmt"

	deckerr "github.com/meow-stack/actiondeck/internal/errors"
	"github.com/meow-stack/actiondeck/internal/pipeline"
	"github.com/meow-stack/actiondeck/internal/types"
)

// message is handled on the sink goroutine.
type message interface {
	apply(st *sinkState)
}

// actionState is the run state of one action.
type actionState struct {
	status  types.ActionStatus
	log     []string
	history []*types.RunRecord
	current *types.RunRecord
	cancel  context.CancelFunc
}

// sinkState is owned by the sink goroutine.
type sinkState struct {
	s           *Scheduler
	actions     map[string]*actionState
	aggregate   []string
	subscribers map[*subscriber]bool
}

func newSinkState(s *Scheduler) *sinkState {
	st := &sinkState{
		s:           s,
		actions:     make(map[string]*actionState, len(s.doc.Actions)),
		subscribers: make(map[*subscriber]bool),
	}
	for _, a := range s.doc.Actions {
		st.actions[a.ID] = &actionState{status: types.ActionIdle}
	}
	return st
}

func (s *Scheduler) sink(st *sinkState) {
	defer close(s.done)
	for {
		select {
		case m := <-s.msgs:
			m.apply(st)
		case <-s.quit:
			// Flows have finished; drain what they sent.
			for {
				select {
				case m := <-s.msgs:
					m.apply(st)
				default:
					for sub := range st.subscribers {
						sub.close()
					}
					return
				}
			}
		}
	}
}

func (st *sinkState) publish(e Event) {
	for sub := range st.subscribers {
		sub.push(e)
	}
}

func (st *sinkState) setStatus(actionID, runID string, a *actionState, status types.ActionStatus) {
	if !a.status.CanTransitionTo(status) {
		st.s.logger.Warn("invalid status transition", "action", actionID, "from", a.status, "to", status)
	}
	a.status = status
	st.publish(Event{Kind: EventStatus, ActionID: actionID, RunID: runID, Status: status})
}

// appendLog adds a line to the run record, the action log and the
// aggregate log.
func (st *sinkState) appendLog(actionID, runID string, a *actionState, line string) {
	if a.current != nil && a.current.RunID == runID {
		a.current.Log = append(a.current.Log, line)
	}
	a.log = append(a.log, line)
	st.aggregate = append(st.aggregate, fmt.Sprintf("[%s] %s", actionID, line))
	st.publish(Event{Kind: EventLog, ActionID: actionID, RunID: runID, Line: line})
}

type launchReply struct {
	runID string
	ctx   context.Context
	err   error
}

type launchMsg struct {
	actionID string
	reply    chan launchReply
}

func (m *launchMsg) apply(st *sinkState) {
	a := st.actions[m.actionID]
	if a == nil {
		m.reply <- launchReply{err: deckerr.UnknownAction(m.actionID)}
		return
	}
	if a.status == types.ActionRunning {
		m.reply <- launchReply{err: deckerr.AlreadyRunning(m.actionID)}
		return
	}

	runID := st.s.newID()
	ctx, cancel := context.WithCancel(st.s.ctx)
	a.cancel = cancel
	a.current = &types.RunRecord{
		RunID:     runID,
		ActionID:  m.actionID,
		Status:    types.ActionRunning,
		StartedAt: st.s.now(),
	}
	st.setStatus(m.actionID, runID, a, types.ActionRunning)
	m.reply <- launchReply{runID: runID, ctx: ctx}
}

type logMsg struct {
	actionID, runID, line string
}

func (m *logMsg) apply(st *sinkState) {
	if a := st.actions[m.actionID]; a != nil {
		st.appendLog(m.actionID, m.runID, a, m.line)
	}
}

type finishMsg struct {
	actionID, runID string
	report          *pipeline.Report
	done            chan struct{}
}

func (m *finishMsg) apply(st *sinkState) {
	defer close(m.done)
	a := st.actions[m.actionID]
	if a == nil || a.current == nil || a.current.RunID != m.runID {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}

	rec := a.current
	rec.Status = m.report.Status
	rec.FinishedAt = st.s.now()
	rec.Steps = m.report.Steps
	rec.Results = m.report.Results
	if m.report.Err != nil {
		rec.Error = m.report.Err.Error()
	}
	a.current = nil
	a.history = append(a.history, rec)

	st.setStatus(m.actionID, m.runID, a, rec.Status)
	st.publish(Event{Kind: EventFinished, ActionID: m.actionID, RunID: m.runID, Status: rec.Status, Record: rec})
}

type stopMsg struct {
	actionID string
	reply    chan bool
}

func (m *stopMsg) apply(st *sinkState) {
	a := st.actions[m.actionID]
	if a == nil || a.cancel == nil {
		m.reply <- false
		return
	}
	a.cancel()
	st.appendLog(m.actionID, a.current.RunID, a, "[stop] cancellation requested")
	m.reply <- true
}

type queryMsg struct {
	fn   func(*sinkState)
	done chan struct{}
}

func (m *queryMsg) apply(st *sinkState) {
	defer close(m.done)
	m.fn(st)
}

type subscribeMsg struct {
	sub *subscriber
}

func (m *subscribeMsg) apply(st *sinkState) {
	st.subscribers[m.sub] = true
}

type unsubscribeMsg struct {
	sub *subscriber
}

func (m *unsubscribeMsg) apply(st *sinkState) {
	if st.subscribers[m.sub] {
		delete(st.subscribers, m.sub)
		m.sub.close()
	}
}
