package types

import "time"

// ActionStatus represents the display/lifecycle state of an action.
type ActionStatus string

const (
	ActionIdle    ActionStatus = "idle"    // Never run since load
	ActionRunning ActionStatus = "running" // A flow is executing
	ActionSuccess ActionStatus = "success" // Last run completed without failures
	ActionFailed  ActionStatus = "failed"  // Last run had a failed step or aborted
)

// Valid returns true if this is a recognized status.
func (s ActionStatus) Valid() bool {
	switch s {
	case ActionIdle, ActionRunning, ActionSuccess, ActionFailed:
		return true
	}
	return false
}

// IsTerminal returns true for success and failed.
func (s ActionStatus) IsTerminal() bool {
	return s == ActionSuccess || s == ActionFailed
}

// CanTransitionTo returns true if transitioning from s to target is valid.
func (s ActionStatus) CanTransitionTo(target ActionStatus) bool {
	switch s {
	case ActionIdle, ActionSuccess, ActionFailed:
		return target == ActionRunning
	case ActionRunning:
		return target == ActionSuccess || target == ActionFailed
	}
	return false
}

// StepState is the terminal (or pending) state of one visited step.
type StepState string

const (
	StepPending   StepState = "pending"
	StepRunning   StepState = "running"
	StepSkipped   StepState = "skipped"
	StepSucceeded StepState = "succeeded"
	StepFailed    StepState = "failed"
)

// IsTerminal returns true for skipped, succeeded and failed.
func (s StepState) IsTerminal() bool {
	return s == StepSkipped || s == StepSucceeded || s == StepFailed
}

// CanTransitionTo returns true if transitioning from s to target is valid.
func (s StepState) CanTransitionTo(target StepState) bool {
	switch s {
	case StepPending:
		return target == StepRunning || target == StepSkipped
	case StepRunning:
		return target == StepSucceeded || target == StepFailed
	}
	return false
}

// StepResult is the immutable outcome of a run step.
type StepResult struct {
	ExitCode   int
	Stdout     *string
	Stderr     *string
	DurationMS int64
}

// Value exposes the result to expressions as step.<id>.*; omitted streams
// are absent keys.
func (r *StepResult) Value() Value {
	m := NewMap()
	m.Set("exit_code", Int(r.ExitCode))
	if r.Stdout != nil {
		m.Set("stdout", String(*r.Stdout))
	}
	if r.Stderr != nil {
		m.Set("stderr", String(*r.Stderr))
	}
	m.Set("duration_ms", Number(float64(r.DurationMS)))
	return Mapping(m)
}

// StepOutcome records one visited step in a run report.
type StepOutcome struct {
	// Path is the step id prefixed by its ancestors, e.g. "loop[1].build".
	Path  string
	ID    string
	State StepState
	Error string
}

// RunRecord is one completed (or running) action run.
type RunRecord struct {
	RunID      string
	ActionID   string
	Status     ActionStatus
	StartedAt  time.Time
	FinishedAt time.Time
	Log        []string
	Error      string
	Steps      []StepOutcome
	Results    map[string]*StepResult
}
