package status

import (
	"time"

	"github.com/meow-stack/actiondeck/internal/types"
)

// RunSummary contains computed information about a run for display.
type RunSummary struct {
	RunID     string             `json:"run_id"`
	ActionID  string             `json:"action_id"`
	Status    types.ActionStatus `json:"status"`
	StartedAt time.Time          `json:"started_at"`
	DoneAt    *time.Time         `json:"done_at,omitempty"`
	StepStats StepStats          `json:"step_stats"`
	Errors    []string           `json:"errors,omitempty"`
}

// StepStats contains step count breakdown.
type StepStats struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Running   int `json:"running"`
	Pending   int `json:"pending"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// NewRunSummary creates a summary from a run record.
func NewRunSummary(rec *types.RunRecord) *RunSummary {
	summary := &RunSummary{
		RunID:     rec.RunID,
		ActionID:  rec.ActionID,
		Status:    rec.Status,
		StartedAt: rec.StartedAt,
		StepStats: computeStepStats(rec.Steps),
	}
	if !rec.FinishedAt.IsZero() {
		done := rec.FinishedAt
		summary.DoneAt = &done
	}

	for _, step := range rec.Steps {
		if step.State == types.StepFailed && step.Error != "" {
			summary.Errors = append(summary.Errors, step.Path+": "+step.Error)
		}
	}
	if len(summary.Errors) == 0 && rec.Error != "" {
		summary.Errors = append(summary.Errors, rec.Error)
	}
	return summary
}

func computeStepStats(steps []types.StepOutcome) StepStats {
	stats := StepStats{Total: len(steps)}
	for _, step := range steps {
		switch step.State {
		case types.StepSucceeded:
			stats.Succeeded++
		case types.StepRunning:
			stats.Running++
		case types.StepPending:
			stats.Pending++
		case types.StepFailed:
			stats.Failed++
		case types.StepSkipped:
			stats.Skipped++
		}
	}
	return stats
}
