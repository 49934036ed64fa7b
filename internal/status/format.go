// Package status renders action statuses, run summaries and resolved
// command lines for the terminal.
package status

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/meow-stack/actiondeck/internal/executor"
	"github.com/meow-stack/actiondeck/internal/types"
)

// FormatOptions controls output formatting.
type FormatOptions struct {
	NoColor bool
	Quiet   bool
}

var (
	idleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#d9d9d9"))
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#f1c40f"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#2ecc71"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#e74c3c"))
	dimStyle     = lipgloss.NewStyle().Faint(true)
	titleStyle   = lipgloss.NewStyle().Bold(true)
)

// ActionRow is one line of an action listing.
type ActionRow struct {
	ID     string
	Title  string
	Info   string
	Status types.ActionStatus
}

// RowsFor lists the actions of doc, with statuses when known.
func RowsFor(doc *types.Document, statuses map[string]types.ActionStatus) []ActionRow {
	rows := make([]ActionRow, 0, len(doc.Actions))
	for _, a := range doc.Actions {
		status, ok := statuses[a.ID]
		if !ok {
			status = types.ActionIdle
		}
		rows = append(rows, ActionRow{ID: a.ID, Title: a.Title, Info: a.Info, Status: status})
	}
	return rows
}

// FormatActions formats an action listing, one action per line.
func FormatActions(rows []ActionRow, opts FormatOptions) string {
	width := 0
	for _, r := range rows {
		width = max(width, len(r.ID))
	}

	var b strings.Builder
	for _, r := range rows {
		icon := render(statusStyle(r.Status), getStatusIcon(r.Status), opts)
		fmt.Fprintf(&b, "%s %-*s  %s", icon, width, r.ID, render(titleStyle, r.Title, opts))
		if r.Info != "" && !opts.Quiet {
			fmt.Fprintf(&b, "\n  %*s  %s", width, "", render(dimStyle, firstLine(r.Info), opts))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// FormatRun formats a finished (or running) run.
func FormatRun(summary *RunSummary, opts FormatOptions) string {
	var b strings.Builder
	style := statusStyle(summary.Status)

	fmt.Fprintf(&b, "%s %s %s",
		render(style, getStatusIcon(summary.Status), opts),
		summary.ActionID,
		render(style, string(summary.Status), opts))

	if summary.DoneAt != nil {
		fmt.Fprintf(&b, " (took %s)", formatDuration(summary.DoneAt.Sub(summary.StartedAt)))
	}

	if !opts.Quiet {
		stats := summary.StepStats
		parts := []string{}
		if stats.Succeeded > 0 {
			parts = append(parts, render(successStyle, fmt.Sprintf("✓ %d succeeded", stats.Succeeded), opts))
		}
		if stats.Running > 0 {
			parts = append(parts, render(runningStyle, fmt.Sprintf("● %d running", stats.Running), opts))
		}
		if stats.Failed > 0 {
			parts = append(parts, render(failedStyle, fmt.Sprintf("✗ %d failed", stats.Failed), opts))
		}
		if stats.Skipped > 0 {
			parts = append(parts, render(idleStyle, fmt.Sprintf("⊘ %d skipped", stats.Skipped), opts))
		}
		if len(parts) > 0 {
			fmt.Fprintf(&b, "\n  Steps: %s", strings.Join(parts, ", "))
		}
	}

	for _, e := range summary.Errors {
		fmt.Fprintf(&b, "\n  %s %s", render(failedStyle, "✗", opts), e)
	}
	return b.String()
}

// FormatArgv formats a resolved invocation as a plan entry.
func FormatArgv(path string, inv *executor.Invocation, opts FormatOptions) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", render(titleStyle, path+":", opts), executor.CommandLine(inv))
	if inv.Dir != "" && !opts.Quiet {
		fmt.Fprintf(&b, "\n  %s %s", render(dimStyle, "workdir:", opts), inv.Dir)
	}
	if inv.Shell && !opts.Quiet {
		fmt.Fprintf(&b, "\n  %s true", render(dimStyle, "shell:", opts))
	}
	return b.String()
}

// StatusText renders a status word in its color.
func StatusText(status types.ActionStatus, opts FormatOptions) string {
	return render(statusStyle(status), string(status), opts)
}

func render(style lipgloss.Style, s string, opts FormatOptions) string {
	if opts.NoColor {
		return s
	}
	return style.Render(s)
}

func statusStyle(status types.ActionStatus) lipgloss.Style {
	switch status {
	case types.ActionRunning:
		return runningStyle
	case types.ActionSuccess:
		return successStyle
	case types.ActionFailed:
		return failedStyle
	default:
		return idleStyle
	}
}

func getStatusIcon(status types.ActionStatus) string {
	switch status {
	case types.ActionRunning:
		return "●"
	case types.ActionSuccess:
		return "✓"
	case types.ActionFailed:
		return "✗"
	case types.ActionIdle:
		return "○"
	default:
		return "?"
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
