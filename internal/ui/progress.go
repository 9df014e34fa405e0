package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/kylegalloway/taskloop/internal/sanitize"
	"github.com/kylegalloway/taskloop/internal/state"
)

// ProgressState holds the current state for progress display.
type ProgressState struct {
	RunState      string
	Iteration     int
	MaxIterations int
	Queued        int
	CurrentTask   string
	Stats         state.Stats
	StartTime     time.Time
}

// FormatProgress returns a single-line progress string for display between iterations.
func FormatProgress(ps ProgressState) string {
	elapsed := time.Since(ps.StartTime).Truncate(time.Second)
	line := fmt.Sprintf("[%s] Iteration %d/%d | %d queued | %d done | %d failed | %d rejected | %.0f%% success | %v elapsed",
		ps.RunState, ps.Iteration, ps.MaxIterations, ps.Queued,
		ps.Stats.TasksCompleted, ps.Stats.TasksFailed, ps.Stats.TasksRejected,
		ps.Stats.SuccessRate(), elapsed)
	if ps.CurrentTask != "" {
		line += " | " + sanitize.Preview(ps.CurrentTask, 40)
	}
	return line
}

// FormatSessionSummary returns a multi-line summary for end-of-run display.
func FormatSessionSummary(s state.Session) string {
	var b strings.Builder
	b.WriteString("\n=== Session Summary ===\n")
	b.WriteString(fmt.Sprintf("Session:    %s\n", s.ID))
	b.WriteString(fmt.Sprintf("Objective:  %s\n", s.Objective))
	b.WriteString(fmt.Sprintf("Duration:   %v\n", s.Duration().Truncate(time.Second)))
	b.WriteString(fmt.Sprintf("Iterations: %d\n", s.Iterations))
	b.WriteString("\nTasks:\n")
	b.WriteString(fmt.Sprintf("  Completed: %d\n", s.Stats.TasksCompleted))
	b.WriteString(fmt.Sprintf("  Generated: %d\n", s.Stats.TasksGenerated))
	b.WriteString(fmt.Sprintf("  Rejected:  %d\n", s.Stats.TasksRejected))
	b.WriteString(fmt.Sprintf("  Failed:    %d\n", s.Stats.TasksFailed))
	b.WriteString(fmt.Sprintf("  Success:   %.1f%%\n", s.Stats.SuccessRate()))
	if s.Stats.TasksCompleted > 0 {
		b.WriteString(fmt.Sprintf("  Avg time:  %.1fs\n", s.Stats.AvgExecutionTime))
	}
	if len(s.CompletedTasks) > 0 {
		b.WriteString("\nCompleted:\n")
		for _, ct := range s.CompletedTasks {
			b.WriteString(fmt.Sprintf("  %s. %s\n", ct.TaskID, ct.TaskName))
		}
	}
	b.WriteString("=======================\n")
	return b.String()
}

// FormatHistory returns one line per stored session, newest last.
func FormatHistory(sessions []state.Session) string {
	if len(sessions) == 0 {
		return "No sessions recorded.\n"
	}
	var b strings.Builder
	for _, s := range sessions {
		b.WriteString(fmt.Sprintf("%s  %s  %3d iter  %3d done  %3d failed  %s\n",
			s.StartTime.Format("2006-01-02 15:04"), shortID(s.ID), s.Iterations,
			s.Stats.TasksCompleted, s.Stats.TasksFailed, sanitize.Preview(s.Objective, 50)))
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
