package agent

import (
	"strings"

	"github.com/kylegalloway/taskloop/internal/sanitize"
	"github.com/kylegalloway/taskloop/internal/tasks"
)

// ParseNewTasks splits a task creation reply into one task per non-empty
// line. The returned tasks carry no ID; the caller assigns them.
func ParseNewTasks(text string) []tasks.Task {
	var out []tasks.Task
	for _, line := range strings.Split(text, "\n") {
		name := sanitize.TaskName(line)
		if name == "" {
			continue
		}
		out = append(out, tasks.Task{Name: name})
	}
	return out
}

// ParsePrioritized reads a numbered list of the form "label. task name".
// Each line is split on the first ". "; lines without it, or with an empty
// label or name, are dropped. Labels become task IDs verbatim.
func ParsePrioritized(text string) []tasks.Task {
	var out []tasks.Task
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		label, name, ok := strings.Cut(line, ". ")
		if !ok {
			continue
		}
		label = strings.TrimSpace(label)
		name = sanitize.TaskName(name)
		if label == "" || name == "" {
			continue
		}
		out = append(out, tasks.Task{ID: label, Name: name})
	}
	return out
}

// DroppedNames returns the names in before that are missing from after,
// counting duplicates.
func DroppedNames(before, after []tasks.Task) []string {
	remaining := make(map[string]int, len(after))
	for _, t := range after {
		remaining[t.Name]++
	}
	var dropped []string
	for _, t := range before {
		if remaining[t.Name] > 0 {
			remaining[t.Name]--
			continue
		}
		dropped = append(dropped, t.Name)
	}
	return dropped
}
