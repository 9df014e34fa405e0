package agent

import (
	"context"
	"fmt"

	"github.com/kylegalloway/taskloop/internal/config"
	"github.com/kylegalloway/taskloop/internal/tasks"
)

// Prioritizer asks the model to reorder the queue.
type Prioritizer struct {
	LLM      Completer
	Sampling config.Sampling
}

// Prioritized is the outcome of one prioritization call.
type Prioritized struct {
	// Tasks is the new queue order, labelled by the model.
	Tasks []tasks.Task
	// Dropped lists queued task names the model did not return verbatim.
	Dropped []string
}

// NextLabel returns the first label to offer after completedID: its
// numeric successor, or 1 when completedID is not a number.
func NextLabel(completedID string) int {
	if n, ok := (tasks.Task{ID: completedID}).NumericID(); ok {
		return n + 1
	}
	return 1
}

// Prioritize reorders queue. An empty queue returns immediately without a
// model call. On error the caller must leave its queue untouched.
func (p *Prioritizer) Prioritize(ctx context.Context, completedID string, queue []tasks.Task, objective string) (Prioritized, error) {
	if len(queue) == 0 {
		return Prioritized{}, nil
	}

	names := make([]string, len(queue))
	for i, t := range queue {
		names[i] = t.Name
	}
	prompt, err := renderer.RenderPrompt(RolePrioritization, PrioritizationPromptData{
		Objective: objective,
		FirstID:   NextLabel(completedID),
		TaskNames: names,
	})
	if err != nil {
		return Prioritized{}, err
	}

	reply, err := p.LLM.Complete(ctx, prompt, p.Sampling)
	if err != nil {
		return Prioritized{}, fmt.Errorf("prioritization: %w", err)
	}

	ordered := ParsePrioritized(reply)
	return Prioritized{
		Tasks:   ordered,
		Dropped: DroppedNames(queue, ordered),
	}, nil
}
