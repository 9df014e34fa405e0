package agent

import (
	"context"
	"fmt"

	"github.com/kylegalloway/taskloop/internal/config"
	"github.com/kylegalloway/taskloop/internal/tasks"
)

// Creator proposes follow-on tasks from the last result.
type Creator struct {
	LLM      Completer
	Sampling config.Sampling
	// MaxNew caps how many proposals are kept per call. Zero means no cap.
	MaxNew int
}

// Create asks the model for new tasks and returns at most MaxNew of them,
// without IDs. On error the list is empty.
func (c *Creator) Create(ctx context.Context, objective, lastTask, lastResult string, pending []string) ([]tasks.Task, error) {
	prompt, err := renderer.RenderPrompt(RoleCreation, CreationPromptData{
		Objective:    objective,
		LastTask:     lastTask,
		LastResult:   lastResult,
		PendingTasks: pending,
	})
	if err != nil {
		return nil, err
	}

	reply, err := c.LLM.Complete(ctx, prompt, c.Sampling)
	if err != nil {
		return nil, fmt.Errorf("task creation: %w", err)
	}

	created := ParseNewTasks(reply)
	if c.MaxNew > 0 && len(created) > c.MaxNew {
		created = created[:c.MaxNew]
	}
	return created, nil
}
