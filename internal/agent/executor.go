package agent

import (
	"context"
	"fmt"

	"github.com/kylegalloway/taskloop/internal/config"
)

// Executor carries out one task with a completion call.
type Executor struct {
	LLM            Completer
	Retriever      *Retriever
	Sampling       config.Sampling
	ContextResults int
}

// Execute runs task toward objective. On failure the returned text
// describes the error so it can still be shown, and err is non-nil.
func (e *Executor) Execute(ctx context.Context, objective, task string) (string, error) {
	related := e.Retriever.Retrieve(ctx, objective, e.ContextResults)

	prompt, err := renderer.RenderPrompt(RoleExecution, ExecutionPromptData{
		Objective: objective,
		Task:      task,
		Context:   related,
	})
	if err != nil {
		return FailureText(err), err
	}

	result, err := e.LLM.Complete(ctx, prompt, e.Sampling)
	if err != nil {
		return FailureText(err), fmt.Errorf("execute task: %w", err)
	}
	return result, nil
}

// FailureText is the result recorded for an execution that errored.
func FailureText(err error) string {
	return fmt.Sprintf("Task execution failed due to error: %v", err)
}
