// Package agent holds the three completion-driven roles (task creation,
// prioritization, execution) and the context retriever they share.
package agent

import (
	"context"

	"github.com/kylegalloway/taskloop/internal/config"
)

// Completer sends one prompt to a language model and returns its reply.
type Completer interface {
	Complete(ctx context.Context, prompt string, s config.Sampling) (string, error)
}

// Embedder turns text into a vector. Implementations never fail; they fall
// back to a zero vector.
type Embedder interface {
	Embed(ctx context.Context, text string) []float64
}

var renderer = &DefaultPromptRenderer{}
