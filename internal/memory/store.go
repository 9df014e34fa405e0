// Package memory stores task results with their embeddings and answers
// similarity queries against them.
package memory

import (
	"context"
	"fmt"

	"github.com/kylegalloway/taskloop/internal/config"
)

// Record is one task result to be stored.
type Record struct {
	TaskID    string
	TaskName  string
	Result    string
	Embedding []float64
}

// Metadata is the JSON blob stored alongside each document.
type Metadata struct {
	Task   string `json:"task"`
	Result string `json:"result"`
	TaskID string `json:"task_id"`
}

// Match is one row returned by a similarity search.
type Match struct {
	ID         int64
	Content    string
	Metadata   Metadata
	Similarity float64
}

// Filter restricts a search to documents whose metadata contains every
// key/value pair. A nil Filter matches everything.
type Filter map[string]string

// Store is the interface for the vector datastore.
type Store interface {
	Store(ctx context.Context, r Record) error
	Match(ctx context.Context, embedding []float64, n int, filter Filter) ([]Match, error)
	Close() error
}

// New builds the Store selected by store.backend.
func New(cfg *config.Config) (Store, error) {
	switch cfg.Store.Backend {
	case config.BackendNone, "":
		return &NoopStore{}, nil
	case config.BackendSupabase:
		return NewSupabaseStore(cfg.Store.Supabase), nil
	case config.BackendRedis:
		return NewRedisStore(cfg.Store.Redis), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func (m Metadata) contains(f Filter) bool {
	for k, v := range f {
		var got string
		switch k {
		case "task":
			got = m.Task
		case "result":
			got = m.Result
		case "task_id":
			got = m.TaskID
		default:
			return false
		}
		if got != v {
			return false
		}
	}
	return true
}
