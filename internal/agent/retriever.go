package agent

import (
	"context"
	"log"
	"sort"

	"github.com/kylegalloway/taskloop/internal/memory"
)

// Retriever fetches names of earlier tasks similar to a query.
type Retriever struct {
	Embedder Embedder
	Store    memory.Store
}

// Retrieve returns up to n task names ordered by descending similarity.
// Context is best-effort: any failure yields an empty list.
func (r *Retriever) Retrieve(ctx context.Context, query string, n int) []string {
	if r == nil || r.Store == nil || r.Embedder == nil {
		return nil
	}
	vec := r.Embedder.Embed(ctx, query)
	matches, err := r.Store.Match(ctx, vec, n, nil)
	if err != nil {
		log.Printf("Warning: context retrieval failed: %v", err)
		return nil
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	var names []string
	for _, m := range matches {
		if m.Metadata.Task != "" {
			names = append(names, m.Metadata.Task)
		}
	}
	return names
}
