package memory

import "context"

// NoopStore implements Store as a no-op (when no backend is configured).
// Searches always come back empty, so execution runs without context.
type NoopStore struct{}

func (s *NoopStore) Store(ctx context.Context, r Record) error {
	return nil
}

func (s *NoopStore) Match(ctx context.Context, embedding []float64, n int, filter Filter) ([]Match, error) {
	return nil, nil
}

func (s *NoopStore) Close() error {
	return nil
}
