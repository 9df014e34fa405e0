package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kylegalloway/taskloop/internal/config"
)

// RedisStore implements Store on plain Redis: documents are JSON values in
// a hash keyed by a sequence number, and Match scores every document by
// cosine similarity in process. Fine for the few hundred results one run
// produces; use the supabase backend for anything larger.
type RedisStore struct {
	client *redis.Client
	prefix string
}

type redisDoc struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	Metadata  Metadata  `json:"metadata"`
	Embedding []float64 `json:"embedding"`
	CreatedAt time.Time `json:"created_at"`
}

// NewRedisStore creates a RedisStore. The connection is lazy; call Ping to
// check reachability up front.
func NewRedisStore(cfg config.RedisConfig) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password(),
		DB:       cfg.DB,
	})
	return &RedisStore{client: rdb, prefix: cfg.Prefix}
}

func (s *RedisStore) docsKey() string { return s.prefix + ":documents" }
func (s *RedisStore) seqKey() string  { return s.prefix + ":documents:seq" }

// Ping checks if the Redis connection is alive.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Store(ctx context.Context, r Record) error {
	id, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return fmt.Errorf("allocate document id: %w", err)
	}
	doc := redisDoc{
		ID:        id,
		Content:   r.Result,
		Metadata:  Metadata{Task: r.TaskName, Result: r.Result, TaskID: r.TaskID},
		Embedding: r.Embedding,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if err := s.client.HSet(ctx, s.docsKey(), strconv.FormatInt(id, 10), data).Err(); err != nil {
		return fmt.Errorf("store result for task %s: %w", r.TaskID, err)
	}
	return nil
}

func (s *RedisStore) Match(ctx context.Context, embedding []float64, n int, filter Filter) ([]Match, error) {
	vals, err := s.client.HVals(ctx, s.docsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}

	docs := make([]redisDoc, 0, len(vals))
	for _, v := range vals {
		var d redisDoc
		if err := json.Unmarshal([]byte(v), &d); err != nil {
			continue
		}
		docs = append(docs, d)
	}
	return rank(docs, embedding, n, filter), nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// rank scores docs against the query, drops those failing the filter, and
// returns the best n by descending similarity.
func rank(docs []redisDoc, query []float64, n int, filter Filter) []Match {
	matches := make([]Match, 0, len(docs))
	for _, d := range docs {
		if !d.Metadata.contains(filter) {
			continue
		}
		matches = append(matches, Match{
			ID:         d.ID,
			Content:    d.Content,
			Metadata:   d.Metadata,
			Similarity: cosine(query, d.Embedding),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if n >= 0 && len(matches) > n {
		matches = matches[:n]
	}
	return matches
}

// cosine returns the cosine similarity of a and b, or 0 when the lengths
// differ or either vector is all zeros.
func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
