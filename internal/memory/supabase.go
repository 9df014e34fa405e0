package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/kylegalloway/taskloop/internal/config"
)

const supabaseTimeout = 30 * time.Second

// SupabaseStore implements Store over the Supabase PostgREST API: inserts go
// to /rest/v1/<table>, searches call the /rest/v1/rpc/<match function>.
type SupabaseStore struct {
	baseURL string
	key     string
	table   string
	matchFn string
	http    *http.Client
}

// NewSupabaseStore creates a SupabaseStore. The API key is read from the
// environment variable named by cfg.KeyEnv.
func NewSupabaseStore(cfg config.SupabaseConfig) *SupabaseStore {
	return &SupabaseStore{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		key:     cfg.Key(),
		table:   cfg.Table,
		matchFn: cfg.MatchFunction,
		http:    &http.Client{Timeout: supabaseTimeout},
	}
}

func (s *SupabaseStore) Store(ctx context.Context, r Record) error {
	body, err := insertPayload(r)
	if err != nil {
		return err
	}
	if _, err := s.post(ctx, "/rest/v1/"+s.table, body, "return=minimal"); err != nil {
		return fmt.Errorf("store result for task %s: %w", r.TaskID, err)
	}
	return nil
}

func (s *SupabaseStore) Match(ctx context.Context, embedding []float64, n int, filter Filter) ([]Match, error) {
	body, err := matchPayload(embedding, n, filter)
	if err != nil {
		return nil, err
	}
	data, err := s.post(ctx, "/rest/v1/rpc/"+s.matchFn, body, "")
	if err != nil {
		return nil, fmt.Errorf("match documents: %w", err)
	}
	return parseMatches(data)
}

func (s *SupabaseStore) Close() error {
	s.http.CloseIdleConnections()
	return nil
}

func (s *SupabaseStore) post(ctx context.Context, path, body, prefer string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewBufferString(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", s.key)
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("Content-Type", "application/json")
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		msg := gjson.GetBytes(data, "message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		return nil, fmt.Errorf("supabase %s: status %d: %s", path, resp.StatusCode, msg)
	}
	return data, nil
}

func insertPayload(r Record) (string, error) {
	body := `{}`
	var err error
	for _, kv := range []struct {
		path  string
		value interface{}
	}{
		{"content", r.Result},
		{"metadata.task", r.TaskName},
		{"metadata.result", r.Result},
		{"metadata.task_id", r.TaskID},
		{"embedding", r.Embedding},
	} {
		if body, err = sjson.Set(body, kv.path, kv.value); err != nil {
			return "", fmt.Errorf("build insert payload: %w", err)
		}
	}
	return body, nil
}

func matchPayload(embedding []float64, n int, filter Filter) (string, error) {
	body, err := sjson.Set(`{}`, "query_embedding", embedding)
	if err != nil {
		return "", fmt.Errorf("build match payload: %w", err)
	}
	if body, err = sjson.Set(body, "match_count", n); err != nil {
		return "", fmt.Errorf("build match payload: %w", err)
	}
	body, err = sjson.SetRaw(body, "filter", `{}`)
	if err != nil {
		return "", fmt.Errorf("build match payload: %w", err)
	}
	for k, v := range filter {
		if body, err = sjson.Set(body, "filter."+gjson.Escape(k), v); err != nil {
			return "", fmt.Errorf("build match payload: %w", err)
		}
	}
	return body, nil
}

func parseMatches(data []byte) ([]Match, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("match documents: invalid JSON response")
	}
	rows := gjson.ParseBytes(data)
	if !rows.IsArray() {
		return nil, fmt.Errorf("match documents: expected array, got %s", rows.Type)
	}

	var matches []Match
	rows.ForEach(func(_, row gjson.Result) bool {
		matches = append(matches, Match{
			ID:         row.Get("id").Int(),
			Content:    row.Get("content").String(),
			Similarity: row.Get("similarity").Float(),
			Metadata: Metadata{
				Task:   row.Get("metadata.task").String(),
				Result: row.Get("metadata.result").String(),
				TaskID: row.Get("metadata.task_id").String(),
			},
		})
		return true
	})
	return matches, nil
}
