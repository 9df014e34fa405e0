package agent

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/kylegalloway/taskloop/internal/config"
	"github.com/kylegalloway/taskloop/internal/memory"
	"github.com/kylegalloway/taskloop/internal/tasks"
)

var errTransport = errors.New("connection refused")

func TestParseNewTasks(t *testing.T) {
	got := ParseNewTasks("  Survey food banks \n\n\tMap supply   chains\n   \nEstimate costs")
	want := []tasks.Task{
		{Name: "Survey food banks"},
		{Name: "Map supply chains"},
		{Name: "Estimate costs"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseNewTasks = %v, want %v", got, want)
	}
	if got := ParseNewTasks("   \n"); len(got) != 0 {
		t.Errorf("blank reply = %v, want none", got)
	}
}

func TestParsePrioritized(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []tasks.Task
	}{
		{
			name: "well formed",
			in:   "2. Survey food banks\n3. Map supply chains",
			want: []tasks.Task{{ID: "2", Name: "Survey food banks"}, {ID: "3", Name: "Map supply chains"}},
		},
		{
			name: "drops lines without separator",
			in:   "Here is the list:\n2. a\n3.b\n4. c",
			want: []tasks.Task{{ID: "2", Name: "a"}, {ID: "4", Name: "c"}},
		},
		{
			name: "drops empty label or name",
			in:   ". orphan\n5. \n6. kept",
			want: []tasks.Task{{ID: "6", Name: "kept"}},
		},
		{
			name: "splits on first separator only",
			in:   "7. Call Dr. Smith. Then report.",
			want: []tasks.Task{{ID: "7", Name: "Call Dr. Smith. Then report."}},
		},
		{
			name: "non numeric labels kept verbatim",
			in:   "A. first",
			want: []tasks.Task{{ID: "A", Name: "first"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParsePrioritized(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParsePrioritized = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDroppedNames(t *testing.T) {
	before := []tasks.Task{{Name: "a"}, {Name: "b"}, {Name: "b"}, {Name: "c"}}
	after := []tasks.Task{{Name: "b"}, {Name: "a"}, {Name: "c rephrased"}}
	got := DroppedNames(before, after)
	if want := []string{"b", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("DroppedNames = %v, want %v", got, want)
	}
}

func TestNextLabel(t *testing.T) {
	tests := []struct {
		id   string
		want int
	}{
		{"1", 2},
		{"41", 42},
		{"task-a", 1},
		{"", 1},
	}
	for _, tt := range tests {
		if got := NextLabel(tt.id); got != tt.want {
			t.Errorf("NextLabel(%q) = %d, want %d", tt.id, got, tt.want)
		}
	}
}

func TestCreatorCapsNewTasks(t *testing.T) {
	llm := &MockCompleter{Responses: map[string]MockResponse{
		RoleCreation: {Output: "one\ntwo\nthree\nfour\nfive"},
	}}
	c := &Creator{LLM: llm, Sampling: config.Sampling{Temperature: 0.5, MaxTokens: 200}, MaxNew: 2}

	got, err := c.Create(context.Background(), "X", "first", "result", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Name != "one" || got[1].Name != "two" {
		t.Errorf("tasks = %v, want first two lines", got)
	}
	for _, task := range got {
		if task.ID != "" {
			t.Errorf("task %q has ID %q, want none", task.Name, task.ID)
		}
	}

	calls := llm.Calls(RoleCreation)
	if len(calls) != 1 {
		t.Fatalf("creation calls = %d, want 1", len(calls))
	}
	if calls[0].Sampling.Temperature != 0.5 || calls[0].Sampling.MaxTokens != 200 {
		t.Errorf("sampling = %+v", calls[0].Sampling)
	}
	if !strings.Contains(calls[0].Prompt, "- None") {
		t.Error("prompt should mark empty pending list")
	}
}

func TestCreatorError(t *testing.T) {
	llm := &MockCompleter{Responses: map[string]MockResponse{
		RoleCreation: {Err: errTransport},
	}}
	c := &Creator{LLM: llm, MaxNew: 2}
	got, err := c.Create(context.Background(), "X", "t", "r", nil)
	if !errors.Is(err, errTransport) {
		t.Errorf("err = %v, want wrapped transport error", err)
	}
	if len(got) != 0 {
		t.Errorf("tasks = %v, want none", got)
	}
}

func TestPrioritizerIdentityRoundTrip(t *testing.T) {
	queue := []tasks.Task{
		{ID: "2", Name: "Survey food banks"},
		{ID: "3", Name: "Map supply chains"},
		{ID: "4", Name: "Estimate costs"},
	}
	llm := &MockCompleter{} // default prioritization reply echoes the offered list
	p := &Prioritizer{LLM: llm}

	got, err := p.Prioritize(context.Background(), "5", queue, "X")
	if err != nil {
		t.Fatalf("Prioritize: %v", err)
	}
	want := []tasks.Task{
		{ID: "6", Name: "Survey food banks"},
		{ID: "7", Name: "Map supply chains"},
		{ID: "8", Name: "Estimate costs"},
	}
	if !reflect.DeepEqual(got.Tasks, want) {
		t.Errorf("Tasks = %v, want %v", got.Tasks, want)
	}
	if len(got.Dropped) != 0 {
		t.Errorf("Dropped = %v, want none", got.Dropped)
	}
}

func TestPrioritizerReportsDropped(t *testing.T) {
	queue := []tasks.Task{{ID: "2", Name: "a"}, {ID: "3", Name: "b"}}
	llm := &MockCompleter{Responses: map[string]MockResponse{
		RolePrioritization: {Output: "2. b\n3. a, but rephrased"},
	}}
	p := &Prioritizer{LLM: llm}

	got, err := p.Prioritize(context.Background(), "1", queue, "X")
	if err != nil {
		t.Fatalf("Prioritize: %v", err)
	}
	if len(got.Tasks) != 2 || got.Tasks[0].Name != "b" {
		t.Errorf("Tasks = %v", got.Tasks)
	}
	if !reflect.DeepEqual(got.Dropped, []string{"a"}) {
		t.Errorf("Dropped = %v, want [a]", got.Dropped)
	}
}

func TestPrioritizerEmptyQueueSkipsModel(t *testing.T) {
	llm := &MockCompleter{}
	p := &Prioritizer{LLM: llm}
	got, err := p.Prioritize(context.Background(), "1", nil, "X")
	if err != nil || len(got.Tasks) != 0 {
		t.Errorf("Prioritize(empty) = %v, %v", got, err)
	}
	if n := len(llm.Calls("")); n != 0 {
		t.Errorf("model calls = %d, want 0", n)
	}
}

func TestPrioritizerError(t *testing.T) {
	llm := &MockCompleter{Responses: map[string]MockResponse{
		RolePrioritization: {Err: errTransport},
	}}
	p := &Prioritizer{LLM: llm}
	if _, err := p.Prioritize(context.Background(), "1", []tasks.Task{{ID: "2", Name: "a"}}, "X"); !errors.Is(err, errTransport) {
		t.Errorf("err = %v, want transport error", err)
	}
}

// stubStore returns fixed matches or a fixed error.
type stubStore struct {
	matches []memory.Match
	err     error
	gotN    int
}

func (s *stubStore) Store(ctx context.Context, r memory.Record) error { return nil }
func (s *stubStore) Close() error                                     { return nil }
func (s *stubStore) Match(ctx context.Context, vec []float64, n int, f memory.Filter) ([]memory.Match, error) {
	s.gotN = n
	return s.matches, s.err
}

func TestRetrieverSortsAndFilters(t *testing.T) {
	store := &stubStore{matches: []memory.Match{
		{Similarity: 0.2, Metadata: memory.Metadata{Task: "low"}},
		{Similarity: 0.9, Metadata: memory.Metadata{Task: "high"}},
		{Similarity: 0.5, Metadata: memory.Metadata{Task: ""}},
		{Similarity: 0.6, Metadata: memory.Metadata{Task: "mid"}},
	}}
	r := &Retriever{Embedder: &MockEmbedder{Vector: []float64{1}}, Store: store}

	got := r.Retrieve(context.Background(), "X", 5)
	if want := []string{"high", "mid", "low"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Retrieve = %v, want %v", got, want)
	}
	if store.gotN != 5 {
		t.Errorf("match count = %d, want 5", store.gotN)
	}
}

func TestRetrieverErrorIsEmpty(t *testing.T) {
	r := &Retriever{Embedder: &MockEmbedder{}, Store: &stubStore{err: errTransport}}
	if got := r.Retrieve(context.Background(), "X", 5); len(got) != 0 {
		t.Errorf("Retrieve = %v, want empty", got)
	}
	var nilRetriever *Retriever
	if got := nilRetriever.Retrieve(context.Background(), "X", 5); got != nil {
		t.Errorf("nil Retriever = %v, want nil", got)
	}
}

func TestExecutorUsesContext(t *testing.T) {
	llm := &MockCompleter{Responses: map[string]MockResponse{
		RoleExecution: {Output: "RESULT"},
	}}
	e := &Executor{
		LLM: llm,
		Retriever: &Retriever{
			Embedder: &MockEmbedder{Vector: []float64{1}},
			Store:    &stubStore{matches: []memory.Match{{Similarity: 1, Metadata: memory.Metadata{Task: "prior task"}}}},
		},
		Sampling:       config.Sampling{Temperature: 0.7, MaxTokens: 1000},
		ContextResults: 5,
	}

	got, err := e.Execute(context.Background(), "X", "Survey food banks")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got != "RESULT" {
		t.Errorf("Execute = %q, want RESULT", got)
	}
	calls := llm.Calls(RoleExecution)
	if len(calls) != 1 || !strings.Contains(calls[0].Prompt, "- prior task") {
		t.Error("execution prompt should include retrieved context")
	}
}

func TestExecutorFailureText(t *testing.T) {
	llm := &MockCompleter{Responses: map[string]MockResponse{
		RoleExecution: {Err: errTransport},
	}}
	e := &Executor{LLM: llm}

	got, err := e.Execute(context.Background(), "X", "t")
	if !errors.Is(err, errTransport) {
		t.Errorf("err = %v, want transport error", err)
	}
	if !strings.HasPrefix(got, "Task execution failed due to error: ") {
		t.Errorf("result = %q, want failure text", got)
	}
	if !strings.Contains(got, "connection refused") {
		t.Errorf("result = %q, want reason", got)
	}
}

func TestMockCompleterHonorsContext(t *testing.T) {
	llm := &MockCompleter{Delay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := llm.Complete(ctx, "anything", config.Sampling{}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
