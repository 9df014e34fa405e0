package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("../../testdata/configs", name))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return data
}

func TestParseFullConfig(t *testing.T) {
	cfg, err := Parse(readFixture(t, "valid_full.yaml"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if cfg.SchemaVersion != 1 {
		t.Errorf("schema_version = %d, want 1", cfg.SchemaVersion)
	}
	if cfg.Agent.Objective != "Write a market analysis for electric cargo bikes." {
		t.Errorf("agent.objective = %q", cfg.Agent.Objective)
	}
	if cfg.Agent.MaxIterations != 8 {
		t.Errorf("agent.max_iterations = %d, want 8", cfg.Agent.MaxIterations)
	}
	if cfg.Agent.MaxNewTasks != 3 {
		t.Errorf("agent.max_new_tasks = %d, want 3", cfg.Agent.MaxNewTasks)
	}
	if cfg.Agent.PausePoll != 500*time.Millisecond {
		t.Errorf("agent.pause_poll = %v, want 500ms", cfg.Agent.PausePoll)
	}
	if !cfg.Approval.Required {
		t.Error("approval.required = false, want true")
	}
	if cfg.Approval.Timeout != 2*time.Minute {
		t.Errorf("approval.timeout = %v, want 2m", cfg.Approval.Timeout)
	}
	if cfg.LLM.APIKeyEnv != "TEST_LLM_KEY" {
		t.Errorf("llm.api_key_env = %q, want TEST_LLM_KEY", cfg.LLM.APIKeyEnv)
	}
	if cfg.Models.Completion != "mistral-small-latest" {
		t.Errorf("models.completion = %q", cfg.Models.Completion)
	}
	if cfg.Sampling.Creation.Temperature != 0.4 || cfg.Sampling.Creation.MaxTokens != 150 {
		t.Errorf("sampling.creation = %+v, want 0.4/150", cfg.Sampling.Creation)
	}
	// Prioritization was omitted and takes defaults.
	if cfg.Sampling.Prioritization.Temperature != 0.3 || cfg.Sampling.Prioritization.MaxTokens != 500 {
		t.Errorf("sampling.prioritization = %+v, want default 0.3/500", cfg.Sampling.Prioritization)
	}
	if cfg.Context.Results != 3 {
		t.Errorf("context.results = %d, want 3", cfg.Context.Results)
	}
	if cfg.Store.Backend != BackendSupabase {
		t.Errorf("store.backend = %q, want supabase", cfg.Store.Backend)
	}
	if cfg.Store.Supabase.Table != "task_results" {
		t.Errorf("store.supabase.table = %q", cfg.Store.Supabase.Table)
	}
	if cfg.Store.Supabase.MatchFunction != "match_documents" {
		t.Errorf("store.supabase.match_function = %q, want default", cfg.Store.Supabase.MatchFunction)
	}
	if cfg.Agent.TasksFile != filepath.Join(".state", "tasks.yaml") {
		t.Errorf("agent.tasks_file = %q, want derived from state_dir", cfg.Agent.TasksFile)
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.Endpoint != "collector:4317" {
		t.Errorf("tracing = %+v", cfg.Tracing)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	cfg, err := Parse(readFixture(t, "minimal.yaml"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if cfg.Agent.FirstTask != "Develop a task list." {
		t.Errorf("agent.first_task = %q, want default", cfg.Agent.FirstTask)
	}
	if cfg.Agent.MaxIterations != 10 {
		t.Errorf("agent.max_iterations = %d, want default 10", cfg.Agent.MaxIterations)
	}
	if cfg.Agent.MaxNewTasks != 2 {
		t.Errorf("agent.max_new_tasks = %d, want default 2", cfg.Agent.MaxNewTasks)
	}
	if cfg.Agent.IterationDelay != 2*time.Second {
		t.Errorf("agent.iteration_delay = %v, want default 2s", cfg.Agent.IterationDelay)
	}
	if cfg.Agent.LogCapacity != 100 || cfg.Agent.HistoryCapacity != 10 {
		t.Errorf("capacities = %d/%d, want 100/10", cfg.Agent.LogCapacity, cfg.Agent.HistoryCapacity)
	}
	if cfg.Approval.Required {
		t.Error("approval.required = true, want default false")
	}
	if cfg.Approval.Timeout != 300*time.Second {
		t.Errorf("approval.timeout = %v, want default 300s", cfg.Approval.Timeout)
	}
	if cfg.Models.EmbeddingDimensions != 1024 {
		t.Errorf("models.embedding_dimensions = %d, want 1024", cfg.Models.EmbeddingDimensions)
	}
	if cfg.Sampling.Execution.Temperature != 0.7 || cfg.Sampling.Execution.MaxTokens != 1000 {
		t.Errorf("sampling.execution = %+v, want 0.7/1000", cfg.Sampling.Execution)
	}
	if cfg.Store.Backend != BackendNone {
		t.Errorf("store.backend = %q, want none", cfg.Store.Backend)
	}
	if cfg.LLM.BaseURL != "https://api.mistral.ai/v1" {
		t.Errorf("llm.base_url = %q", cfg.LLM.BaseURL)
	}
}

func validConfig() *Config {
	cfg := &Config{Agent: AgentConfig{Objective: "test objective"}}
	applyDefaults(cfg)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing objective", func(c *Config) { c.Agent.Objective = "" }, "agent.objective"},
		{"zero iterations", func(c *Config) { c.Agent.MaxIterations = -1 }, "max_iterations"},
		{"too many new tasks", func(c *Config) { c.Agent.MaxNewTasks = 50 }, "max_new_tasks"},
		{"small log ring", func(c *Config) { c.Agent.LogCapacity = 10 }, "log_capacity"},
		{"bad temperature", func(c *Config) { c.Sampling.Execution.Temperature = 3 }, "sampling.execution"},
		{"unknown backend", func(c *Config) { c.Store.Backend = "sqlite" }, "unknown store.backend"},
		{"supabase without url", func(c *Config) { c.Store.Backend = BackendSupabase }, "store.supabase.url"},
		{"redis without addr", func(c *Config) { c.Store.Backend = BackendRedis }, "store.redis.addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestAPIKeyFromEnv(t *testing.T) {
	t.Setenv("TASKLOOP_TEST_KEY", "sk-test")
	c := LLMConfig{APIKeyEnv: "TASKLOOP_TEST_KEY"}
	if got := c.APIKey(); got != "sk-test" {
		t.Errorf("APIKey() = %q, want sk-test", got)
	}

	r := RedisConfig{}
	if got := r.Password(); got != "" {
		t.Errorf("Password() with no env = %q, want empty", got)
	}
}
