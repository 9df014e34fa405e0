package config

import (
	"path/filepath"
	"time"
)

func applyDefaults(cfg *Config) {
	if cfg.SchemaVersion == 0 {
		cfg.SchemaVersion = 1
	}

	// Agent loop defaults
	if cfg.Agent.FirstTask == "" {
		cfg.Agent.FirstTask = "Develop a task list."
	}
	if cfg.Agent.MaxIterations == 0 {
		cfg.Agent.MaxIterations = 10
	}
	if cfg.Agent.MaxNewTasks == 0 {
		cfg.Agent.MaxNewTasks = 2
	}
	if cfg.Agent.IterationDelay == 0 {
		cfg.Agent.IterationDelay = 2 * time.Second
	}
	if cfg.Agent.PausePoll == 0 {
		cfg.Agent.PausePoll = time.Second
	}
	if cfg.Agent.ErrorBackoff == 0 {
		cfg.Agent.ErrorBackoff = 5 * time.Second
	}
	if cfg.Agent.ResultPreviewChars == 0 {
		cfg.Agent.ResultPreviewChars = 200
	}
	if cfg.Agent.LogCapacity == 0 {
		cfg.Agent.LogCapacity = 100
	}
	if cfg.Agent.HistoryCapacity == 0 {
		cfg.Agent.HistoryCapacity = 10
	}
	if cfg.Agent.CompletedCapacity == 0 {
		cfg.Agent.CompletedCapacity = 100
	}
	if cfg.Agent.StateDir == "" {
		cfg.Agent.StateDir = ".taskloop"
	}
	if cfg.Agent.TasksFile == "" {
		cfg.Agent.TasksFile = filepath.Join(cfg.Agent.StateDir, "tasks.yaml")
	}

	if cfg.Approval.Timeout == 0 {
		cfg.Approval.Timeout = 300 * time.Second
	}

	// LLM defaults (Mistral's OpenAI-compatible endpoint)
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.mistral.ai/v1"
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = "MISTRAL_API_KEY"
	}
	if cfg.LLM.RequestTimeout == 0 {
		cfg.LLM.RequestTimeout = 60 * time.Second
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 2
	}

	if cfg.Models.Completion == "" {
		cfg.Models.Completion = "mistral-large-latest"
	}
	if cfg.Models.Embedding == "" {
		cfg.Models.Embedding = "mistral-embed"
	}
	if cfg.Models.EmbeddingDimensions == 0 {
		cfg.Models.EmbeddingDimensions = 1024
	}

	// Sampling: creation is moderate/short, prioritization low/medium,
	// execution high/long.
	defaultSampling(&cfg.Sampling.Creation, 0.5, 200)
	defaultSampling(&cfg.Sampling.Prioritization, 0.3, 500)
	defaultSampling(&cfg.Sampling.Execution, 0.7, 1000)

	if cfg.Context.Results == 0 {
		cfg.Context.Results = 5
	}

	// Store defaults
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = BackendNone
	}
	if cfg.Store.Supabase.KeyEnv == "" {
		cfg.Store.Supabase.KeyEnv = "SUPABASE_ANON_KEY"
	}
	if cfg.Store.Supabase.Table == "" {
		cfg.Store.Supabase.Table = "documents"
	}
	if cfg.Store.Supabase.MatchFunction == "" {
		cfg.Store.Supabase.MatchFunction = "match_documents"
	}
	if cfg.Store.Redis.Prefix == "" {
		cfg.Store.Redis.Prefix = "taskloop"
	}

	if cfg.Tracing.Endpoint == "" {
		cfg.Tracing.Endpoint = "localhost:4317"
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "taskloop"
	}
}

func defaultSampling(s *Sampling, temperature float64, maxTokens int) {
	if s.Temperature == 0 {
		s.Temperature = temperature
	}
	if s.MaxTokens == 0 {
		s.MaxTokens = maxTokens
	}
}
