package config

import (
	"fmt"
	"os"
	"time"
)

// Store backends.
const (
	BackendNone     = "none"
	BackendSupabase = "supabase"
	BackendRedis    = "redis"
)

// Config represents the full taskloop.yaml configuration.
type Config struct {
	SchemaVersion int            `yaml:"schema_version"`
	Agent         AgentConfig    `yaml:"agent"`
	Approval      ApprovalConfig `yaml:"approval"`
	LLM           LLMConfig      `yaml:"llm"`
	Models        ModelsConfig   `yaml:"models"`
	Sampling      SamplingConfig `yaml:"sampling"`
	Context       ContextConfig  `yaml:"context"`
	Store         StoreConfig    `yaml:"store"`
	Tracing       TracingConfig  `yaml:"tracing"`
}

type AgentConfig struct {
	Objective          string        `yaml:"objective"`
	FirstTask          string        `yaml:"first_task"`
	MaxIterations      int           `yaml:"max_iterations"`
	MaxNewTasks        int           `yaml:"max_new_tasks"`
	IterationDelay     time.Duration `yaml:"iteration_delay"`
	PausePoll          time.Duration `yaml:"pause_poll"`
	ErrorBackoff       time.Duration `yaml:"error_backoff"`
	ResultPreviewChars int           `yaml:"result_preview_chars"`
	LogCapacity        int           `yaml:"log_capacity"`
	HistoryCapacity    int           `yaml:"history_capacity"`
	CompletedCapacity  int           `yaml:"completed_capacity"`
	StateDir           string        `yaml:"state_dir"`
	TasksFile          string        `yaml:"tasks_file"`
}

type ApprovalConfig struct {
	Required bool          `yaml:"required"`
	Timeout  time.Duration `yaml:"timeout"`
}

type LLMConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKeyEnv      string        `yaml:"api_key_env"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
}

type ModelsConfig struct {
	Completion          string `yaml:"completion"`
	Embedding           string `yaml:"embedding"`
	EmbeddingDimensions int    `yaml:"embedding_dimensions"`
}

// Sampling holds the per-call generation parameters for one agent role.
type Sampling struct {
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

type SamplingConfig struct {
	Creation       Sampling `yaml:"creation"`
	Prioritization Sampling `yaml:"prioritization"`
	Execution      Sampling `yaml:"execution"`
}

type ContextConfig struct {
	Results int `yaml:"results"`
}

type StoreConfig struct {
	Backend  string         `yaml:"backend"`
	Supabase SupabaseConfig `yaml:"supabase"`
	Redis    RedisConfig    `yaml:"redis"`
}

type SupabaseConfig struct {
	URL           string `yaml:"url"`
	KeyEnv        string `yaml:"key_env"`
	Table         string `yaml:"table"`
	MatchFunction string `yaml:"match_function"`
}

type RedisConfig struct {
	Addr        string `yaml:"addr"`
	PasswordEnv string `yaml:"password_env"`
	DB          int    `yaml:"db"`
	Prefix      string `yaml:"prefix"`
}

type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// APIKey returns the completion/embedding API key from the configured environment variable.
func (c *LLMConfig) APIKey() string {
	return os.Getenv(c.APIKeyEnv)
}

// Key returns the Supabase API key from the configured environment variable.
func (c *SupabaseConfig) Key() string {
	return os.Getenv(c.KeyEnv)
}

// Password returns the Redis password, if any.
func (c *RedisConfig) Password() string {
	if c.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(c.PasswordEnv)
}

// Load reads and parses a taskloop.yaml file, applying defaults and validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse parses raw YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	cfg, err := Migrate(data)
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks a Config for logical errors.
func Validate(cfg *Config) error {
	if cfg.Agent.Objective == "" {
		return fmt.Errorf("agent.objective is required")
	}
	if cfg.Agent.MaxIterations < 1 {
		return fmt.Errorf("agent.max_iterations must be >= 1, got %d", cfg.Agent.MaxIterations)
	}
	if cfg.Agent.MaxNewTasks < 1 || cfg.Agent.MaxNewTasks > 10 {
		return fmt.Errorf("agent.max_new_tasks must be 1-10, got %d", cfg.Agent.MaxNewTasks)
	}
	if cfg.Agent.LogCapacity < 50 {
		return fmt.Errorf("agent.log_capacity must be >= 50, got %d", cfg.Agent.LogCapacity)
	}
	if cfg.Agent.HistoryCapacity < 1 {
		return fmt.Errorf("agent.history_capacity must be >= 1, got %d", cfg.Agent.HistoryCapacity)
	}
	if cfg.Approval.Timeout <= 0 {
		return fmt.Errorf("approval.timeout must be positive, got %v", cfg.Approval.Timeout)
	}
	if cfg.Models.EmbeddingDimensions < 1 {
		return fmt.Errorf("models.embedding_dimensions must be >= 1, got %d", cfg.Models.EmbeddingDimensions)
	}
	if cfg.Context.Results < 1 {
		return fmt.Errorf("context.results must be >= 1, got %d", cfg.Context.Results)
	}

	for role, s := range map[string]Sampling{
		"creation":       cfg.Sampling.Creation,
		"prioritization": cfg.Sampling.Prioritization,
		"execution":      cfg.Sampling.Execution,
	} {
		if err := validateSampling(role, s); err != nil {
			return err
		}
	}

	switch cfg.Store.Backend {
	case BackendNone:
	case BackendSupabase:
		if cfg.Store.Supabase.URL == "" {
			return fmt.Errorf("store.supabase.url is required for the supabase backend")
		}
	case BackendRedis:
		if cfg.Store.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown store.backend %q (want %q, %q or %q)",
			cfg.Store.Backend, BackendNone, BackendSupabase, BackendRedis)
	}

	return nil
}

func validateSampling(role string, s Sampling) error {
	if s.Temperature < 0 || s.Temperature > 2 {
		return fmt.Errorf("sampling.%s.temperature must be 0-2, got %v", role, s.Temperature)
	}
	if s.MaxTokens < 1 {
		return fmt.Errorf("sampling.%s.max_tokens must be >= 1, got %d", role, s.MaxTokens)
	}
	return nil
}
