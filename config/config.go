package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the debate engine and its surfaces.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Debate    DebateConfig    `mapstructure:"debate"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Search    SearchConfig    `mapstructure:"search"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Server    ServerConfig    `mapstructure:"server"`
}

type GeneralConfig struct {
	Debug       bool   `mapstructure:"debug"`
	LogLevel    string `mapstructure:"log_level"`
	Environment string `mapstructure:"environment"` // production, testing, development
}

// DebateConfig carries every tunable of the debate loop. Delays are real
// durations so the testing preset can zero them.
type DebateConfig struct {
	MaxRounds            int     `mapstructure:"max_rounds"`
	MaxFragmentsPerAgent int     `mapstructure:"max_fragments_per_agent"`
	MaxQueriesPerAgent   int     `mapstructure:"max_queries_per_agent"`
	MaxResultsPerQuery   int     `mapstructure:"max_results_per_query"`
	MinFragmentScore     float64 `mapstructure:"min_fragment_score"`
	SimilarityThreshold  float64 `mapstructure:"similarity_threshold"`
	TieMargin            float64 `mapstructure:"tie_margin"`
	MaxArgumentLength    int     `mapstructure:"max_argument_length"`
	TimeoutMinutes       int     `mapstructure:"timeout_minutes"`

	AgentDelay            time.Duration `mapstructure:"agent_delay"`             // base pause between agents
	SupervisorMinInterval time.Duration `mapstructure:"supervisor_min_interval"` // min gap between supervisor LLM calls
	AgentMinInterval      time.Duration `mapstructure:"agent_min_interval"`      // min gap between agent LLM calls
	QueryPauseBase        time.Duration `mapstructure:"query_pause_base"`        // base pause between queries
	QueryPauseStep        time.Duration `mapstructure:"query_pause_step"`        // added per query index
	EvaluationPause       time.Duration `mapstructure:"evaluation_pause"`        // pause between result evaluations
}

type LLMConfig struct {
	Providers map[string]LLMProviderConfig `mapstructure:"providers"`
	Routing   LLMRoutingConfig             `mapstructure:"routing"`
}

type LLMProviderConfig struct {
	Type    string                `mapstructure:"type"`
	APIKey  string                `mapstructure:"api_key"`
	BaseURL string                `mapstructure:"base_url"`
	Timeout time.Duration         `mapstructure:"timeout"`
	Models  map[string]ModelParam `mapstructure:"models"`
}

type ModelParam struct {
	Name          string  `mapstructure:"name"`
	APIName       string  `mapstructure:"api_name"`
	MaxTokens     int     `mapstructure:"max_tokens"`
	Temperature   float64 `mapstructure:"temperature"`
	CostPer1kIn   float64 `mapstructure:"cost_per_1k_input"`
	CostPer1kOut  float64 `mapstructure:"cost_per_1k_output"`
	ContextWindow int     `mapstructure:"context_window"`
}

// LLMRoutingConfig maps debate roles to model names.
type LLMRoutingConfig struct {
	Supervisors string `mapstructure:"supervisors"`
	Agents      string `mapstructure:"agents"`
	Fallback    string `mapstructure:"fallback"`
}

type SearchConfig struct {
	Provider      string        `mapstructure:"provider"` // tavily, serper, brave
	APIKey        string        `mapstructure:"api_key"`
	Timeout       time.Duration `mapstructure:"timeout"`
	EnrichContent bool          `mapstructure:"enrich_content"` // fetch pages for thin results
	CacheEnabled  bool          `mapstructure:"cache_enabled"`
}

type TelemetryConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	MetricsPort  int  `mapstructure:"metrics_port"`
	CostTracking bool `mapstructure:"cost_tracking"`
}

type StorageConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type RedisConfig struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	Password      string        `mapstructure:"password"`
	DB            int           `mapstructure:"db"`
	Timeout       time.Duration `mapstructure:"timeout"`
	CheckpointTTL time.Duration `mapstructure:"checkpoint_ttl"`
}

type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type ServerConfig struct {
	Address       string `mapstructure:"address"`
	JWTSecret     string `mapstructure:"jwt_secret"`
	AdminEmail    string `mapstructure:"admin_email"`
	AdminPassword string `mapstructure:"admin_password"` // bcrypt hash, or plain text hashed at startup
}

// DSN builds a postgres connection string, preferring the explicit URL.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (storage.postgres.host/dbname or url)")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// LoadConfig reads configuration from file and environment. Environment
// variables use the AGORA_ prefix with dots replaced by underscores
// (e.g. AGORA_DEBATE_MAX_ROUNDS).
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	setDefaults(v)

	v.SetEnvPrefix("AGORA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	cfg.applyEnvironment()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.debug", false)
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.environment", "development")

	v.SetDefault("debate.max_rounds", 3)
	v.SetDefault("debate.max_fragments_per_agent", 5)
	v.SetDefault("debate.max_queries_per_agent", 2)
	v.SetDefault("debate.max_results_per_query", 2)
	v.SetDefault("debate.min_fragment_score", 0.6)
	v.SetDefault("debate.similarity_threshold", 0.85)
	v.SetDefault("debate.tie_margin", 0.1)
	v.SetDefault("debate.max_argument_length", 1500)
	v.SetDefault("debate.timeout_minutes", 10)
	v.SetDefault("debate.agent_delay", "3s")
	v.SetDefault("debate.supervisor_min_interval", "2s")
	v.SetDefault("debate.agent_min_interval", "1500ms")
	v.SetDefault("debate.query_pause_base", "2s")
	v.SetDefault("debate.query_pause_step", "500ms")
	v.SetDefault("debate.evaluation_pause", "1s")

	v.SetDefault("llm.routing.supervisors", "gpt-4o")
	v.SetDefault("llm.routing.agents", "gpt-4o-mini")
	v.SetDefault("llm.routing.fallback", "gpt-4o-mini")

	v.SetDefault("search.provider", "tavily")
	v.SetDefault("search.timeout", "30s")
	v.SetDefault("search.enrich_content", false)
	v.SetDefault("search.cache_enabled", true)

	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.metrics_port", 9090)
	v.SetDefault("telemetry.cost_tracking", true)

	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.timeout", "5s")
	v.SetDefault("storage.redis.checkpoint_ttl", "24h")

	v.SetDefault("server.address", ":10001")
}

// applyEnvironment adjusts the debate knobs per the named environment
// preset. Testing zeroes every delay so suites run fast.
func (c *Config) applyEnvironment() {
	switch c.General.Environment {
	case "testing":
		c.Debate.AgentDelay = 0
		c.Debate.SupervisorMinInterval = 0
		c.Debate.AgentMinInterval = 0
		c.Debate.QueryPauseBase = 0
		c.Debate.QueryPauseStep = 0
		c.Debate.EvaluationPause = 0
		c.Debate.TimeoutMinutes = 1
	case "production":
		c.General.Debug = false
	}
}

// Validate checks the invariants that would otherwise surface as silent
// mis-scoring deep inside a debate.
func (c *Config) Validate() error {
	d := c.Debate
	if d.MaxRounds < 1 {
		return fmt.Errorf("debate.max_rounds must be >= 1, got %d", d.MaxRounds)
	}
	if d.MaxFragmentsPerAgent < 1 {
		return fmt.Errorf("debate.max_fragments_per_agent must be >= 1, got %d", d.MaxFragmentsPerAgent)
	}
	if d.MaxQueriesPerAgent < 1 {
		return fmt.Errorf("debate.max_queries_per_agent must be >= 1, got %d", d.MaxQueriesPerAgent)
	}
	if d.MinFragmentScore < 0 || d.MinFragmentScore > 1 {
		return fmt.Errorf("debate.min_fragment_score must be in [0,1], got %f", d.MinFragmentScore)
	}
	if d.SimilarityThreshold <= 0 || d.SimilarityThreshold > 1 {
		return fmt.Errorf("debate.similarity_threshold must be in (0,1], got %f", d.SimilarityThreshold)
	}
	if d.TieMargin < 0 || d.TieMargin > 1 {
		return fmt.Errorf("debate.tie_margin must be in [0,1], got %f", d.TieMargin)
	}
	for name, p := range c.LLM.Providers {
		if p.Type == "" {
			return fmt.Errorf("llm.providers.%s.type is required", name)
		}
	}
	return nil
}
