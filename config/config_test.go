package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "general:\n  environment: development\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Debate.MaxRounds != 3 {
		t.Fatalf("max_rounds default = %d, want 3", cfg.Debate.MaxRounds)
	}
	if cfg.Debate.MinFragmentScore != 0.6 {
		t.Fatalf("min_fragment_score default = %f, want 0.6", cfg.Debate.MinFragmentScore)
	}
	if cfg.Debate.TieMargin != 0.1 {
		t.Fatalf("tie_margin default = %f, want 0.1", cfg.Debate.TieMargin)
	}
	if cfg.Debate.AgentMinInterval != 1500*time.Millisecond {
		t.Fatalf("agent_min_interval default = %s, want 1.5s", cfg.Debate.AgentMinInterval)
	}
	if cfg.LLM.Routing.Supervisors != "gpt-4o" || cfg.LLM.Routing.Agents != "gpt-4o-mini" {
		t.Fatalf("unexpected routing defaults: %+v", cfg.LLM.Routing)
	}
	if cfg.Search.Provider != "tavily" {
		t.Fatalf("search provider default = %s, want tavily", cfg.Search.Provider)
	}
}

func TestLoadConfigTestingEnvironment(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "general:\n  environment: testing\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Debate.AgentDelay != 0 || cfg.Debate.SupervisorMinInterval != 0 ||
		cfg.Debate.AgentMinInterval != 0 || cfg.Debate.QueryPauseBase != 0 ||
		cfg.Debate.EvaluationPause != 0 {
		t.Fatalf("testing preset should zero every delay: %+v", cfg.Debate)
	}
	if cfg.Debate.TimeoutMinutes != 1 {
		t.Fatalf("testing timeout = %d, want 1", cfg.Debate.TimeoutMinutes)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
debate:
  max_rounds: 5
  tie_margin: 0.05
  agent_delay: 1s
`))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Debate.MaxRounds != 5 {
		t.Fatalf("max_rounds = %d, want 5", cfg.Debate.MaxRounds)
	}
	if cfg.Debate.TieMargin != 0.05 {
		t.Fatalf("tie_margin = %f, want 0.05", cfg.Debate.TieMargin)
	}
	if cfg.Debate.AgentDelay != time.Second {
		t.Fatalf("agent_delay = %s, want 1s", cfg.Debate.AgentDelay)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("AGORA_DEBATE_MAX_ROUNDS", "7")
	cfg, err := LoadConfig(writeConfig(t, "general:\n  environment: development\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Debate.MaxRounds != 7 {
		t.Fatalf("env override ignored: max_rounds = %d, want 7", cfg.Debate.MaxRounds)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	if _, err := LoadConfig(writeConfig(t, "debate:\n  max_rounds: 0\n")); err == nil {
		t.Fatalf("max_rounds 0 should fail validation")
	}
	if _, err := LoadConfig(writeConfig(t, "debate:\n  tie_margin: 1.5\n")); err == nil {
		t.Fatalf("tie_margin out of range should fail validation")
	}
	if _, err := LoadConfig(writeConfig(t, "llm:\n  providers:\n    openai:\n      api_key: k\n")); err == nil {
		t.Fatalf("provider without type should fail validation")
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{URL: "postgres://u:p@h:5432/db"}
	dsn, err := p.DSN()
	if err != nil || dsn != p.URL {
		t.Fatalf("explicit URL should win: %s, %v", dsn, err)
	}

	p = PostgresConfig{Host: "localhost", User: "agora", Password: "pw", DBName: "debates"}
	dsn, err = p.DSN()
	if err != nil {
		t.Fatalf("DSN: %v", err)
	}
	if dsn != "postgres://agora:pw@localhost:5432/debates?sslmode=disable" {
		t.Fatalf("unexpected dsn: %s", dsn)
	}

	if _, err := (PostgresConfig{}).DSN(); err == nil {
		t.Fatalf("empty postgres config should error")
	}
}

func TestRedisAddr(t *testing.T) {
	r := RedisConfig{Host: "localhost", Port: 6379}
	if r.Addr() != "localhost:6379" {
		t.Fatalf("addr = %s", r.Addr())
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}
