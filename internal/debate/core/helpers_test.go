package core

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mohammad-safakhou/agora/config"
	"github.com/mohammad-safakhou/agora/tools/web_search/models"
)

// testDebateConfig has every pause zeroed so suites run fast.
func testDebateConfig() config.DebateConfig {
	return config.DebateConfig{
		MaxRounds:            3,
		MaxFragmentsPerAgent: 5,
		MaxQueriesPerAgent:   2,
		MaxResultsPerQuery:   2,
		MinFragmentScore:     0.6,
		SimilarityThreshold:  0.85,
		TieMargin:            0.1,
		MaxArgumentLength:    1500,
		TimeoutMinutes:       1,
	}
}

func testConfig() *config.Config {
	return &config.Config{
		General: config.GeneralConfig{Environment: "testing"},
		Debate:  testDebateConfig(),
		LLM: config.LLMConfig{
			Routing: config.LLMRoutingConfig{Supervisors: "test-model", Agents: "test-model"},
		},
	}
}

// stubLLM answers by prompt shape: respond maps a substring of the prompt
// to a canned reply, checked in insertion order via keys.
type stubLLM struct {
	mu      sync.Mutex
	keys    []string
	replies map[string]string
	err     error
	calls   int
}

func newStubLLM() *stubLLM {
	return &stubLLM{replies: map[string]string{}}
}

func (s *stubLLM) respond(promptContains, reply string) *stubLLM {
	s.keys = append(s.keys, promptContains)
	s.replies[promptContains] = reply
	return s
}

func (s *stubLLM) Generate(ctx context.Context, prompt, model string, options map[string]interface{}) (string, error) {
	text, _, _, err := s.GenerateWithTokens(ctx, prompt, model, options)
	return text, err
}

func (s *stubLLM) GenerateWithTokens(ctx context.Context, prompt, model string, options map[string]interface{}) (string, int64, int64, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return "", 0, 0, s.err
	}
	for _, key := range s.keys {
		if strings.Contains(prompt, key) {
			return s.replies[key], 10, 20, nil
		}
	}
	return "", 0, 0, fmt.Errorf("no canned reply for prompt %q", prompt[:min(80, len(prompt))])
}

func (s *stubLLM) GetAvailableModels() []string { return []string{"test-model"} }

func (s *stubLLM) GetModelInfo(model string) (ModelInfo, error) {
	return ModelInfo{Name: model, Provider: "stub"}, nil
}

func (s *stubLLM) CalculateCost(inputTokens, outputTokens int64, model string) float64 {
	return 0
}

// stubSearcher returns canned results for every query.
type stubSearcher struct {
	mu      sync.Mutex
	results []models.Result
	err     error
	queries []string
}

func (s *stubSearcher) Search(ctx context.Context, query string, sourceType models.SourceType, max int) ([]models.Result, error) {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if len(s.results) > max {
		return s.results[:max], nil
	}
	return s.results, nil
}
