package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mohammad-safakhou/agora/config"
	"github.com/mohammad-safakhou/agora/tools/web_search"
)

// NewLLMProvider builds the configured provider. Only OpenAI-compatible
// backends are implemented; the base URL is overridable so local
// inference servers work too.
func NewLLMProvider(cfg config.LLMConfig) (LLMProvider, error) {
	for name, provider := range cfg.Providers {
		switch provider.Type {
		case "openai":
			if provider.APIKey == "" {
				return nil, fmt.Errorf("llm provider %s: api key is required", name)
			}
			return newOpenAIProvider(provider), nil
		default:
			return nil, fmt.Errorf("llm provider %s: unsupported type %q", name, provider.Type)
		}
	}
	return nil, fmt.Errorf("no llm providers configured")
}

// NewSearcher builds the search stack: provider, optional readability
// enrichment, optional per-debate cache.
func NewSearcher(cfg config.SearchConfig) (Searcher, error) {
	searcher, err := web_search.NewWebSearcher(web_search.Provider(cfg.Provider), cfg.APIKey, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	var wrapped Searcher = searcher
	if cfg.EnrichContent {
		wrapped = web_search.NewEnricher(wrapped, cfg.Timeout)
	}
	if cfg.CacheEnabled {
		wrapped = web_search.NewCache(wrapped)
	}
	return wrapped, nil
}

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// openAIProvider talks to the chat completions API directly.
type openAIProvider struct {
	apiKey     string
	baseURL    string
	models     map[string]config.ModelParam
	httpClient *http.Client
}

func newOpenAIProvider(cfg config.LLMProviderConfig) *openAIProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &openAIProvider{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		models:     cfg.Models,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}

func (p *openAIProvider) Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error) {
	response, _, _, err := p.GenerateWithTokens(ctx, prompt, model, options)
	return response, err
}

func (p *openAIProvider) GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error) {
	params := p.paramsFor(model)
	reqBody := chatRequest{
		Model:       apiNameFor(model, params),
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
	}
	if t, ok := options["temperature"].(float64); ok {
		reqBody.Temperature = t
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", 0, 0, fmt.Errorf("marshalling request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, time.Duration(attempt)*2*time.Second); err != nil {
				return "", 0, 0, err
			}
		}
		response, inTokens, outTokens, retryable, err := p.send(ctx, payload)
		if err == nil {
			return response, inTokens, outTokens, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return "", 0, 0, lastErr
}

func (p *openAIProvider) send(ctx context.Context, payload []byte) (string, int64, int64, bool, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", 0, 0, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", 0, 0, true, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, 0, true, err
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", 0, 0, true, fmt.Errorf("api returned status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, 0, false, fmt.Errorf("api returned status %d: %s", resp.StatusCode, trimBody(body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", 0, 0, false, fmt.Errorf("parsing response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", 0, 0, false, fmt.Errorf("no choices in response")
	}
	return parsed.Choices[0].Message.Content, parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens, false, nil
}

func (p *openAIProvider) GetAvailableModels() []string {
	models := make([]string, 0, len(p.models))
	for name := range p.models {
		models = append(models, name)
	}
	return models
}

func (p *openAIProvider) GetModelInfo(model string) (ModelInfo, error) {
	params, ok := p.models[model]
	if !ok {
		return ModelInfo{}, fmt.Errorf("unknown model: %s", model)
	}
	return ModelInfo{
		Name:            model,
		Provider:        "openai",
		MaxTokens:       params.MaxTokens,
		Temperature:     params.Temperature,
		CostPer1KInput:  params.CostPer1kIn,
		CostPer1KOutput: params.CostPer1kOut,
	}, nil
}

func (p *openAIProvider) CalculateCost(inputTokens, outputTokens int64, model string) float64 {
	params, ok := p.models[model]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1000*params.CostPer1kIn + float64(outputTokens)/1000*params.CostPer1kOut
}

func (p *openAIProvider) paramsFor(model string) config.ModelParam {
	if params, ok := p.models[model]; ok {
		return params
	}
	// unconfigured models get conservative generation defaults
	return config.ModelParam{Temperature: 0.7, MaxTokens: 2000}
}

func apiNameFor(model string, params config.ModelParam) string {
	if params.APIName != "" {
		return params.APIName
	}
	return model
}

func trimBody(body []byte) string {
	const max = 300
	if len(body) > max {
		body = body[:max]
	}
	return string(body)
}
