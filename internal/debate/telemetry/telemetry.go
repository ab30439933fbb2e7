package telemetry

import (
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammad-safakhou/agora/config"
)

// Telemetry aggregates debate metrics and LLM cost tracking. A nil
// *Telemetry is a valid no-op receiver so components never have to check.
type Telemetry struct {
	cfg      config.TelemetryConfig
	logger   *log.Logger
	registry *prometheus.Registry

	mu        sync.Mutex
	agentRuns []AgentEvent
	searches  []SearchEvent
	debates   []DebateEvent
	costs     map[string]*ModelCost

	debatesTotal    prometheus.Counter
	roundsTotal     prometheus.Counter
	fragmentsTotal  *prometheus.CounterVec
	searchesTotal   *prometheus.CounterVec
	llmRequests     *prometheus.CounterVec
	llmTokensTotal  *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	debateDurations prometheus.Histogram
}

// AgentEvent records one research agent run.
type AgentEvent struct {
	Role      string        `json:"role"`
	Team      string        `json:"team"`
	Fragments int           `json:"fragments"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// SearchEvent records one web search.
type SearchEvent struct {
	Query     string    `json:"query"`
	Results   int       `json:"results"`
	Failed    bool      `json:"failed"`
	Timestamp time.Time `json:"timestamp"`
}

// DebateEvent records one finished debate.
type DebateEvent struct {
	DebateID  string        `json:"debate_id"`
	Winner    string        `json:"winner"`
	Rounds    int           `json:"rounds"`
	Errors    int           `json:"errors"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// ModelCost accumulates token usage and spend per model.
type ModelCost struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	Requests     int64   `json:"requests"`
	CostUSD      float64 `json:"cost_usd"`
}

func NewTelemetry(cfg config.TelemetryConfig) *Telemetry {
	if !cfg.Enabled {
		return nil
	}
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	t := &Telemetry{
		cfg:      cfg,
		logger:   log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		costs:    make(map[string]*ModelCost),
		registry: registry,

		debatesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "agora_debates_total", Help: "Finished debates.",
		}),
		roundsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "agora_rounds_total", Help: "Completed debate rounds.",
		}),
		fragmentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agora_fragments_total", Help: "Evidence fragments accepted.",
		}, []string{"team"}),
		searchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agora_searches_total", Help: "Web searches executed.",
		}, []string{"outcome"}),
		llmRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agora_llm_requests_total", Help: "LLM requests by model.",
		}, []string{"model"}),
		llmTokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agora_llm_tokens_total", Help: "LLM tokens by model and direction.",
		}, []string{"model", "direction"}),
		errorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agora_debate_errors_total", Help: "Errors recorded in debate state.",
		}, []string{"stage"}),
		debateDurations: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "agora_debate_duration_seconds",
			Help:    "Wall-clock duration of debates.",
			Buckets: prometheus.ExponentialBuckets(10, 2, 8),
		}),
	}
	return t
}

// ServeMetrics exposes /metrics on the configured port. Blocks; run it in
// a goroutine.
func (t *Telemetry) ServeMetrics() error {
	if t == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{}))
	addr := fmt.Sprintf(":%d", t.cfg.MetricsPort)
	t.logger.Printf("metrics on %s", addr)
	return http.ListenAndServe(addr, mux)
}

// Handler returns the /metrics handler for embedding in an HTTP server.
func (t *Telemetry) Handler() http.Handler {
	if t == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

func (t *Telemetry) RecordAgentRun(role, team string, fragments int, duration time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.agentRuns = append(t.agentRuns, AgentEvent{Role: role, Team: team, Fragments: fragments, Duration: duration, Timestamp: time.Now()})
	t.mu.Unlock()
	t.fragmentsTotal.WithLabelValues(team).Add(float64(fragments))
}

func (t *Telemetry) RecordSearch(query string, results int, failed bool) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.searches = append(t.searches, SearchEvent{Query: query, Results: results, Failed: failed, Timestamp: time.Now()})
	t.mu.Unlock()
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	t.searchesTotal.WithLabelValues(outcome).Inc()
}

func (t *Telemetry) RecordLLMUsage(model string, inputTokens, outputTokens int64, costUSD float64) {
	if t == nil {
		return
	}
	t.mu.Lock()
	c, ok := t.costs[model]
	if !ok {
		c = &ModelCost{}
		t.costs[model] = c
	}
	c.Requests++
	c.InputTokens += inputTokens
	c.OutputTokens += outputTokens
	if t.cfg.CostTracking {
		c.CostUSD += costUSD
	}
	t.mu.Unlock()
	t.llmRequests.WithLabelValues(model).Inc()
	t.llmTokensTotal.WithLabelValues(model, "input").Add(float64(inputTokens))
	t.llmTokensTotal.WithLabelValues(model, "output").Add(float64(outputTokens))
}

func (t *Telemetry) RecordRound() {
	if t == nil {
		return
	}
	t.roundsTotal.Inc()
}

func (t *Telemetry) RecordError(stage string) {
	if t == nil {
		return
	}
	t.errorsTotal.WithLabelValues(stage).Inc()
}

func (t *Telemetry) RecordDebate(debateID, winner string, rounds, errors int, duration time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.debates = append(t.debates, DebateEvent{DebateID: debateID, Winner: winner, Rounds: rounds, Errors: errors, Duration: duration, Timestamp: time.Now()})
	t.mu.Unlock()
	t.debatesTotal.Inc()
	t.debateDurations.Observe(duration.Seconds())
}

// Costs returns a snapshot of per-model usage.
func (t *Telemetry) Costs() map[string]ModelCost {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]ModelCost, len(t.costs))
	for model, c := range t.costs {
		out[model] = *c
	}
	return out
}

// TotalCostUSD sums tracked spend across models.
func (t *Telemetry) TotalCostUSD() float64 {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	var total float64
	for _, c := range t.costs {
		total += c.CostUSD
	}
	return total
}
