package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/agora/tools/web_search/models"
)

// Team identifies a side of the debate.
type Team string

const (
	TeamPro    Team = "pro"
	TeamContra Team = "contra"
)

// Role is a research agent specialty.
type Role string

const (
	RoleCientifico  Role = "cientifico"
	RoleEconomico   Role = "economico"
	RoleHistorico   Role = "historico"
	RoleRefutador   Role = "refutador"
	RolePsicologico Role = "psicologico"
)

// Phase is the debate lifecycle stage carried in the state.
type Phase string

const (
	PhaseInvestigacionInicial Phase = "investigacion_inicial"
	PhaseArgumentacion        Phase = "argumentacion"
	PhaseRefutacion           Phase = "refutacion"
	PhaseProfundizacion       Phase = "profundizacion"
	PhaseCierre               Phase = "cierre"
)

// Strategy selects the prompt template an argument is composed with.
type Strategy string

const (
	StrategyInitialPosition Strategy = "initial_position"
	StrategyCounterAttack   Strategy = "counter_attack"
	StrategyDefensive       Strategy = "defensive"
	StrategyReinforcement   Strategy = "reinforcement"
	StrategyClosing         Strategy = "closing"
	StrategyFallback        Strategy = "fallback"
)

// Winner values for a finished debate.
const (
	WinnerPro    = "pro"
	WinnerContra = "contra"
	WinnerEmpate = "empate"
	WinnerError  = "error"
)

// Fragment is one piece of evaluated evidence.
type Fragment struct {
	ID               string    `json:"id"`
	Title            string    `json:"title,omitempty"`
	Content          string    `json:"content"`
	Source           string    `json:"source"`
	URL              string    `json:"url"`
	Reasoning        string    `json:"reasoning,omitempty"`
	RelevanceScore   float64   `json:"relevance_score"`
	CredibilityScore float64   `json:"credibility_score"`
	BiasScore        float64   `json:"bias_score"`
	FinalScore       float64   `json:"final_score"`
	AgentRole        Role      `json:"agent_role"`
	Team             Team      `json:"team,omitempty"`
	Position         string    `json:"position,omitempty"`
	Query            string    `json:"query,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// NewFragment builds a fragment, clamping the three axis scores to [0,1]
// and deriving the final score: relevance and credibility weigh 0.4 each,
// low bias weighs 0.2.
func NewFragment(content, source, url string, relevance, credibility, bias float64, role Role, query string) Fragment {
	relevance = clamp01(relevance)
	credibility = clamp01(credibility)
	bias = clamp01(bias)
	return Fragment{
		ID:               uuid.New().String(),
		Content:          content,
		Source:           source,
		URL:              url,
		RelevanceScore:   relevance,
		CredibilityScore: credibility,
		BiasScore:        bias,
		FinalScore:       clamp01(0.4*relevance + 0.4*credibility + 0.2*(1-bias)),
		AgentRole:        role,
		Query:            query,
		Timestamp:        time.Now().UTC(),
	}
}

// ToMap renders the fragment as plain data for the serializable state.
func (f Fragment) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"id":                f.ID,
		"title":             f.Title,
		"content":           f.Content,
		"source":            f.Source,
		"url":               f.URL,
		"reasoning":         f.Reasoning,
		"relevance_score":   f.RelevanceScore,
		"credibility_score": f.CredibilityScore,
		"bias_score":        f.BiasScore,
		"final_score":       f.FinalScore,
		"agent_role":        string(f.AgentRole),
		"team":              string(f.Team),
		"position":          f.Position,
		"query":             f.Query,
		"timestamp":         f.Timestamp.Format(time.RFC3339Nano),
	}
}

// FragmentFromMap rebuilds a fragment from its plain-data form. Score
// fields are taken verbatim, not recomputed, so a round trip is exact.
func FragmentFromMap(m map[string]interface{}) Fragment {
	f := Fragment{
		ID:               mapString(m, "id"),
		Title:            mapString(m, "title"),
		Content:          mapString(m, "content"),
		Source:           mapString(m, "source"),
		URL:              mapString(m, "url"),
		Reasoning:        mapString(m, "reasoning"),
		RelevanceScore:   mapFloat(m, "relevance_score"),
		CredibilityScore: mapFloat(m, "credibility_score"),
		BiasScore:        mapFloat(m, "bias_score"),
		FinalScore:       mapFloat(m, "final_score"),
		AgentRole:        Role(mapString(m, "agent_role")),
		Team:             Team(mapString(m, "team")),
		Position:         mapString(m, "position"),
		Query:            mapString(m, "query"),
	}
	if ts, err := time.Parse(time.RFC3339Nano, mapString(m, "timestamp")); err == nil {
		f.Timestamp = ts
	}
	return f
}

// Argument is a composed team position for one round.
type Argument struct {
	ID          string    `json:"id"`
	Team        Team      `json:"team"`
	Position    string    `json:"position"`
	Content     string    `json:"content"`
	KeyPoints   []string  `json:"key_points"`
	Confidence  float64   `json:"confidence"`
	Strategy    Strategy  `json:"strategy"`
	Round       int       `json:"round"`
	FragmentIDs []string  `json:"fragment_ids"`
	Timestamp   time.Time `json:"timestamp"`
}

func (a Argument) ToMap() map[string]interface{} {
	points := make([]interface{}, len(a.KeyPoints))
	for i, p := range a.KeyPoints {
		points[i] = p
	}
	ids := make([]interface{}, len(a.FragmentIDs))
	for i, id := range a.FragmentIDs {
		ids[i] = id
	}
	return map[string]interface{}{
		"id":           a.ID,
		"team":         string(a.Team),
		"position":     a.Position,
		"content":      a.Content,
		"key_points":   points,
		"confidence":   a.Confidence,
		"strategy":     string(a.Strategy),
		"round":        a.Round,
		"fragment_ids": ids,
		"timestamp":    a.Timestamp.Format(time.RFC3339Nano),
	}
}

func ArgumentFromMap(m map[string]interface{}) Argument {
	a := Argument{
		ID:         mapString(m, "id"),
		Team:       Team(mapString(m, "team")),
		Position:   mapString(m, "position"),
		Content:    mapString(m, "content"),
		Confidence: mapFloat(m, "confidence"),
		Strategy:   Strategy(mapString(m, "strategy")),
		Round:      int(mapFloat(m, "round")),
	}
	a.KeyPoints = mapStrings(m, "key_points")
	a.FragmentIDs = mapStrings(m, "fragment_ids")
	if ts, err := time.Parse(time.RFC3339Nano, mapString(m, "timestamp")); err == nil {
		a.Timestamp = ts
	}
	return a
}

// ConfidenceFor scores an argument from its supporting fragments: evidence
// quality weighs 0.6, quantity 0.2 (saturating at maxFragments), source
// diversity 0.2 (saturating at 3 distinct sources). No fragments means a
// neutral 0.5.
func ConfidenceFor(fragments []Fragment, maxFragments int) float64 {
	if len(fragments) == 0 {
		return 0.5
	}
	if maxFragments < 1 {
		maxFragments = 1
	}
	var sum float64
	sources := map[string]struct{}{}
	for _, f := range fragments {
		sum += f.FinalScore
		sources[f.Source] = struct{}{}
	}
	avg := sum / float64(len(fragments))
	quantity := minFloat(float64(len(fragments))/float64(maxFragments), 1)
	diversity := minFloat(float64(len(sources))/3.0, 1)
	return clamp01(0.6*avg + 0.2*quantity + 0.2*diversity)
}

// DebateState is the serializable state threaded through every phase.
// Arguments and fragments are held in plain-data form so the whole state
// survives a JSON round trip byte-for-byte.
type DebateState struct {
	DebateID       string `json:"debate_id"`
	Topic          string `json:"topic"`
	ProPosition    string `json:"pro_position"`
	ContraPosition string `json:"contra_position"`

	CurrentRound int   `json:"current_round"`
	MaxRounds    int   `json:"max_rounds"`
	DebatePhase  Phase `json:"debate_phase"`

	ProSupervisorID    string `json:"pro_supervisor_id"`
	ContraSupervisorID string `json:"contra_supervisor_id"`

	ProArguments    []map[string]interface{} `json:"pro_arguments"`
	ContraArguments []map[string]interface{} `json:"contra_arguments"`
	ProFragments    []map[string]interface{} `json:"pro_fragments"`
	ContraFragments []map[string]interface{} `json:"contra_fragments"`

	LastProArgument    string `json:"last_pro_argument"`
	LastContraArgument string `json:"last_contra_argument"`

	DebateSummary string             `json:"debate_summary"`
	Winner        string             `json:"winner"`
	FinalScores   map[string]float64 `json:"final_scores"`

	StartTime   time.Time `json:"start_time"`
	CurrentTime time.Time `json:"current_time"`
	Errors      []string  `json:"errors"`
}

// AddError appends to the error log; the log is append-only.
func (s *DebateState) AddError(stage string, err error) {
	s.Errors = append(s.Errors, fmt.Sprintf("%s: %v", stage, err))
}

// FragmentsFor rebuilds the typed fragments of one team from the state.
func (s *DebateState) FragmentsFor(team Team) []Fragment {
	raw := s.ProFragments
	if team == TeamContra {
		raw = s.ContraFragments
	}
	out := make([]Fragment, 0, len(raw))
	for _, m := range raw {
		out = append(out, FragmentFromMap(m))
	}
	return out
}

// DebateConfig describes one debate to run. DebateID may be preassigned
// by callers that need to track the debate before it finishes.
type DebateConfig struct {
	DebateID       string `json:"debate_id,omitempty"`
	Topic          string `json:"topic"`
	ProPosition    string `json:"pro_position"`
	ContraPosition string `json:"contra_position"`
	MaxRounds      int    `json:"max_rounds"`
	TimeoutMinutes int    `json:"timeout_minutes"`
}

// Normalize fills defaults.
func (c *DebateConfig) Normalize() {
	if c.MaxRounds <= 0 {
		c.MaxRounds = 3
	}
	if c.TimeoutMinutes <= 0 {
		c.TimeoutMinutes = 10
	}
}

func (c DebateConfig) Validate() error {
	if c.Topic == "" {
		return fmt.Errorf("debate topic is required")
	}
	if c.ProPosition == "" || c.ContraPosition == "" {
		return fmt.Errorf("both team positions are required")
	}
	return nil
}

// LLMProvider is the contract every language model backend satisfies.
type LLMProvider interface {
	// Generate generates text using the LLM
	Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error)

	// GenerateWithTokens generates text and returns token usage
	GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error)

	// GetAvailableModels returns available models
	GetAvailableModels() []string

	// GetModelInfo returns information about a specific model
	GetModelInfo(model string) (ModelInfo, error)

	// CalculateCost calculates the cost for a given number of tokens
	CalculateCost(inputTokens, outputTokens int64, model string) float64
}

// ModelInfo contains information about an LLM model
type ModelInfo struct {
	Name            string  `json:"name"`
	Provider        string  `json:"provider"`
	MaxTokens       int     `json:"max_tokens"`
	Temperature     float64 `json:"temperature"`
	CostPer1KInput  float64 `json:"cost_per_1k_input"`
	CostPer1KOutput float64 `json:"cost_per_1k_output"`
}

// Searcher is the slice of the web_search contract the agents need.
type Searcher interface {
	Search(ctx context.Context, query string, sourceType models.SourceType, max int) ([]models.Result, error)
}

// CheckpointStore persists in-flight debate state between phases.
type CheckpointStore interface {
	SaveCheckpoint(ctx context.Context, state *DebateState) error
	LoadCheckpoint(ctx context.Context, debateID string) (*DebateState, error)
	DeleteCheckpoint(ctx context.Context, debateID string) error
}

// ArchiveStore persists finished debates.
type ArchiveStore interface {
	SaveDebate(ctx context.Context, state *DebateState) error
	GetDebate(ctx context.Context, debateID string) (*DebateState, error)
	ListDebates(ctx context.Context, limit int) ([]DebateState, error)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func mapString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func mapFloat(m map[string]interface{}, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func mapStrings(m map[string]interface{}, key string) []string {
	var out []string
	switch v := m[key].(type) {
	case []string:
		out = append(out, v...)
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}
