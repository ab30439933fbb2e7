package core

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/agora/config"
	"github.com/mohammad-safakhou/agora/internal/debate/telemetry"
	"github.com/mohammad-safakhou/agora/tools/web_search/models"
)

// specialty configures how a role searches and judges sources.
type specialty struct {
	searchType       models.SourceType
	keywords         []string
	preferredSources []string
	biasIndicators   []string
	queryTemplates   []string
}

var specialties = map[Role]specialty{
	RoleCientifico: {
		searchType:       models.SourceAcademic,
		keywords:         []string{"estudio", "investigación", "científico", "evidencia", "datos", "análisis"},
		preferredSources: []string{"pubmed", "scholar", "universidad", "instituto", "journal"},
		biasIndicators:   []string{"promoción", "marketing", "opinión personal", "blog personal"},
		queryTemplates: []string{
			"estudios científicos %s",
			"investigación médica %s",
			"evidencia científica %s",
			"datos clínicos %s",
			"metaanálisis %s",
		},
	},
	RoleEconomico: {
		searchType:       models.SourceEconomic,
		keywords:         []string{"económico", "financiero", "costo", "beneficio", "impacto", "mercado"},
		preferredSources: []string{"banco", "ministerio", "estadística", "económico", "financiero"},
		biasIndicators:   []string{"promoción comercial", "publicidad", "venta"},
		queryTemplates: []string{
			"impacto económico %s",
			"análisis financiero %s",
			"costos beneficios %s",
			"mercado %s",
			"estadísticas económicas %s",
		},
	},
	RoleHistorico: {
		searchType:       models.SourceGeneral,
		keywords:         []string{"histórico", "historia", "antecedentes", "origen", "evolución", "pasado"},
		preferredSources: []string{"museo", "archivo", "historia", "académico", "universidad"},
		biasIndicators:   []string{"revisión histórica", "interpretación moderna"},
		queryTemplates: []string{
			"historia %s",
			"antecedentes históricos %s",
			"evolución %s",
			"origen %s",
			"contexto histórico %s",
		},
	},
	RoleRefutador: {
		searchType:       models.SourceGeneral,
		keywords:         []string{"crítica", "problema", "limitación", "contraargumento", "debilidad"},
		preferredSources: []string{"crítica", "análisis", "revisión", "oposición"},
		biasIndicators:   []string{"defensa absoluta", "sin críticas"},
		queryTemplates: []string{
			"críticas %s",
			"problemas %s",
			"limitaciones %s",
			"contraargumentos %s",
			"desventajas %s",
		},
	},
	RolePsicologico: {
		searchType:       models.SourceGeneral,
		keywords:         []string{"psicológico", "mental", "emocional", "comportamiento", "social", "cognitivo"},
		preferredSources: []string{"psicología", "mental", "comportamiento", "social"},
		biasIndicators:   []string{"autoayuda", "coaching", "opinión personal"},
		queryTemplates: []string{
			"efectos psicológicos %s",
			"impacto mental %s",
			"comportamiento %s",
			"aspectos sociales %s",
			"efectos cognitivos %s",
		},
	},
}

func specialtyFor(role Role) specialty {
	if s, ok := specialties[role]; ok {
		return s
	}
	return specialties[RoleCientifico]
}

// ResearchAgent turns a research task into scored evidence fragments for
// its team. Agents run sequentially; each keeps its own query history and
// rate gate.
type ResearchAgent struct {
	ID   string
	Role Role
	Team Team

	cfg       config.DebateConfig
	specialty specialty
	llm       LLMProvider
	model     string
	searcher  Searcher
	gate      *intervalGate
	telemetry *telemetry.Telemetry
	logger    *log.Logger

	queriesUsed []string
}

func NewResearchAgent(role Role, team Team, cfg config.DebateConfig, llm LLMProvider, model string, searcher Searcher, tele *telemetry.Telemetry) *ResearchAgent {
	return &ResearchAgent{
		ID:        fmt.Sprintf("%s_%s_%s", role, team, uuid.New().String()[:8]),
		Role:      role,
		Team:      team,
		cfg:       cfg,
		specialty: specialtyFor(role),
		llm:       llm,
		model:     model,
		searcher:  searcher,
		gate:      newIntervalGate(cfg.AgentMinInterval),
		telemetry: tele,
		logger:    log.New(log.Writer(), fmt.Sprintf("[AGENT %s/%s] ", role, team), log.LstdFlags),
	}
}

// Research runs the full pipeline: queries, search, evaluation, dedup,
// top-N by final score. It never fails the debate: any internal problem
// yields an empty slice and the error for the caller's log.
func (a *ResearchAgent) Research(ctx context.Context, task string) ([]Fragment, error) {
	if len(strings.TrimSpace(task)) < 10 {
		a.logger.Printf("tarea demasiado corta, se omite: %q", task)
		return nil, nil
	}
	started := time.Now()

	queries, err := a.GenerateQueries(ctx, task)
	if err != nil {
		return nil, err
	}
	fragments := a.SearchAndEvaluate(ctx, queries, task)

	a.telemetry.RecordAgentRun(string(a.Role), string(a.Team), len(fragments), time.Since(started))
	a.logger.Printf("%d fragmentos válidos para la tarea", len(fragments))
	return fragments, nil
}

// GenerateQueries asks the LLM for specialty-focused queries, avoiding
// the agent's recent history. On any failure it falls back to the role's
// query templates.
func (a *ResearchAgent) GenerateQueries(ctx context.Context, task string) ([]string, error) {
	if err := a.gate.Wait(ctx); err != nil {
		return nil, err
	}

	recent := a.queriesUsed
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}
	prompt := fmt.Sprintf(`Eres un agente investigador especializado en %s del equipo %s.

TAREA: %s

Tu especialidad se enfoca en: %s

Genera %d queries de búsqueda específicas que:
1. Se enfoquen en tu especialidad (%s)
2. Busquen evidencia para el equipo %s
3. Sean específicas y técnicas
4. Eviten duplicados con queries anteriores

QUERIES ANTERIORES (no repetir):
%s

Formato de respuesta:
1. query específica aquí
2. otra query específica aquí

Solo responde con las queries numeradas, sin explicaciones adicionales.`,
		a.Role, a.Team, task, strings.Join(a.specialty.keywords, ", "),
		a.cfg.MaxQueriesPerAgent, a.Role, a.Team, strings.Join(recent, "\n"))

	queries := a.fallbackQueries(task)
	response, err := a.generate(ctx, prompt)
	if err != nil {
		a.logger.Printf("generación de queries falló, usando plantillas: %v", err)
	} else if parsed := parseQueryList(response); len(parsed) > 0 {
		queries = parsed
	}

	if len(queries) > a.cfg.MaxQueriesPerAgent {
		queries = queries[:a.cfg.MaxQueriesPerAgent]
	}
	a.queriesUsed = append(a.queriesUsed, queries...)
	a.logger.Printf("generadas %d queries", len(queries))
	return queries, nil
}

// parseQueryList extracts numbered queries: lines with a digit in the
// first three characters, stripped of the "N." prefix, longer than 10
// characters.
func parseQueryList(response string) []string {
	var queries []string
	for _, line := range strings.Split(strings.TrimSpace(response), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !hasDigitPrefix(line) {
			continue
		}
		query := line
		if _, rest, found := strings.Cut(line, "."); found {
			query = strings.TrimSpace(rest)
		}
		if len(query) > 10 {
			queries = append(queries, query)
		}
	}
	return queries
}

func hasDigitPrefix(line string) bool {
	limit := 3
	if len(line) < limit {
		limit = len(line)
	}
	for _, r := range line[:limit] {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}

func (a *ResearchAgent) fallbackQueries(task string) []string {
	topic := strings.ToLower(task)
	var queries []string
	for _, tmpl := range a.specialty.queryTemplates {
		queries = append(queries, fmt.Sprintf(tmpl, topic))
	}
	if len(queries) > a.cfg.MaxQueriesPerAgent {
		queries = queries[:a.cfg.MaxQueriesPerAgent]
	}
	return queries
}

// SearchAndEvaluate executes the queries with progressive pauses, turns
// results into evaluated fragments, deduplicates and ranks them. A failed
// query is skipped, not fatal.
func (a *ResearchAgent) SearchAndEvaluate(ctx context.Context, queries []string, task string) []Fragment {
	var all []Fragment
	for i, query := range queries {
		if i > 0 {
			// progressive pause: base + step per query index
			_ = sleepCtx(ctx, a.cfg.QueryPauseBase+time.Duration(i)*a.cfg.QueryPauseStep)
		}
		if ctx.Err() != nil {
			break
		}

		results, err := a.searcher.Search(ctx, query, a.specialty.searchType, a.cfg.MaxResultsPerQuery)
		a.telemetry.RecordSearch(query, len(results), err != nil)
		if err != nil {
			a.logger.Printf("búsqueda fallida %q: %v", query, err)
			continue
		}

		for j, result := range results {
			if j > 0 {
				_ = sleepCtx(ctx, a.cfg.EvaluationPause)
			}
			fragment, err := a.evaluateResult(ctx, result, query)
			if err != nil {
				a.logger.Printf("evaluación fallida (%s): %v", result.Title, err)
				continue
			}
			if fragment != nil {
				all = append(all, *fragment)
			}
		}
	}

	unique := a.removeDuplicates(all)
	sort.SliceStable(unique, func(i, j int) bool { return unique[i].FinalScore > unique[j].FinalScore })
	if len(unique) > a.cfg.MaxFragmentsPerAgent {
		unique = unique[:a.cfg.MaxFragmentsPerAgent]
	}
	return unique
}

// evaluateResult scores one search result with the LLM. Returns nil when
// the result is rejected (thin content, unparseable scores, below the
// minimum final score).
func (a *ResearchAgent) evaluateResult(ctx context.Context, result models.Result, query string) (*Fragment, error) {
	if len(strings.TrimSpace(result.Content)) < 50 {
		return nil, nil
	}
	if err := a.gate.Wait(ctx); err != nil {
		return nil, err
	}

	content := truncateRunes(result.Content, 500)
	prompt := fmt.Sprintf(`Eres un experto en %s evaluando información para el equipo %s.

FRAGMENTO A EVALUAR:
Título: %s
Fuente: %s
Contenido: %s...
URL: %s

Evalúa este fragmento en 3 aspectos (responde solo con números 0.0-1.0):

1. RELEVANCIA (0.0-1.0): ¿Qué tan relevante es para %s y útil para el equipo %s?
2. CREDIBILIDAD (0.0-1.0): ¿Qué tan confiable es la fuente? (académico=1.0, blog personal=0.3)
3. SESGO (0.0-1.0): ¿Qué tan sesgado está? (0.0=neutral, 1.0=muy sesgado hacia una posición)

Después explica brevemente por qué elegiste estos scores.

Formato:
RELEVANCIA: 0.X
CREDIBILIDAD: 0.X
SESGO: 0.X
RAZONAMIENTO: explicación breve`,
		a.Role, a.Team, result.Title, result.Source, content, result.URL, a.Role, a.Team)

	response, err := a.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	relevance, credibility, bias, reasoning, ok := parseEvaluation(response)
	if !ok {
		a.logger.Printf("scores no parseables para: %s", result.Title)
		return nil, nil
	}

	fragment := NewFragment(result.Content, result.Source, result.URL, relevance, credibility, bias, a.Role, query)
	fragment.Title = result.Title
	fragment.Reasoning = reasoning
	if fragment.FinalScore < a.cfg.MinFragmentScore {
		return nil, nil
	}
	return &fragment, nil
}

// parseEvaluation reads the RELEVANCIA/CREDIBILIDAD/SESGO protocol. All
// three must be present and inside [0,1] or the evaluation is rejected.
func parseEvaluation(text string) (relevance, credibility, bias float64, reasoning string, ok bool) {
	found := map[string]bool{}
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.Contains(line, "RELEVANCIA:"):
			if v, err := floatAfterColon(line); err == nil {
				relevance, found["relevancia"] = v, true
			}
		case strings.Contains(line, "CREDIBILIDAD:"):
			if v, err := floatAfterColon(line); err == nil {
				credibility, found["credibilidad"] = v, true
			}
		case strings.Contains(line, "SESGO:"):
			if v, err := floatAfterColon(line); err == nil {
				bias, found["sesgo"] = v, true
			}
		case strings.Contains(line, "RAZONAMIENTO:"):
			_, rest, _ := strings.Cut(line, ":")
			reasoning = strings.TrimSpace(rest)
		}
	}
	if !found["relevancia"] || !found["credibilidad"] || !found["sesgo"] {
		return 0, 0, 0, "", false
	}
	for _, v := range []float64{relevance, credibility, bias} {
		if v < 0 || v > 1 {
			return 0, 0, 0, "", false
		}
	}
	return relevance, credibility, bias, reasoning, true
}

func floatAfterColon(line string) (float64, error) {
	_, rest, found := strings.Cut(line, ":")
	if !found {
		return 0, fmt.Errorf("no colon in %q", line)
	}
	var v float64
	_, err := fmt.Sscanf(strings.TrimSpace(rest), "%f", &v)
	return v, err
}

// removeDuplicates drops exact URL repeats, then collapses near-identical
// content (Jaccard word overlap above the similarity threshold) keeping
// the higher-scored fragment. Running it twice changes nothing.
func (a *ResearchAgent) removeDuplicates(fragments []Fragment) []Fragment {
	seenURL := map[string]bool{}
	var kept []Fragment

	for _, f := range fragments {
		if f.URL != "" && seenURL[f.URL] {
			continue
		}
		duplicate := false
		for k := range kept {
			if contentSimilarity(f.Content, kept[k].Content) > a.cfg.SimilarityThreshold {
				if f.FinalScore > kept[k].FinalScore {
					kept[k] = f
				}
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, f)
		}
		if f.URL != "" {
			seenURL[f.URL] = true
		}
	}
	return kept
}

// contentSimilarity is Jaccard similarity over lowercase word sets.
func contentSimilarity(a, b string) float64 {
	wordsA := wordSet(a)
	wordsB := wordSet(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}
	intersection := 0
	for w := range wordsA {
		if wordsB[w] {
			intersection++
		}
	}
	union := len(wordsA) + len(wordsB) - intersection
	return float64(intersection) / float64(union)
}

// truncateRunes caps s at n characters. Prompt limits count runes, not
// bytes, so multibyte Spanish text is never cut mid-character.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func wordSet(s string) map[string]bool {
	set := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = true
	}
	return set
}

func (a *ResearchAgent) generate(ctx context.Context, prompt string) (string, error) {
	response, inTokens, outTokens, err := a.llm.GenerateWithTokens(ctx, prompt, a.model, nil)
	if err != nil {
		return "", err
	}
	a.telemetry.RecordLLMUsage(a.model, inTokens, outTokens, a.llm.CalculateCost(inTokens, outTokens, a.model))
	return response, nil
}
