package core

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/agora/config"
	"github.com/mohammad-safakhou/agora/internal/debate/telemetry"
)

var teamRoles = []Role{RoleCientifico, RoleEconomico, RoleHistorico, RoleRefutador, RolePsicologico}

// Supervisor directs one team: it farms research out to the specialist
// agents, curates the evidence bank and composes the team's arguments.
type Supervisor struct {
	ID       string
	Team     Team
	Position string

	cfg       config.DebateConfig
	llm       LLMProvider
	model     string
	agents    []*ResearchAgent
	gate      *intervalGate
	telemetry *telemetry.Telemetry
	logger    *log.Logger

	currentRound      int
	argumentsMade     []Argument
	fragmentsBank     []Fragment
	opponentArguments []string
}

func NewSupervisor(team Team, position string, cfg config.DebateConfig, llm LLMProvider, supervisorModel, agentModel string, searcher Searcher, tele *telemetry.Telemetry) *Supervisor {
	s := &Supervisor{
		ID:        fmt.Sprintf("supervisor_%s_%s", team, uuid.New().String()[:8]),
		Team:      team,
		Position:  position,
		cfg:       cfg,
		llm:       llm,
		model:     supervisorModel,
		gate:      newIntervalGate(cfg.SupervisorMinInterval),
		telemetry: tele,
		logger:    log.New(log.Writer(), fmt.Sprintf("[SUP-%s] ", strings.ToUpper(string(team))), log.LstdFlags),
	}
	for _, role := range teamRoles {
		s.agents = append(s.agents, NewResearchAgent(role, team, cfg, llm, agentModel, searcher, tele))
	}
	return s
}

// OrchestrateResearch runs every agent in sequence with progressive
// pauses, tags the findings with the team stance, and keeps the curated
// best in the team bank. A failing agent is logged and skipped.
func (s *Supervisor) OrchestrateResearch(ctx context.Context, task string) ([]Fragment, error) {
	s.logger.Printf("coordinando investigación: %s", task)

	var all []Fragment
	for i, agent := range s.agents {
		if i > 0 {
			// 4s, 5s, 6s... at the default 3s base
			_ = sleepCtx(ctx, s.cfg.AgentDelay+time.Duration(i)*time.Second)
		}
		if ctx.Err() != nil {
			break
		}

		specialized := s.customizeTask(task, agent.Role)
		fragments, err := agent.Research(ctx, specialized)
		if err != nil {
			s.logger.Printf("agente %s falló: %v", agent.Role, err)
			continue
		}
		for j := range fragments {
			fragments[j].Team = s.Team
			fragments[j].Position = s.Position
		}
		all = append(all, fragments...)
		s.logger.Printf("agente %s: %d fragmentos", agent.Role, len(fragments))
	}

	best := s.selectBestFragments(ctx, all, task)
	s.fragmentsBank = append(s.fragmentsBank, best...)
	s.logger.Printf("investigación completada: %d fragmentos seleccionados", len(best))
	return best, ctx.Err()
}

func (s *Supervisor) customizeTask(task string, role Role) string {
	var customized string
	switch role {
	case RoleCientifico:
		customized = "Estudios científicos sobre: " + task
	case RoleEconomico:
		customized = "Análisis económico de: " + task
	case RoleHistorico:
		customized = "Historia y antecedentes de: " + task
	case RoleRefutador:
		customized = "Críticas y limitaciones de: " + task
	case RolePsicologico:
		customized = "Efectos psicológicos de: " + task
	default:
		customized = task
	}
	if s.Team == TeamPro {
		return customized + " (busca evidencia a favor)"
	}
	return customized + " (busca evidencia en contra)"
}

// selectBestFragments asks the LLM to pick the strongest complementary
// evidence from a numbered digest. Unparseable or empty selections fall
// back to the top fragments by final score.
func (s *Supervisor) selectBestFragments(ctx context.Context, all []Fragment, task string) []Fragment {
	if len(all) == 0 {
		return nil
	}
	if err := s.gate.Wait(ctx); err != nil {
		return topByScore(all, s.cfg.MaxFragmentsPerAgent)
	}

	var digest strings.Builder
	for i, f := range all {
		fmt.Fprintf(&digest, "\n%d. [%s] %s\n   Score: %.2f | Query: %s\n   Contenido: %s...\n",
			i+1, f.Source, f.Title, f.FinalScore, f.Query, truncateRunes(f.Content, 200))
	}
	summary := truncateRunes(digest.String(), 3000)

	prompt := fmt.Sprintf(`Eres el supervisor del equipo %s defendiendo: "%s"

TAREA: %s

FRAGMENTOS DISPONIBLES:
%s

Tu trabajo es seleccionar los %d MEJORES fragmentos que:
1. Sean más útiles para la posición "%s"
2. Tengan evidencia sólida y creíble
3. Se complementen entre sí para formar un argumento fuerte
4. Cubran diferentes aspectos del tema

Responde SOLO con los números de los fragmentos seleccionados, separados por comas.
Ejemplo: 1, 3, 7, 12, 15

Números seleccionados:`,
		strings.ToUpper(string(s.Team)), s.Position, task, summary, s.cfg.MaxFragmentsPerAgent, s.Position)

	response, err := s.generate(ctx, prompt)
	if err != nil {
		s.logger.Printf("selección de fragmentos falló: %v", err)
		return topByScore(all, s.cfg.MaxFragmentsPerAgent)
	}

	var selected []Fragment
	for _, idx := range parseSelection(response, len(all), s.cfg.MaxFragmentsPerAgent) {
		selected = append(selected, all[idx])
	}
	if len(selected) == 0 {
		return topByScore(all, s.cfg.MaxFragmentsPerAgent)
	}
	return selected
}

// parseSelection pulls 1-based fragment numbers out of the LLM response,
// dropping anything out of range.
func parseSelection(response string, total, max int) []int {
	var indices []int
	for _, match := range regexp.MustCompile(`\b\d+\b`).FindAllString(response, -1) {
		n, err := strconv.Atoi(match)
		if err != nil {
			continue
		}
		idx := n - 1
		if idx >= 0 && idx < total {
			indices = append(indices, idx)
		}
		if len(indices) >= max {
			break
		}
	}
	return indices
}

func topByScore(fragments []Fragment, n int) []Fragment {
	sorted := make([]Fragment, len(fragments))
	copy(sorted, fragments)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].FinalScore > sorted[j].FinalScore })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// ComposeArgument builds the team's argument for the next round using the
// given strategy. Each call advances the supervisor's round counter. LLM
// failure or a low-quality result degrades to the fallback argument.
func (s *Supervisor) ComposeArgument(ctx context.Context, fragments []Fragment, strategy Strategy, opponentArgument string) (Argument, error) {
	s.logger.Printf("construyendo argumento con estrategia %s", strategy)
	s.currentRound++

	if err := s.gate.Wait(ctx); err != nil {
		return Argument{}, err
	}

	var evidence strings.Builder
	for i, f := range fragments {
		fmt.Fprintf(&evidence, "\nEvidencia %d:\nFuente: %s\nContenido: %s...\nCredibilidad: %.2f\nURL: %s\n",
			i+1, f.Source, truncateRunes(f.Content, 300), f.CredibilityScore, f.URL)
	}

	prompt := s.buildArgumentPrompt(strategy, evidence.String(), opponentArgument)
	text, err := s.generate(ctx, prompt)
	if err != nil {
		s.logger.Printf("construcción de argumento falló: %v", err)
		return s.fallbackArgument(fragments, strategy), nil
	}
	text = strings.TrimSpace(text)
	if !validateArgument(text) {
		s.logger.Printf("argumento no pasa validación, usando fallback")
		text = s.fallbackArgumentText(fragments)
	}

	argument := Argument{
		ID:          uuid.New().String(),
		Team:        s.Team,
		Position:    s.Position,
		Content:     text,
		KeyPoints:   extractKeyPoints(text),
		Confidence:  ConfidenceFor(fragments, s.cfg.MaxFragmentsPerAgent),
		Strategy:    strategy,
		Round:       s.currentRound,
		FragmentIDs: fragmentIDs(fragments),
		Timestamp:   time.Now().UTC(),
	}
	s.argumentsMade = append(s.argumentsMade, argument)
	s.logger.Printf("argumento construido (confianza: %.2f)", argument.Confidence)
	return argument, nil
}

// RespondToOpponent records the opponent's argument, picks a response
// strategy and composes the reply from the recent evidence bank.
func (s *Supervisor) RespondToOpponent(ctx context.Context, opponentArgument string) (Argument, error) {
	s.opponentArguments = append(s.opponentArguments, opponentArgument)
	strategy := s.chooseResponseStrategy(opponentArgument)

	fragments := s.fragmentsBank
	if len(fragments) > s.cfg.MaxFragmentsPerAgent {
		fragments = fragments[len(fragments)-s.cfg.MaxFragmentsPerAgent:]
	}
	return s.ComposeArgument(ctx, fragments, strategy, opponentArgument)
}

// chooseResponseStrategy: direct attacks get a counter-attack, the
// opener gets reinforcement, late rounds turn defensive.
func (s *Supervisor) chooseResponseStrategy(opponentArgument string) Strategy {
	lower := strings.ToLower(opponentArgument)
	for _, word := range []string{"falso", "incorrecto", "error", "refutar"} {
		if strings.Contains(lower, word) {
			return StrategyCounterAttack
		}
	}
	if len(s.opponentArguments) <= 1 {
		return StrategyReinforcement
	}
	if s.currentRound >= s.cfg.MaxRounds-1 {
		return StrategyDefensive
	}
	return StrategyCounterAttack
}

func (s *Supervisor) buildArgumentPrompt(strategy Strategy, evidence, opponentArgument string) string {
	evidence = truncateRunes(evidence, 2000)
	base := fmt.Sprintf(`Eres un experto debatiente del equipo %s.

POSICIÓN DEL EQUIPO: %s

EVIDENCIA DISPONIBLE:
%s

RONDA: %d
ESTRATEGIA: %s
`, strings.ToUpper(string(s.Team)), s.Position, evidence, s.currentRound, strategy)

	switch strategy {
	case StrategyInitialPosition:
		return base + fmt.Sprintf(`
Construye un argumento inicial SÓLIDO que establezca claramente la posición del equipo %s.

El argumento debe:
1. Presentar la posición de manera clara y convincente
2. Usar la evidencia disponible de manera estratégica
3. Ser persuasivo y bien estructurado
4. Tener entre 200-400 palabras
5. Incluir datos específicos y fuentes cuando sea posible

Escribe un argumento poderoso:`, strings.ToUpper(string(s.Team)))
	case StrategyCounterAttack:
		return base + fmt.Sprintf(`
ARGUMENTO DEL OPONENTE A REFUTAR:
%s

Construye un CONTRAATAQUE devastador que:
1. Identifique las debilidades del argumento oponente
2. Use tu evidencia para refutarlo directamente
3. Fortalezca tu propia posición
4. Sea incisivo pero profesional
5. Tenga entre 200-400 palabras

Refuta y contraataca:`, opponentArgument)
	case StrategyDefensive:
		return base + fmt.Sprintf(`
ATAQUE RECIBIDO:
%s

Construye una DEFENSA sólida que:
1. Mantenga firme tu posición original
2. Responda a las críticas específicas
3. Use nueva evidencia para reforzar tu postura
4. Muestre por qué las objeciones no son válidas
5. Tenga entre 200-400 palabras

Defiende tu posición:`, opponentArgument)
	case StrategyReinforcement:
		return base + `
Construye un argumento de REFUERZO que:
1. Amplíe y profundice tu posición anterior
2. Agregue nueva evidencia y perspectivas
3. Fortalezca los puntos más débiles
4. Anticipe posibles contraataques
5. Tenga entre 200-400 palabras

Refuerza tu posición:`
	default: // closing
		return base + `
Construye un argumento de CIERRE que:
1. Resuma los puntos más fuertes de tu posición
2. Muestre por qué tu equipo ha ganado el debate
3. Deje una impresión final poderosa
4. Sea conciso pero impactante
5. Tenga entre 150-300 palabras

Cierra con fuerza:`
	}
}

// validateArgument rejects short, template-heavy or unsubstantial text.
func validateArgument(text string) bool {
	if len(strings.TrimSpace(text)) < 100 {
		return false
	}
	lower := strings.ToLower(text)
	templateCount := 0
	for _, phrase := range []string{
		"basándose en la evidencia disponible",
		"según los datos mostrados",
		"el equipo sostiene que",
	} {
		if strings.Contains(lower, phrase) {
			templateCount++
		}
	}
	if templateCount > 2 {
		return false
	}
	substantial := 0
	for _, sentence := range strings.Split(text, ".") {
		if len(strings.TrimSpace(sentence)) > 20 {
			substantial++
		}
	}
	return substantial >= 3
}

var keyPointPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?m)(?:^|\n)\s*(?:\d+\.|•|-)\s*([^.\n]+[.\n])`),
	regexp.MustCompile(`(?i)(?:Primero|Segundo|Tercero|Además|Por último|Finalmente)[,:]?\s*([^.\n]+)`),
	regexp.MustCompile(`(?i)(?:Es importante|Cabe destacar|Debemos considerar)[^.]*?([^.\n]+)`),
}

// extractKeyPoints mines enumerations, sequential connectors and emphatic
// phrases; without matches it falls back to the first substantial
// sentences. At most five points.
func extractKeyPoints(text string) []string {
	var points []string
	for _, pattern := range keyPointPatterns {
		for _, match := range pattern.FindAllStringSubmatch(text, -1) {
			point := strings.TrimSpace(match[1])
			if len(point) > 20 {
				points = append(points, point)
			}
		}
	}
	if len(points) == 0 {
		sentences := strings.Split(text, ".")
		limit := 3
		if len(sentences) < limit {
			limit = len(sentences)
		}
		for _, sentence := range sentences[:limit] {
			if s := strings.TrimSpace(sentence); len(s) > 20 {
				points = append(points, s)
			}
		}
	}
	if len(points) > 5 {
		points = points[:5]
	}
	return points
}

func (s *Supervisor) fallbackArgumentText(fragments []Fragment) string {
	if len(fragments) == 0 {
		return fmt.Sprintf("El equipo %s mantiene que %s. Esta posición se basa en un análisis exhaustivo del tema.", s.Team, s.Position)
	}
	best := fragments[0]
	for _, f := range fragments[1:] {
		if f.FinalScore > best.FinalScore {
			best = f
		}
	}
	content := truncateRunes(best.Content, 200)
	return fmt.Sprintf(`El equipo %s sostiene firmemente que %s.

La evidencia recopilada respalda esta posición. Particularmente destacamos información de %s: %s...

Con base en %d fuentes especializadas, consideramos que nuestros argumentos tienen fundamento sólido.`,
		s.Team, s.Position, best.Source, content, len(fragments))
}

// fallbackArgument is the degraded-mode argument: fixed key points and a
// 0.6 confidence so the debate can always continue.
func (s *Supervisor) fallbackArgument(fragments []Fragment, strategy Strategy) Argument {
	argument := Argument{
		ID:          uuid.New().String(),
		Team:        s.Team,
		Position:    s.Position,
		Content:     s.fallbackArgumentText(fragments),
		KeyPoints:   []string{"Evidencia de fuentes especializadas", "Posición basada en datos"},
		Confidence:  0.6,
		Strategy:    strategy,
		Round:       s.currentRound,
		FragmentIDs: fragmentIDs(fragments),
		Timestamp:   time.Now().UTC(),
	}
	s.argumentsMade = append(s.argumentsMade, argument)
	return argument
}

// TeamStatus reports the supervisor's counters for telemetry and the API.
func (s *Supervisor) TeamStatus() map[string]interface{} {
	return map[string]interface{}{
		"supervisor_id":      s.ID,
		"team":               string(s.Team),
		"position":           s.Position,
		"current_round":      s.currentRound,
		"arguments_made":     len(s.argumentsMade),
		"fragments_bank":     len(s.fragmentsBank),
		"opponent_arguments": len(s.opponentArguments),
		"agents":             len(s.agents),
	}
}

// FragmentsBank returns a copy of the accumulated evidence.
func (s *Supervisor) FragmentsBank() []Fragment {
	out := make([]Fragment, len(s.fragmentsBank))
	copy(out, s.fragmentsBank)
	return out
}

func (s *Supervisor) generate(ctx context.Context, prompt string) (string, error) {
	response, inTokens, outTokens, err := s.llm.GenerateWithTokens(ctx, prompt, s.model, nil)
	if err != nil {
		return "", err
	}
	s.telemetry.RecordLLMUsage(s.model, inTokens, outTokens, s.llm.CalculateCost(inTokens, outTokens, s.model))
	return response, nil
}

func fragmentIDs(fragments []Fragment) []string {
	ids := make([]string, len(fragments))
	for i, f := range fragments {
		ids[i] = f.ID
	}
	return ids
}
