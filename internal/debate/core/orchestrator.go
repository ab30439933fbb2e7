package core

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mohammad-safakhou/agora/config"
	"github.com/mohammad-safakhou/agora/internal/debate/telemetry"
)

// Orchestrator drives the fixed debate graph:
//
//	setup → research_pro → research_contra → pro_argument →
//	contra_argument → evaluate_round → (loop to pro_argument | finalize)
//
// Research is a one-time setup phase; later rounds argue over the
// evidence banks it built.
//
// Every node appends to the state's error log instead of failing; a
// debate always finishes with a winner.
type Orchestrator struct {
	cfg       *config.Config
	llm       LLMProvider
	searcher  Searcher
	telemetry *telemetry.Telemetry
	logger    *log.Logger
	tracer    trace.Tracer

	checkpoints CheckpointStore
	archive     ArchiveStore

	supervisorPro    *Supervisor
	supervisorContra *Supervisor
}

// Option wires optional dependencies.
type Option func(*Orchestrator)

func WithCheckpointStore(store CheckpointStore) Option {
	return func(o *Orchestrator) { o.checkpoints = store }
}

func WithArchiveStore(store ArchiveStore) Option {
	return func(o *Orchestrator) { o.archive = store }
}

func NewOrchestrator(cfg *config.Config, llm LLMProvider, searcher Searcher, tele *telemetry.Telemetry, logger *log.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	}
	o := &Orchestrator{
		cfg:       cfg,
		llm:       llm,
		searcher:  searcher,
		telemetry: tele,
		logger:    logger,
		tracer:    otel.Tracer("debate-orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunDebate executes one full debate. Failures degrade, never escape: an
// unusable configuration or an expired deadline still yields a state with
// a non-empty winner.
func (o *Orchestrator) RunDebate(ctx context.Context, debateCfg DebateConfig) *DebateState {
	debateCfg.Normalize()
	state := newInitialState(debateCfg)
	started := time.Now()

	ctx, span := o.tracer.Start(ctx, "debate.run", trace.WithAttributes(
		attribute.String("debate.id", state.DebateID),
		attribute.String("debate.topic", debateCfg.Topic),
		attribute.Int("debate.max_rounds", debateCfg.MaxRounds),
	))
	defer span.End()

	if err := debateCfg.Validate(); err != nil {
		o.logger.Printf("configuración inválida: %v", err)
		state.AddError("setup", err)
		state.Winner = WinnerError
		state.FinalScores = map[string]float64{"pro_average": 0, "contra_average": 0}
		state.DebateSummary = "Error en configuración del debate"
		span.SetStatus(codes.Error, err.Error())
		return state
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(debateCfg.TimeoutMinutes)*time.Minute)
	defer cancel()

	o.logger.Printf("iniciando debate: %s", debateCfg.Topic)
	o.setupNode(ctx, state)
	o.checkpoint(ctx, state)

	o.researchProNode(ctx, state)
	o.checkpoint(ctx, state)
	o.researchContraNode(ctx, state)
	o.checkpoint(ctx, state)

	for {
		o.proArgumentNode(ctx, state)
		o.checkpoint(ctx, state)
		o.contraArgumentNode(ctx, state)
		o.checkpoint(ctx, state)
		o.evaluateRoundNode(ctx, state)
		o.checkpoint(ctx, state)
		o.telemetry.RecordRound()

		if ctx.Err() != nil {
			state.AddError("timeout", ctx.Err())
			break
		}
		if !o.shouldContinue(state) {
			break
		}
	}

	o.finalizeNode(state)
	o.checkpoint(context.WithoutCancel(ctx), state)
	o.archiveDebate(context.WithoutCancel(ctx), state)

	o.telemetry.RecordDebate(state.DebateID, state.Winner, state.CurrentRound, len(state.Errors), time.Since(started))
	span.SetAttributes(attribute.String("debate.winner", state.Winner))
	o.logger.Printf("debate finalizado en %s - ganador: %s", time.Since(started).Round(time.Second), state.Winner)
	return state
}

func newInitialState(cfg DebateConfig) *DebateState {
	now := time.Now().UTC()
	debateID := cfg.DebateID
	if debateID == "" {
		debateID = uuid.New().String()
	}
	return &DebateState{
		DebateID:        debateID,
		Topic:           cfg.Topic,
		ProPosition:     cfg.ProPosition,
		ContraPosition:  cfg.ContraPosition,
		CurrentRound:    0,
		MaxRounds:       cfg.MaxRounds,
		DebatePhase:     PhaseInvestigacionInicial,
		ProArguments:    []map[string]interface{}{},
		ContraArguments: []map[string]interface{}{},
		ProFragments:    []map[string]interface{}{},
		ContraFragments: []map[string]interface{}{},
		FinalScores:     map[string]float64{},
		StartTime:       now,
		CurrentTime:     now,
		Errors:          []string{},
	}
}

// setupNode builds both supervisors and resets the state for round zero.
func (o *Orchestrator) setupNode(ctx context.Context, state *DebateState) {
	_, span := o.tracer.Start(ctx, "debate.setup")
	defer span.End()

	routing := o.cfg.LLM.Routing
	// Supervisors see this debate's round limit, not the config default.
	teamCfg := o.cfg.Debate
	teamCfg.MaxRounds = state.MaxRounds
	o.supervisorPro = NewSupervisor(TeamPro, state.ProPosition, teamCfg, o.llm, routing.Supervisors, routing.Agents, o.searcher, o.telemetry)
	o.supervisorContra = NewSupervisor(TeamContra, state.ContraPosition, teamCfg, o.llm, routing.Supervisors, routing.Agents, o.searcher, o.telemetry)

	state.ProSupervisorID = o.supervisorPro.ID
	state.ContraSupervisorID = o.supervisorContra.ID
	state.DebatePhase = PhaseInvestigacionInicial
	state.CurrentTime = time.Now().UTC()

	o.logger.Printf("debate configurado: %s", state.Topic)
	o.logger.Printf("  PRO: %s", state.ProPosition)
	o.logger.Printf("  CONTRA: %s", state.ContraPosition)
}

func (o *Orchestrator) researchProNode(ctx context.Context, state *DebateState) {
	ctx, span := o.tracer.Start(ctx, "debate.research_pro")
	defer span.End()
	o.logger.Printf("equipo PRO iniciando investigación")

	task := fmt.Sprintf("Investiga evidencia que apoye: %s", state.ProPosition)
	fragments, err := o.supervisorPro.OrchestrateResearch(ctx, task)
	if err != nil {
		state.AddError("research_pro", err)
		o.telemetry.RecordError("research_pro")
		span.SetStatus(codes.Error, err.Error())
	}
	state.ProFragments = fragmentsToMaps(fragments)
	state.CurrentTime = time.Now().UTC()
	span.SetAttributes(attribute.Int("fragments", len(fragments)))
}

func (o *Orchestrator) researchContraNode(ctx context.Context, state *DebateState) {
	ctx, span := o.tracer.Start(ctx, "debate.research_contra")
	defer span.End()
	o.logger.Printf("equipo CONTRA iniciando investigación")

	// The opposing team researches refutations of the PRO position.
	task := fmt.Sprintf("Investiga evidencia que refute: %s", state.ProPosition)
	fragments, err := o.supervisorContra.OrchestrateResearch(ctx, task)
	if err != nil {
		state.AddError("research_contra", err)
		o.telemetry.RecordError("research_contra")
		span.SetStatus(codes.Error, err.Error())
	}
	state.ContraFragments = fragmentsToMaps(fragments)
	state.CurrentTime = time.Now().UTC()
	span.SetAttributes(attribute.Int("fragments", len(fragments)))
}

// proArgumentNode is the only place the round counter advances.
func (o *Orchestrator) proArgumentNode(ctx context.Context, state *DebateState) {
	ctx, span := o.tracer.Start(ctx, "debate.pro_argument")
	defer span.End()

	state.CurrentRound++
	o.logger.Printf("equipo PRO argumentando (ronda %d)", state.CurrentRound)

	fragments := state.FragmentsFor(TeamPro)
	strategy := StrategyInitialPosition
	opponent := ""
	if state.CurrentRound > 1 {
		strategy = StrategyCounterAttack
		opponent = state.LastContraArgument
	}

	argument, err := o.supervisorPro.ComposeArgument(ctx, fragments, strategy, opponent)
	if err != nil {
		state.AddError("pro_argument", err)
		o.telemetry.RecordError("pro_argument")
		span.SetStatus(codes.Error, err.Error())
		argument = o.nodeFallbackArgument(TeamPro, fmt.Sprintf("El equipo PRO mantiene que %s", state.ProPosition), state.CurrentRound)
	}
	state.ProArguments = append(state.ProArguments, argument.ToMap())
	state.LastProArgument = argument.Content
	state.CurrentTime = time.Now().UTC()
	span.SetAttributes(attribute.Float64("confidence", argument.Confidence))
}

func (o *Orchestrator) contraArgumentNode(ctx context.Context, state *DebateState) {
	ctx, span := o.tracer.Start(ctx, "debate.contra_argument")
	defer span.End()
	o.logger.Printf("equipo CONTRA argumentando (ronda %d)", state.CurrentRound)

	fragments := state.FragmentsFor(TeamContra)
	strategy := StrategyInitialPosition
	if state.CurrentRound > 1 {
		strategy = StrategyCounterAttack
	}
	// CONTRA always answers the latest PRO argument.
	argument, err := o.supervisorContra.ComposeArgument(ctx, fragments, strategy, state.LastProArgument)
	if err != nil {
		state.AddError("contra_argument", err)
		o.telemetry.RecordError("contra_argument")
		span.SetStatus(codes.Error, err.Error())
		argument = o.nodeFallbackArgument(TeamContra, fmt.Sprintf("El equipo CONTRA sostiene que %s", state.ContraPosition), state.CurrentRound)
	}
	state.ContraArguments = append(state.ContraArguments, argument.ToMap())
	state.LastContraArgument = argument.Content
	state.CurrentTime = time.Now().UTC()
	span.SetAttributes(attribute.Float64("confidence", argument.Confidence))
}

// nodeFallbackArgument keeps the debate moving when a supervisor could
// not produce anything at all.
func (o *Orchestrator) nodeFallbackArgument(team Team, content string, round int) Argument {
	return Argument{
		ID:         uuid.New().String(),
		Team:       team,
		Content:    content,
		KeyPoints:  []string{},
		Confidence: 0.6,
		Strategy:   StrategyFallback,
		Round:      round,
		Timestamp:  time.Now().UTC(),
	}
}

// evaluateRoundNode advances the debate phase from the round counters.
func (o *Orchestrator) evaluateRoundNode(ctx context.Context, state *DebateState) {
	_, span := o.tracer.Start(ctx, "debate.evaluate_round")
	defer span.End()
	o.logger.Printf("evaluando ronda %d", state.CurrentRound)

	switch {
	case state.CurrentRound >= state.MaxRounds:
		state.DebatePhase = PhaseCierre
	case state.CurrentRound >= state.MaxRounds-1:
		state.DebatePhase = PhaseProfundizacion
	default:
		state.DebatePhase = PhaseArgumentacion
	}

	proConfidence, contraConfidence := 0.0, 0.0
	if n := len(state.ProArguments); n > 0 {
		proConfidence = mapFloat(state.ProArguments[n-1], "confidence")
	}
	if n := len(state.ContraArguments); n > 0 {
		contraConfidence = mapFloat(state.ContraArguments[n-1], "confidence")
	}
	o.logger.Printf("confianzas actuales - PRO: %.2f, CONTRA: %.2f", proConfidence, contraConfidence)
	state.CurrentTime = time.Now().UTC()
}

// shouldContinue is the circuit breaker, checked in order: round limit,
// error accumulation, argument starvation after round one, and evidence
// starvation on both sides.
func (o *Orchestrator) shouldContinue(state *DebateState) bool {
	if state.CurrentRound >= state.MaxRounds {
		o.logger.Printf("límite de rondas alcanzado (%d)", state.MaxRounds)
		return false
	}
	if len(state.Errors) > 5 {
		o.logger.Printf("demasiados errores (%d), finalizando", len(state.Errors))
		return false
	}
	if state.CurrentRound > 1 {
		if len(state.ProArguments) == 0 || len(state.ContraArguments) == 0 {
			o.logger.Printf("no se están generando argumentos, finalizando")
			return false
		}
	}
	if len(state.ProFragments) < 2 && len(state.ContraFragments) < 2 {
		o.logger.Printf("evidencia insuficiente, finalizando")
		return false
	}
	o.logger.Printf("continuando a ronda %d", state.CurrentRound+1)
	return true
}

// finalizeNode computes average confidences, applies the tie margin and
// writes the summary. It uses no LLM so it cannot fail into a missing
// winner.
func (o *Orchestrator) finalizeNode(state *DebateState) {
	o.logger.Printf("finalizando debate y evaluando resultados")

	proAvg := averageConfidence(state.ProArguments)
	contraAvg := averageConfidence(state.ContraArguments)

	margin := o.cfg.Debate.TieMargin
	var winner string
	switch {
	case abs(proAvg-contraAvg) < margin:
		winner = WinnerEmpate
	case proAvg > contraAvg:
		winner = WinnerPro
	default:
		winner = WinnerContra
	}

	state.Winner = winner
	state.FinalScores = map[string]float64{
		"pro_average":            proAvg,
		"contra_average":         contraAvg,
		"pro_total_arguments":    float64(len(state.ProArguments)),
		"contra_total_arguments": float64(len(state.ContraArguments)),
	}
	state.DebatePhase = PhaseCierre
	state.CurrentTime = time.Now().UTC()
	state.DebateSummary = debateSummary(state, proAvg, contraAvg)

	o.logger.Printf("ganador: %s (PRO %.2f vs CONTRA %.2f)", winner, proAvg, contraAvg)
}

func averageConfidence(arguments []map[string]interface{}) float64 {
	if len(arguments) == 0 {
		return 0
	}
	var sum float64
	for _, arg := range arguments {
		sum += mapFloat(arg, "confidence")
	}
	return sum / float64(len(arguments))
}

func debateSummary(state *DebateState, proAvg, contraAvg float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, `RESUMEN DEL DEBATE: %s

POSICIONES:
PRO: %s
CONTRA: %s

ESTADÍSTICAS:
- Rondas completadas: %d
- Argumentos PRO: %d
- Argumentos CONTRA: %d
- Fragmentos PRO: %d
- Fragmentos CONTRA: %d

PUNTUACIONES:
- PRO promedio: %.2f
- CONTRA promedio: %.2f
- Ganador: %s

DURACIÓN:
- Inicio: %s
- Fin: %s`,
		state.Topic, state.ProPosition, state.ContraPosition,
		state.CurrentRound, len(state.ProArguments), len(state.ContraArguments),
		len(state.ProFragments), len(state.ContraFragments),
		proAvg, contraAvg, state.Winner,
		state.StartTime.Format(time.RFC3339), state.CurrentTime.Format(time.RFC3339))
	if len(state.Errors) > 0 {
		fmt.Fprintf(&b, "\n\nERRORES ENCONTRADOS: %d", len(state.Errors))
	}
	return b.String()
}

func (o *Orchestrator) checkpoint(ctx context.Context, state *DebateState) {
	if o.checkpoints == nil {
		return
	}
	if err := o.checkpoints.SaveCheckpoint(ctx, state); err != nil {
		o.logger.Printf("checkpoint falló: %v", err)
	}
}

func (o *Orchestrator) archiveDebate(ctx context.Context, state *DebateState) {
	if o.archive == nil {
		return
	}
	if err := o.archive.SaveDebate(ctx, state); err != nil {
		o.logger.Printf("archivado falló: %v", err)
	}
}

func fragmentsToMaps(fragments []Fragment) []map[string]interface{} {
	out := make([]map[string]interface{}, len(fragments))
	for i, f := range fragments {
		out[i] = f.ToMap()
	}
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
