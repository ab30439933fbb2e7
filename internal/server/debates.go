package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/agora/config"
	"github.com/mohammad-safakhou/agora/internal/debate/core"
	"github.com/mohammad-safakhou/agora/internal/debate/telemetry"
	"github.com/mohammad-safakhou/agora/internal/evidence"
	"github.com/mohammad-safakhou/agora/internal/store"
)

// DebatesHandler runs debates and serves their state. Each POST spawns a
// fresh orchestrator; orchestrators carry per-debate supervisors and are
// never shared across runs.
type DebatesHandler struct {
	Cfg         *config.Config
	LLM         core.LLMProvider
	Searcher    core.Searcher
	Telemetry   *telemetry.Telemetry
	Checkpoints core.CheckpointStore
	Archive     core.ArchiveStore
	Logger      *log.Logger

	mu       sync.RWMutex
	running  map[string]bool
	finished map[string]*core.DebateState
}

func (h *DebatesHandler) Register(g *echo.Group, secret []byte) {
	g.Use(withAuth(secret))
	g.POST("", h.start)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.GET("/:id/evidence", h.searchEvidence)
}

type startDebateRequest struct {
	Topic          string `json:"topic"`
	ProPosition    string `json:"pro_position"`
	ContraPosition string `json:"contra_position"`
	MaxRounds      int    `json:"max_rounds"`
	TimeoutMinutes int    `json:"timeout_minutes"`
}

func (h *DebatesHandler) start(c echo.Context) error {
	var req startDebateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	debateCfg := core.DebateConfig{
		DebateID:       uuid.New().String(),
		Topic:          req.Topic,
		ProPosition:    req.ProPosition,
		ContraPosition: req.ContraPosition,
		MaxRounds:      req.MaxRounds,
		TimeoutMinutes: req.TimeoutMinutes,
	}
	if err := debateCfg.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	h.mu.Lock()
	if h.running == nil {
		h.running = map[string]bool{}
	}
	h.running[debateCfg.DebateID] = true
	h.mu.Unlock()

	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.running, debateCfg.DebateID)
			h.mu.Unlock()
		}()
		opts := []core.Option{}
		if h.Checkpoints != nil {
			opts = append(opts, core.WithCheckpointStore(h.Checkpoints))
		}
		if h.Archive != nil {
			opts = append(opts, core.WithArchiveStore(h.Archive))
		}
		orch := core.NewOrchestrator(h.Cfg, h.LLM, h.Searcher, h.Telemetry, nil, opts...)
		state := orch.RunDebate(context.Background(), debateCfg)
		h.mu.Lock()
		h.finished[debateCfg.DebateID] = state
		h.mu.Unlock()
		h.Logger.Printf("debate %s finished, winner=%s", debateCfg.DebateID, state.Winner)
	}()

	return c.JSON(http.StatusAccepted, map[string]string{
		"debate_id": debateCfg.DebateID,
		"status":    "running",
	})
}

// lookup finds a debate's state: finished in-memory first, then the live
// checkpoint, then the archive.
func (h *DebatesHandler) lookup(ctx context.Context, id string) (*core.DebateState, bool, error) {
	h.mu.RLock()
	state, done := h.finished[id]
	isRunning := h.running[id]
	h.mu.RUnlock()
	if done {
		return state, false, nil
	}
	if h.Checkpoints != nil {
		if st, err := h.Checkpoints.LoadCheckpoint(ctx, id); err == nil {
			return st, isRunning || st.Winner == "", nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, false, err
		}
	}
	if h.Archive != nil {
		if st, err := h.Archive.GetDebate(ctx, id); err == nil {
			return st, false, nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, false, err
		}
	}
	return nil, isRunning, nil
}

func (h *DebatesHandler) get(c echo.Context) error {
	id := c.Param("id")
	state, running, err := h.lookup(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if state == nil {
		// running without a checkpoint store means there is no state to show yet
		if running {
			return c.JSON(http.StatusOK, map[string]interface{}{"status": "running"})
		}
		return echo.NewHTTPError(http.StatusNotFound, "debate not found")
	}
	status := "finished"
	if running {
		status = "running"
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": status,
		"state":  state,
	})
}

func (h *DebatesHandler) list(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if h.Archive == nil {
		return c.JSON(http.StatusOK, []core.DebateState{})
	}
	debates, err := h.Archive.ListDebates(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, debates)
}

func (h *DebatesHandler) searchEvidence(c echo.Context) error {
	id := c.Param("id")
	query := c.QueryParam("q")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q query parameter is required")
	}
	state, _, err := h.lookup(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if state == nil {
		return echo.NewHTTPError(http.StatusNotFound, "debate not found")
	}
	fragments := append(state.FragmentsFor(core.TeamPro), state.FragmentsFor(core.TeamContra)...)
	idx, err := evidence.NewIndex(fragments)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	defer idx.Close()
	n := 10
	if raw := c.QueryParam("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			n = v
		}
	}
	hits, err := idx.Search(query, n)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"debate_id": id,
		"query":     query,
		"hits":      hits,
	})
}
