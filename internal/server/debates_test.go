package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/agora/config"
	"github.com/mohammad-safakhou/agora/internal/debate/core"
	"github.com/mohammad-safakhou/agora/tools/web_search/models"
)

// failingLLM errors on every call, driving the debate through its fallback
// paths so handler tests finish instantly.
type failingLLM struct{}

func (failingLLM) Generate(ctx context.Context, prompt, model string, options map[string]interface{}) (string, error) {
	return "", fmt.Errorf("llm unavailable")
}

func (failingLLM) GenerateWithTokens(ctx context.Context, prompt, model string, options map[string]interface{}) (string, int64, int64, error) {
	return "", 0, 0, fmt.Errorf("llm unavailable")
}

func (failingLLM) GetAvailableModels() []string { return nil }

func (failingLLM) GetModelInfo(model string) (core.ModelInfo, error) {
	return core.ModelInfo{}, fmt.Errorf("unknown model")
}

func (failingLLM) CalculateCost(inputTokens, outputTokens int64, model string) float64 { return 0 }

type emptySearcher struct{}

func (emptySearcher) Search(ctx context.Context, query string, sourceType models.SourceType, max int) ([]models.Result, error) {
	return nil, nil
}

func testHandler() *DebatesHandler {
	return &DebatesHandler{
		Cfg: &config.Config{
			General: config.GeneralConfig{Environment: "testing"},
			Debate: config.DebateConfig{
				MaxRounds:            1,
				MaxFragmentsPerAgent: 5,
				MaxQueriesPerAgent:   1,
				MaxResultsPerQuery:   1,
				MinFragmentScore:     0.6,
				SimilarityThreshold:  0.85,
				TieMargin:            0.1,
				TimeoutMinutes:       1,
			},
			LLM: config.LLMConfig{Routing: config.LLMRoutingConfig{Supervisors: "m", Agents: "m"}},
		},
		LLM:      failingLLM{},
		Searcher: emptySearcher{},
		Logger:   log.New(log.Writer(), "[DEBATES] ", log.LstdFlags),
		finished: map[string]*core.DebateState{},
	}
}

func TestStartDebateValidation(t *testing.T) {
	h := testHandler()
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/api/debates", strings.NewReader(`{"topic":"solo tema"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	err := h.start(e.NewContext(req, rec))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("missing positions should be a 400, got %v", err)
	}
}

func TestStartAndGetDebate(t *testing.T) {
	h := testHandler()
	e := echo.New()

	body := `{"topic":"energía solar","pro_position":"a favor","contra_position":"en contra","max_rounds":1}`
	req := httptest.NewRequest(http.MethodPost, "/api/debates", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if err := h.start(e.NewContext(req, rec)); err != nil {
		t.Fatalf("start: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start status = %d, want 202", rec.Code)
	}

	var accepted struct {
		DebateID string `json:"debate_id"`
		Status   string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &accepted); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if accepted.DebateID == "" || accepted.Status != "running" {
		t.Fatalf("unexpected accept payload: %+v", accepted)
	}

	// the stubbed debate finishes quickly; poll the handler until it does
	deadline := time.Now().Add(10 * time.Second)
	for {
		req = httptest.NewRequest(http.MethodGet, "/api/debates/"+accepted.DebateID, nil)
		rec = httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues(accepted.DebateID)
		if err := h.get(c); err != nil {
			if he, ok := err.(*echo.HTTPError); ok && he.Code == http.StatusNotFound {
				// still running with no checkpoint store wired
				if time.Now().After(deadline) {
					t.Fatalf("debate never finished")
				}
				time.Sleep(50 * time.Millisecond)
				continue
			}
			t.Fatalf("get: %v", err)
		}
		var payload struct {
			Status string            `json:"status"`
			State  core.DebateState  `json:"state"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decoding state: %v", err)
		}
		if payload.Status == "finished" {
			if payload.State.Winner == "" {
				t.Fatalf("finished debate should have a winner")
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("debate never finished: %+v", payload)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestGetUnknownDebate(t *testing.T) {
	h := testHandler()
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/api/debates/nope", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("nope")
	err := h.get(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("unknown debate should be a 404, got %v", err)
	}
}

func TestListDebatesWithoutArchive(t *testing.T) {
	h := testHandler()
	e := echo.New()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/debates", nil)
	if err := h.list(e.NewContext(req, rec)); err != nil {
		t.Fatalf("list: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("no archive should list empty, got %s", rec.Body.String())
	}
}

func TestSearchEvidence(t *testing.T) {
	h := testHandler()
	e := echo.New()

	fragment := core.NewFragment(
		"los paneles solares redujeron su costo durante la última década",
		"iea", "https://iea.example/1", 0.9, 0.9, 0.1, core.RoleEconomico, "costos")
	fragment.Team = core.TeamPro
	h.finished["done"] = &core.DebateState{
		DebateID:     "done",
		Winner:       core.WinnerPro,
		ProFragments: []map[string]interface{}{fragment.ToMap()},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/debates/done/evidence?q=paneles+solares", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("done")
	if err := h.searchEvidence(c); err != nil {
		t.Fatalf("evidence: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("evidence status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), fragment.ID) {
		t.Fatalf("expected the fragment in the hits: %s", rec.Body.String())
	}

	// missing query parameter
	req = httptest.NewRequest(http.MethodGet, "/api/debates/done/evidence", nil)
	c = e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("done")
	err := h.searchEvidence(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("missing q should be a 400, got %v", err)
	}
}
