package core

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/mohammad-safakhou/agora/tools/web_search/models"
)

func TestParseQueryList(t *testing.T) {
	response := `1. estudios científicos sobre energía solar
2. investigación médica sobre paneles
no es una query numerada
3. ok
10. estadísticas económicas de energía renovable`
	queries := parseQueryList(response)
	if len(queries) != 3 {
		t.Fatalf("expected 3 queries, got %d: %v", len(queries), queries)
	}
	if queries[0] != "estudios científicos sobre energía solar" {
		t.Fatalf("prefix not stripped: %q", queries[0])
	}
	// "ok" is numbered but too short to be a usable query
	for _, q := range queries {
		if q == "ok" {
			t.Fatalf("short query should be dropped")
		}
	}
}

func TestHasDigitPrefix(t *testing.T) {
	cases := map[string]bool{
		"1. query":     true,
		"12. query":    true,
		" 3) query":    true,
		"query 1":      false,
		"- query":      false,
		"":             false,
		"a1 something": true,
	}
	for line, want := range cases {
		if got := hasDigitPrefix(line); got != want {
			t.Fatalf("hasDigitPrefix(%q) = %v, want %v", line, got, want)
		}
	}
}

func TestParseEvaluation(t *testing.T) {
	text := `RELEVANCIA: 0.9
CREDIBILIDAD: 0.8
SESGO: 0.2
RAZONAMIENTO: fuente académica revisada por pares`
	rel, cred, bias, reasoning, ok := parseEvaluation(text)
	if !ok {
		t.Fatalf("expected successful parse")
	}
	if rel != 0.9 || cred != 0.8 || bias != 0.2 {
		t.Fatalf("scores = %f/%f/%f", rel, cred, bias)
	}
	if reasoning != "fuente académica revisada por pares" {
		t.Fatalf("reasoning = %q", reasoning)
	}
}

func TestParseEvaluationRejectsMissingScore(t *testing.T) {
	text := `RELEVANCIA: 0.9
SESGO: 0.2`
	if _, _, _, _, ok := parseEvaluation(text); ok {
		t.Fatalf("missing CREDIBILIDAD should reject the evaluation")
	}
}

func TestParseEvaluationRejectsOutOfRange(t *testing.T) {
	text := `RELEVANCIA: 1.9
CREDIBILIDAD: 0.8
SESGO: 0.2`
	if _, _, _, _, ok := parseEvaluation(text); ok {
		t.Fatalf("out-of-range score should reject the evaluation")
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("corto", 10); got != "corto" {
		t.Fatalf("short string should pass through, got %q", got)
	}
	// 300 runes but 600 bytes: rune count is the limit, not bytes
	long := strings.Repeat("é", 300)
	if got := truncateRunes(long, 500); got != long {
		t.Fatalf("300 runes should fit a 500-rune limit")
	}
	got := truncateRunes(strings.Repeat("ñ", 600), 500)
	if utf8.RuneCountInString(got) != 500 {
		t.Fatalf("expected 500 runes, got %d", utf8.RuneCountInString(got))
	}
	if !utf8.ValidString(got) {
		t.Fatalf("truncation produced invalid UTF-8")
	}
	if got := truncateRunes("año nuevo", 3); got != "año" {
		t.Fatalf("expected %q, got %q", "año", got)
	}
}

func TestContentSimilarity(t *testing.T) {
	if got := contentSimilarity("el gato duerme", "el gato duerme"); got != 1 {
		t.Fatalf("identical content similarity = %f, want 1", got)
	}
	if got := contentSimilarity("uno dos tres", "cuatro cinco seis"); got != 0 {
		t.Fatalf("disjoint content similarity = %f, want 0", got)
	}
	if got := contentSimilarity("", "algo"); got != 0 {
		t.Fatalf("empty content similarity = %f, want 0", got)
	}
}

func TestRemoveDuplicates(t *testing.T) {
	agent := NewResearchAgent(RoleCientifico, TeamPro, testDebateConfig(), newStubLLM(), "test-model", &stubSearcher{}, nil)

	low := NewFragment("los paneles solares reducen las emisiones de carbono de forma notable", "a", "https://a.example", 0.7, 0.7, 0.3, RoleCientifico, "q1")
	high := NewFragment("los paneles solares reducen las emisiones de carbono de forma notable", "b", "https://b.example", 0.9, 0.9, 0.1, RoleCientifico, "q2")
	distinct := NewFragment("la energía eólica presenta costos de mantenimiento elevados en zonas remotas", "c", "https://c.example", 0.8, 0.8, 0.2, RoleCientifico, "q3")
	sameURL := NewFragment("contenido completamente distinto y original acerca de otro asunto cualquiera", "a", "https://a.example", 0.8, 0.8, 0.2, RoleCientifico, "q4")

	kept := agent.removeDuplicates([]Fragment{low, high, distinct, sameURL})
	if len(kept) != 2 {
		t.Fatalf("expected 2 fragments after dedup, got %d", len(kept))
	}
	// near-identical content keeps the higher score
	if kept[0].ID != high.ID {
		t.Fatalf("dedup kept the lower-scored duplicate")
	}
	// running again changes nothing
	again := agent.removeDuplicates(kept)
	if len(again) != len(kept) {
		t.Fatalf("dedup is not idempotent: %d vs %d", len(again), len(kept))
	}
}

func TestResearchSkipsShortTask(t *testing.T) {
	llm := newStubLLM()
	agent := NewResearchAgent(RoleCientifico, TeamPro, testDebateConfig(), llm, "test-model", &stubSearcher{}, nil)

	fragments, err := agent.Research(context.Background(), "corto")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fragments != nil {
		t.Fatalf("short task should produce no fragments")
	}
	if llm.calls != 0 {
		t.Fatalf("short task should not reach the LLM")
	}
}

func TestGenerateQueriesFallsBackToTemplates(t *testing.T) {
	llm := newStubLLM() // no canned replies, every call errors
	agent := NewResearchAgent(RoleCientifico, TeamPro, testDebateConfig(), llm, "test-model", &stubSearcher{}, nil)

	queries, err := agent.GenerateQueries(context.Background(), "impacto de la energía solar")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(queries) != testDebateConfig().MaxQueriesPerAgent {
		t.Fatalf("expected %d template queries, got %d", testDebateConfig().MaxQueriesPerAgent, len(queries))
	}
	if !strings.Contains(queries[0], "impacto de la energía solar") {
		t.Fatalf("template not filled with task: %q", queries[0])
	}
}

func TestSearchAndEvaluateRejectsUnparseable(t *testing.T) {
	llm := newStubLLM().respond("FRAGMENTO A EVALUAR", "no hay puntuaciones aquí")
	searcher := &stubSearcher{results: []models.Result{
		{Title: "T", Content: strings.Repeat("contenido relevante ", 10), URL: "https://x.example", Source: "x"},
	}}
	agent := NewResearchAgent(RoleCientifico, TeamPro, testDebateConfig(), llm, "test-model", searcher, nil)

	fragments := agent.SearchAndEvaluate(context.Background(), []string{"una query suficientemente larga"}, "tarea")
	if len(fragments) != 0 {
		t.Fatalf("unparseable evaluation should yield no fragments, got %d", len(fragments))
	}
}

func TestSearchAndEvaluateBuildsFragments(t *testing.T) {
	llm := newStubLLM().respond("FRAGMENTO A EVALUAR", "RELEVANCIA: 0.9\nCREDIBILIDAD: 0.8\nSESGO: 0.1\nRAZONAMIENTO: sólido")
	searcher := &stubSearcher{results: []models.Result{
		{Title: "Uno", Content: strings.Repeat("evidencia científica sobre el tema ", 5), URL: "https://a.example", Source: "a"},
		{Title: "Dos", Content: strings.Repeat("otro análisis independiente del asunto ", 5), URL: "https://b.example", Source: "b"},
	}}
	agent := NewResearchAgent(RoleCientifico, TeamPro, testDebateConfig(), llm, "test-model", searcher, nil)

	fragments := agent.SearchAndEvaluate(context.Background(), []string{"una query suficientemente larga"}, "tarea")
	if len(fragments) != 2 {
		t.Fatalf("expected 2 fragments, got %d", len(fragments))
	}
	if fragments[0].FinalScore < fragments[1].FinalScore {
		t.Fatalf("fragments not sorted by final score")
	}
	if fragments[0].Title == "" || fragments[0].Reasoning == "" {
		t.Fatalf("title and reasoning should be carried onto the fragment")
	}
}

func TestSearchAndEvaluateSkipsFailedQuery(t *testing.T) {
	llm := newStubLLM().respond("FRAGMENTO A EVALUAR", "RELEVANCIA: 0.9\nCREDIBILIDAD: 0.8\nSESGO: 0.1")
	searcher := &stubSearcher{err: context.DeadlineExceeded}
	agent := NewResearchAgent(RoleCientifico, TeamPro, testDebateConfig(), llm, "test-model", searcher, nil)

	fragments := agent.SearchAndEvaluate(context.Background(), []string{"una query suficientemente larga"}, "tarea")
	if len(fragments) != 0 {
		t.Fatalf("failed search should be skipped, got %d fragments", len(fragments))
	}
}
