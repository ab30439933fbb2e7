package evidence

import (
	"testing"

	"github.com/mohammad-safakhou/agora/internal/debate/core"
)

func testFragments() []core.Fragment {
	solar := core.NewFragment(
		"Los paneles solares fotovoltaicos redujeron su costo un ochenta por ciento en la última década",
		"iea", "https://iea.example/solar", 0.9, 0.9, 0.1, core.RoleEconomico, "costos energía solar")
	solar.Title = "Costos de la energía solar"
	solar.Team = core.TeamPro

	wind := core.NewFragment(
		"La energía eólica marina presenta costos de mantenimiento elevados en aguas profundas",
		"bloomberg", "https://bloomberg.example/wind", 0.8, 0.7, 0.2, core.RoleRefutador, "mantenimiento eólica")
	wind.Title = "Mantenimiento eólico"
	wind.Team = core.TeamContra

	return []core.Fragment{solar, wind}
}

func TestIndexSearch(t *testing.T) {
	idx, err := NewIndex(testFragments())
	if err != nil {
		t.Fatalf("building index: %v", err)
	}
	defer idx.Close()

	if idx.Len() != 2 {
		t.Fatalf("index length = %d, want 2", idx.Len())
	}

	hits, err := idx.Search("paneles solares", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatalf("expected a hit for %q", "paneles solares")
	}
	if hits[0].Fragment.Title != "Costos de la energía solar" {
		t.Fatalf("top hit = %q", hits[0].Fragment.Title)
	}
	if hits[0].Score <= 0 {
		t.Fatalf("hit should carry a positive score")
	}
}

func TestIndexSearchNoMatch(t *testing.T) {
	idx, err := NewIndex(testFragments())
	if err != nil {
		t.Fatalf("building index: %v", err)
	}
	defer idx.Close()

	hits, err := idx.Search("astronomía marciana", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits, got %d", len(hits))
	}
}

func TestIndexAdd(t *testing.T) {
	idx, err := NewIndex(nil)
	if err != nil {
		t.Fatalf("building empty index: %v", err)
	}
	defer idx.Close()

	f := core.NewFragment("contenido nuevo sobre impuestos al carbono", "ocde", "https://ocde.example/1", 0.7, 0.8, 0.2, core.RoleEconomico, "q")
	if err := idx.Add(f); err != nil {
		t.Fatalf("add: %v", err)
	}
	if idx.Len() != 1 {
		t.Fatalf("index length = %d, want 1", idx.Len())
	}
	hits, err := idx.Search("impuestos carbono", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].Fragment.ID != f.ID {
		t.Fatalf("expected the added fragment, got %+v", hits)
	}
}
