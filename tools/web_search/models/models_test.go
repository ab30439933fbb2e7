package models

import "testing"

func TestSourceFromURL(t *testing.T) {
	cases := map[string]string{
		"https://www.pubmed.gov/article/1": "Pubmed",
		"https://elpais.com/noticia":       "Elpais",
		"http://scholar.google.com/x":      "Scholar",
		"not a url":                        "Desconocida",
		"":                                 "Desconocida",
	}
	for raw, want := range cases {
		if got := SourceFromURL(raw); got != want {
			t.Fatalf("SourceFromURL(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestQueryPrefix(t *testing.T) {
	if got := SourceGeneral.QueryPrefix(); got != "" {
		t.Fatalf("general prefix = %q, want empty", got)
	}
	if got := SourceAcademic.QueryPrefix(); got != "scientific study research" {
		t.Fatalf("academic prefix = %q", got)
	}
	if got := SourceNews.QueryPrefix(); got != "latest news" {
		t.Fatalf("news prefix = %q", got)
	}
}
