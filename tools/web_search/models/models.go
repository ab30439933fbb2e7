package models

import (
	"net/url"
	"strings"
)

// SourceType biases a query toward a class of sources.
type SourceType string

const (
	SourceGeneral  SourceType = "general"
	SourceAcademic SourceType = "academic"
	SourceEconomic SourceType = "economic"
	SourceNews     SourceType = "news"
)

// QueryPrefix returns the terms prepended to a query for this source type.
func (t SourceType) QueryPrefix() string {
	switch t {
	case SourceAcademic:
		return "scientific study research"
	case SourceEconomic:
		return "economic impact analysis"
	case SourceNews:
		return "latest news"
	default:
		return ""
	}
}

// Result is a single search hit.
type Result struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	URL     string  `json:"url"`
	Source  string  `json:"source"`
	Date    string  `json:"date,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

// SourceFromURL derives a human-readable source name from a result URL:
// the first host label after www., capitalized. Unparseable URLs map to
// "Desconocida".
func SourceFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "Desconocida"
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	label, _, _ := strings.Cut(host, ".")
	if label == "" {
		return "Desconocida"
	}
	return strings.ToUpper(label[:1]) + label[1:]
}
