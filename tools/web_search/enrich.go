package web_search

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/mohammad-safakhou/agora/tools/web_search/models"
)

const (
	// Results thinner than this get a readability pass before evaluation.
	enrichMinContent = 50
	enrichMaxContent = 2000
)

// Enricher fetches the page behind thin results and replaces the snippet
// with extracted article text. Fetch failures leave the result untouched.
type Enricher struct {
	inner  WebSearcher
	client *http.Client
}

func NewEnricher(inner WebSearcher, timeout time.Duration) *Enricher {
	return &Enricher{inner: inner, client: &http.Client{Timeout: timeout}}
}

func (e *Enricher) Search(ctx context.Context, query string, sourceType models.SourceType, max int) ([]models.Result, error) {
	results, err := e.inner.Search(ctx, query, sourceType, max)
	if err != nil {
		return nil, err
	}
	for i := range results {
		if len(strings.TrimSpace(results[i].Content)) >= enrichMinContent {
			continue
		}
		if text := e.extract(ctx, results[i].URL); text != "" {
			results[i].Content = text
		}
	}
	return results, nil
}

func (e *Enricher) extract(ctx context.Context, rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return ""
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}
	article, err := readability.FromReader(resp.Body, u)
	if err != nil {
		return ""
	}
	text := strings.TrimSpace(article.TextContent)
	if len(text) > enrichMaxContent {
		text = text[:enrichMaxContent]
	}
	return text
}
