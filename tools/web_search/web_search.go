package web_search

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mohammad-safakhou/agora/tools/web_search/brave"
	"github.com/mohammad-safakhou/agora/tools/web_search/models"
	"github.com/mohammad-safakhou/agora/tools/web_search/serper"
	"github.com/mohammad-safakhou/agora/tools/web_search/tavily"
)

// WebSearcher runs a web search biased toward a source type.
type WebSearcher interface {
	Search(ctx context.Context, query string, sourceType models.SourceType, max int) ([]models.Result, error)
}

type Provider string

const (
	TavilyProvider Provider = "tavily"
	SerperProvider Provider = "serper"
	BraveProvider  Provider = "brave"
)

// Error is a search-layer failure. It wraps the provider error so callers
// can record it and move on to the next query.
type Error struct {
	Query string
	Err   error
}

func (e *Error) Error() string {
	if e.Query == "" {
		return fmt.Sprintf("search: %v", e.Err)
	}
	return fmt.Sprintf("search %q: %v", e.Query, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

var ErrUnsupportedProvider = fmt.Errorf("unsupported search provider")

// NewWebSearcher builds the provider-specific searcher.
func NewWebSearcher(provider Provider, apiKey string, timeout time.Duration) (WebSearcher, error) {
	switch provider {
	case TavilyProvider:
		return &typedSearcher{tavily.Search{ApiKey: apiKey, Timeout: timeout}.Discover}, nil
	case SerperProvider:
		return &typedSearcher{serper.Search{ApiKey: apiKey, Timeout: timeout}.Discover}, nil
	case BraveProvider:
		return &typedSearcher{brave.Search{ApiKey: apiKey, Timeout: timeout}.Discover}, nil
	default:
		return nil, ErrUnsupportedProvider
	}
}

// typedSearcher applies source-type query prefixes and fills the Source
// field, so providers stay raw query-in results-out.
type typedSearcher struct {
	discover func(ctx context.Context, q string, k int) ([]models.Result, error)
}

func (s *typedSearcher) Search(ctx context.Context, query string, sourceType models.SourceType, max int) ([]models.Result, error) {
	q := query
	if prefix := sourceType.QueryPrefix(); prefix != "" {
		q = prefix + " " + q
	}
	results, err := s.discover(ctx, q, max)
	if err != nil {
		return nil, &Error{Query: query, Err: err}
	}
	for i := range results {
		if results[i].Source == "" {
			results[i].Source = models.SourceFromURL(results[i].URL)
		}
	}
	return results, nil
}

// Cache memoizes searches by (query, sourceType, max). Entries never
// expire; a cache lives for one debate.
type Cache struct {
	inner WebSearcher

	mu      sync.Mutex
	entries map[string][]models.Result
}

func NewCache(inner WebSearcher) *Cache {
	return &Cache{inner: inner, entries: make(map[string][]models.Result)}
}

func (c *Cache) Search(ctx context.Context, query string, sourceType models.SourceType, max int) ([]models.Result, error) {
	key := fmt.Sprintf("%s|%s|%d", strings.ToLower(strings.TrimSpace(query)), sourceType, max)
	c.mu.Lock()
	if hit, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return hit, nil
	}
	c.mu.Unlock()

	results, err := c.inner.Search(ctx, query, sourceType, max)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.entries[key] = results
	c.mu.Unlock()
	return results, nil
}

// Size reports the number of cached queries.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
