package web_search

import (
	"context"
	"fmt"
	"testing"

	"github.com/mohammad-safakhou/agora/tools/web_search/models"
)

type countingSearcher struct {
	calls   int
	results []models.Result
	err     error
}

func (s *countingSearcher) Search(ctx context.Context, query string, sourceType models.SourceType, max int) ([]models.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

func TestCacheMemoizes(t *testing.T) {
	inner := &countingSearcher{results: []models.Result{{Title: "t", URL: "https://a.example"}}}
	cache := NewCache(inner)

	for i := 0; i < 3; i++ {
		results, err := cache.Search(context.Background(), "misma query", models.SourceGeneral, 5)
		if err != nil {
			t.Fatalf("search %d: %v", i, err)
		}
		if len(results) != 1 {
			t.Fatalf("search %d: got %d results", i, len(results))
		}
	}
	if inner.calls != 1 {
		t.Fatalf("inner searcher called %d times, want 1", inner.calls)
	}
	if cache.Size() != 1 {
		t.Fatalf("cache size = %d, want 1", cache.Size())
	}
}

func TestCacheKeyIncludesTypeAndMax(t *testing.T) {
	inner := &countingSearcher{}
	cache := NewCache(inner)
	ctx := context.Background()

	_, _ = cache.Search(ctx, "query", models.SourceGeneral, 5)
	_, _ = cache.Search(ctx, "query", models.SourceAcademic, 5)
	_, _ = cache.Search(ctx, "query", models.SourceGeneral, 10)
	_, _ = cache.Search(ctx, "  QUERY ", models.SourceGeneral, 5) // normalized, cached

	if inner.calls != 3 {
		t.Fatalf("inner searcher called %d times, want 3", inner.calls)
	}
}

func TestCacheDoesNotCacheErrors(t *testing.T) {
	inner := &countingSearcher{err: fmt.Errorf("provider down")}
	cache := NewCache(inner)
	ctx := context.Background()

	_, err1 := cache.Search(ctx, "query", models.SourceGeneral, 5)
	_, err2 := cache.Search(ctx, "query", models.SourceGeneral, 5)
	if err1 == nil || err2 == nil {
		t.Fatalf("errors should propagate")
	}
	if inner.calls != 2 {
		t.Fatalf("failed searches should retry, got %d calls", inner.calls)
	}
	if cache.Size() != 0 {
		t.Fatalf("errors must not be cached")
	}
}

func TestNewWebSearcherUnsupportedProvider(t *testing.T) {
	if _, err := NewWebSearcher("altavista", "key", 0); err != ErrUnsupportedProvider {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestSearchErrorWraps(t *testing.T) {
	inner := fmt.Errorf("boom")
	err := &Error{Query: "q", Err: inner}
	if err.Unwrap() != inner {
		t.Fatalf("Unwrap should return the provider error")
	}
	if err.Error() != `search "q": boom` {
		t.Fatalf("unexpected message: %s", err.Error())
	}
}
