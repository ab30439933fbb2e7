package evidence

import (
	"fmt"

	"github.com/blevesearch/bleve"

	"github.com/mohammad-safakhou/agora/internal/debate/core"
)

// Hit is one ranked match against a debate's evidence.
type Hit struct {
	Fragment core.Fragment `json:"fragment"`
	Score    float64       `json:"score"`
}

// Index is an in-memory full-text index over a debate's fragments. It is
// rebuilt per debate and queried by the API and the CLI report.
type Index struct {
	index     bleve.Index
	fragments map[string]core.Fragment
}

type fragmentDoc struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Source  string `json:"source"`
	Team    string `json:"team"`
	Role    string `json:"role"`
}

// NewIndex builds the index from the given fragments.
func NewIndex(fragments []core.Fragment) (*Index, error) {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("creating evidence index: %w", err)
	}
	idx := &Index{index: index, fragments: make(map[string]core.Fragment, len(fragments))}
	for _, f := range fragments {
		if err := idx.Add(f); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

// Add indexes one fragment.
func (i *Index) Add(f core.Fragment) error {
	doc := fragmentDoc{
		Title:   f.Title,
		Content: f.Content,
		Source:  f.Source,
		Team:    string(f.Team),
		Role:    string(f.AgentRole),
	}
	if err := i.index.Index(f.ID, doc); err != nil {
		return fmt.Errorf("indexing fragment %s: %w", f.ID, err)
	}
	i.fragments[f.ID] = f
	return nil
}

// Search returns up to n fragments ranked by relevance to the query.
func (i *Index) Search(query string, n int) ([]Hit, error) {
	if n <= 0 {
		n = 10
	}
	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(query), n, 0, false)
	result, err := i.index.Search(req)
	if err != nil {
		return nil, err
	}
	var hits []Hit
	for _, hit := range result.Hits {
		if f, ok := i.fragments[hit.ID]; ok {
			hits = append(hits, Hit{Fragment: f, Score: hit.Score})
		}
	}
	return hits, nil
}

// Len reports the number of indexed fragments.
func (i *Index) Len() int { return len(i.fragments) }

// Close releases the index.
func (i *Index) Close() error { return i.index.Close() }
