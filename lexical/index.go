package lexical

import "context"

// Candidate is one ranked keyword-search result.
type Candidate struct {
	ID    string
	Score float32
}

// Index is the interface for a lexical (keyword) search index. Documents are
// keyed by their external id, so the index survives slot renumbering
// untouched.
type Index interface {
	// Add indexes a document's text, replacing any previous text for the id.
	Add(id string, text string) error
	// Delete removes a document from the index.
	Delete(id string) error
	// Search performs a keyword search and returns the top k candidates
	// ordered by descending score, ties broken by ascending id.
	Search(ctx context.Context, query string, k int) ([]Candidate, error)
	// Close closes the index.
	Close() error
}
