// Package keyword provides full-text search over passage content and titles.
package keyword

import (
	"context"

	"github.com/hyperjump/ragchat/internal/models"
)

// SearchOptions are optional parameters for keyword search. Nil means defaults.
type SearchOptions struct {
	// TitleBoost multiplies the score of matches in the passage title. Values <= 1 search
	// title and content as one field.
	TitleBoost float64
	// Fuzziness > 0 enables typo-tolerant matching with that Levenshtein distance (1 or 2).
	Fuzziness int
}

// KeywordIndex defines keyword search operations over passages.
type KeywordIndex interface {
	Index(ctx context.Context, passages []*models.Passage) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error)
	Delete(ctx context.Context, ids []string) error
	DocCount() (uint64, error)
	Close() error
}

// KeywordResult is a single keyword search hit. ID is the passage ID.
type KeywordResult struct {
	ID    string
	Score float64
}
