// Package rag answers questions from the indexed passages: retrieval, prompt construction, and the
// model call, owned by a Session.
package rag

import (
	"context"

	"github.com/hyperjump/ragchat/internal/config"
	"github.com/hyperjump/ragchat/internal/models"
)

// Answer modes. ModeDirect skips retrieval.
const (
	ModeGeneric = "generic"
	ModeRecite  = "recite"
	ModeDirect  = "direct"
)

// Searcher is a similarity search over indexed passages.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]models.ScoredPassage, error)
}

// Retrieval is what the retriever found for one question. In recite mode Match is the selected
// passage, or nil when nothing matched. In generic mode Passages holds the context passages.
type Retrieval struct {
	Mode       string
	Passages   []models.ScoredPassage
	Candidates []models.ScoredPassage
	Match      *models.Passage
	MatchScore int
}

// Retriever runs a broad similarity search and then picks context or a single recited item.
type Retriever struct {
	searcher   Searcher
	candidateK int
	contextK   int
	triggers   []string
}

// NewRetriever returns a retriever using cfg's candidate and context sizes and recite triggers.
func NewRetriever(searcher Searcher, cfg config.RetrievalConfig) *Retriever {
	r := &Retriever{
		searcher:   searcher,
		candidateK: cfg.CandidateK,
		contextK:   cfg.ContextK,
		triggers:   cfg.ReciteTriggers,
	}
	if r.candidateK <= 0 {
		r.candidateK = 10
	}
	if r.contextK <= 0 {
		r.contextK = 3
	}
	return r
}

// Retrieve searches for question. Questions containing a recite trigger select the best fuzzy
// match among the candidates; all others keep the top context passages by similarity.
func (r *Retriever) Retrieve(ctx context.Context, question string) (*Retrieval, error) {
	candidates, err := r.searcher.Search(ctx, question, r.candidateK)
	if err != nil {
		return nil, err
	}
	if IsRecitation(question, r.triggers) {
		passages := make([]*models.Passage, len(candidates))
		for i, c := range candidates {
			passages[i] = c.Passage
		}
		match, score := BestMatch(question, passages, r.triggers)
		return &Retrieval{Mode: ModeRecite, Candidates: candidates, Match: match, MatchScore: score}, nil
	}
	n := min(r.contextK, len(candidates))
	return &Retrieval{Mode: ModeGeneric, Candidates: candidates, Passages: candidates[:n]}, nil
}
